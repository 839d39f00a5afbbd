// Package license implements the offline-capable license subsystem:
// the encrypted on-disk cache, the client that talks to the remote
// license authority with offline fallback, the feature tier manager,
// and the state manager that drives the activation lifecycle and the
// periodic background sync.
//
// Trust is layered. An authority confirmation is the strongest signal
// and refreshes the cache. Offline trust rests on the cached record:
// it must decrypt cleanly, match this machine's hardware fingerprint,
// be inside its expiry window, and carry a validation token minted for
// the current calendar day. Any failure downgrades the granted tier to
// free.
package license
