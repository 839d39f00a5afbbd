// Package security implements the trust primitives the license client is
// built on: a deterministic hardware fingerprint for machine binding, a
// persistent per-machine secret, AES-256-GCM envelope encryption with an
// explicit integrity digest for at-rest license material, and the daily
// HMAC validation token exchanged between online confirmation and later
// offline checks.
package security
