package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// tokenDateFormat pins tokens to a single UTC calendar date. A token
// verified on a later date fails by construction, which forces periodic
// online re-confirmation instead of indefinite offline trust.
const tokenDateFormat = "2006-01-02"

// CreateValidationToken creates a keyed digest binding a license key to
// this machine for today's UTC calendar date.
func CreateValidationToken(licenseKey, hardwareID, secret string) string {
	return CreateValidationTokenForDate(licenseKey, hardwareID, secret, time.Now().UTC())
}

// CreateValidationTokenForDate creates a validation token for an explicit
// date. The client uses it to stamp records; tests use it to cross the
// day boundary deterministically.
func CreateValidationTokenForDate(licenseKey, hardwareID, secret string, date time.Time) string {
	payload := fmt.Sprintf("%s|%s|%s", licenseKey, hardwareID, date.UTC().Format(tokenDateFormat))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyValidationToken recomputes the expected token for today and
// compares in constant time. It returns false for any token not created
// on the current UTC date with the same key material.
func VerifyValidationToken(token, licenseKey, hardwareID, secret string) bool {
	expected := CreateValidationToken(licenseKey, hardwareID, secret)
	return hmac.Equal([]byte(token), []byte(expected))
}
