package license

import (
	"strings"
	"sync"
	"time"
)

// Tier is the feature level granted to the host application
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ParseTier maps an authority-supplied tier string to a known tier.
// Unknown values degrade to the free tier rather than failing.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

// Record is the cached license state, one per installation. It is owned
// exclusively by the Client and persisted only through the encrypted
// cache.
type Record struct {
	LicenseKey      string    `json:"license_key"`
	HardwareID      string    `json:"hardware_id"`
	InstallationID  string    `json:"installation_id"`
	Tier            Tier      `json:"tier"`
	ValidationToken string    `json:"validation_token"`
	LastValidated   time.Time `json:"last_validated"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the record's expiry is in the past
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// DaysRemaining returns whole days until expiry, negative once past
func (r *Record) DaysRemaining(now time.Time) int {
	return int(r.ExpiresAt.Sub(now).Hours() / 24)
}

// FeatureManager holds the feature tier currently granted to the rest of
// the application. It is owned by the Client and passed by handle to
// consumers; the granted tier always reflects the current license state,
// never a cache record that has not passed a freshness check this
// session.
type FeatureManager struct {
	mu   sync.RWMutex
	tier Tier
}

// NewFeatureManager creates a feature manager starting at the free tier
func NewFeatureManager() *FeatureManager {
	return &FeatureManager{tier: TierFree}
}

// Tier returns the currently granted feature tier
func (fm *FeatureManager) Tier() Tier {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.tier
}

// SetTier grants the given feature tier
func (fm *FeatureManager) SetTier(tier Tier) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.tier = tier
}

// Downgrade resets the granted tier to free
func (fm *FeatureManager) Downgrade() {
	fm.SetTier(TierFree)
}
