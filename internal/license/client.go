package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Muhammad-NSQ/Dlens/internal/errors"
	"github.com/Muhammad-NSQ/Dlens/internal/security"
)

// validateEndpoint is the license authority's validation route
const validateEndpoint = "/api/v1/license/validate"

// AuthProvider supplies the bearer authorization header for license
// authority calls. Token acquisition and refresh live outside this
// package.
type AuthProvider interface {
	AuthHeader(ctx context.Context) (string, error)
}

// ClientConfig carries the Client's construction parameters
type ClientConfig struct {
	// ServerURL is the license authority base URL; empty means offline
	ServerURL      string
	RequestTimeout time.Duration
}

// Client owns the encrypted cache, talks to the remote license
// authority, performs offline validation, and exposes activation,
// deactivation, and status operations. All LicenseRecord mutation goes
// through the Client.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	auth        AuthProvider
	cache       *Cache
	secret      string
	fingerprint *security.FingerprintManager
	features    *FeatureManager
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time

	// recordMu guards the decrypted record memo. Loading the cache
	// runs scrypt key stretching, so the record is decrypted once per
	// session and kept coherent by funneling all cache writes through
	// storeRecord and dropRecord.
	recordMu     sync.Mutex
	record       *Record
	recordLoaded bool
}

// validateRequest is the authority's validation request contract
type validateRequest struct {
	LicenseKey     string `json:"license_key"`
	HardwareID     string `json:"hardware_id"`
	InstallationID string `json:"installation_id,omitempty"`
}

// validateResponse is the authority's validation response contract
type validateResponse struct {
	Tier      string    `json:"tier"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActivationStatus is the read-only summary exposed to callers
type ActivationStatus struct {
	IsActivated   bool     `json:"is_activated"`
	Tier          Tier     `json:"tier"`
	ExpiresInDays int      `json:"expires_in_days"`
	Messages      []string `json:"messages,omitempty"`
}

// NewClient creates a license client. The feature manager is owned by
// the client; callers hold a reference through Features().
func NewClient(cfg ClientConfig, auth AuthProvider, cache *Cache, secret string, fingerprint *security.FingerprintManager, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config:      cfg,
		httpClient:  &http.Client{Timeout: timeout},
		auth:        auth,
		cache:       cache,
		secret:      secret,
		fingerprint: fingerprint,
		features:    NewFeatureManager(),
		logger:      logger.With(slog.String("component", "license_client")),
		now:         time.Now,
	}
}

// SetMetrics attaches the OpenTelemetry metric set. Nil-safe throughout.
func (c *Client) SetMetrics(m *Metrics) {
	c.metrics = m
}

// Features returns the feature manager holding the granted tier
func (c *Client) Features() *FeatureManager {
	return c.features
}

// HardwareID returns this machine's binding identifier
func (c *Client) HardwareID() string {
	return c.fingerprint.HardwareID()
}

// loadRecord returns a copy of the cached record, decrypting the cache
// file at most once per session. Returns (nil, nil) when no record
// exists or the cache fails integrity checks.
func (c *Client) loadRecord() (*Record, error) {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	if !c.recordLoaded {
		record, err := c.cache.Load()
		if err != nil {
			return nil, err
		}
		c.record = record
		c.recordLoaded = true
	}
	if c.record == nil {
		return nil, nil
	}
	cp := *c.record
	return &cp, nil
}

// storeRecord persists the record and refreshes the in-memory copy
func (c *Client) storeRecord(record *Record) error {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	if err := c.cache.Save(record); err != nil {
		return err
	}
	cp := *record
	c.record = &cp
	c.recordLoaded = true
	return nil
}

// dropRecord deletes the cache file and clears the in-memory copy
func (c *Client) dropRecord() error {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	if err := c.cache.Delete(); err != nil {
		return err
	}
	c.record = nil
	c.recordLoaded = true
	return nil
}

// ValidateLicense validates a license key, online first with offline
// fallback. On authority confirmation it refreshes and persists the
// cached record. An authority-confirmed rejection clears the cache and
// does not fall back to offline trust.
func (c *Client) ValidateLicense(ctx context.Context, licenseKey string) (bool, error) {
	if licenseKey == "" {
		return false, apperrors.ErrInvalidLicenseKey
	}

	if c.metrics != nil {
		c.metrics.ValidationAttempts.Add(ctx, 1)
	}

	if c.config.ServerURL == "" {
		c.logger.DebugContext(ctx, "no authority configured, validating offline",
			slog.String("license_key_masked", maskLicenseKey(licenseKey)),
		)
		return c.ValidateOffline(licenseKey), nil
	}

	resp, err := c.callAuthority(ctx, licenseKey)
	switch {
	case err == nil:
		return c.acceptAuthorityResponse(ctx, licenseKey, resp)

	case errors.Is(err, apperrors.ErrLicenseRejected):
		// Explicit rejection is stronger than silence: clear the cache
		// and downgrade without consulting offline state.
		c.logger.WarnContext(ctx, "license rejected by authority",
			slog.String("license_key_masked", maskLicenseKey(licenseKey)),
		)
		if c.metrics != nil {
			c.metrics.ValidationFailures.Add(ctx, 1)
		}
		if delErr := c.dropRecord(); delErr != nil {
			c.logger.ErrorContext(ctx, "failed to clear cache after rejection",
				slog.String("error", delErr.Error()),
			)
		}
		c.features.Downgrade()
		return false, err

	default:
		c.logger.WarnContext(ctx, "authority unreachable, falling back to offline validation",
			slog.String("license_key_masked", maskLicenseKey(licenseKey)),
			slog.String("error", err.Error()),
		)
		if c.metrics != nil {
			c.metrics.OfflineFallbacks.Add(ctx, 1)
		}
		if c.ValidateOffline(licenseKey) {
			return true, nil
		}
		// Offline trust could not cover for the outage; surface the
		// transient cause so the caller can retry rather than treat
		// this as a rejection.
		return false, err
	}
}

// acceptAuthorityResponse persists a confirmed license and grants its tier
func (c *Client) acceptAuthorityResponse(ctx context.Context, licenseKey string, resp *validateResponse) (bool, error) {
	now := c.now()
	hardwareID := c.fingerprint.HardwareID()

	installationID := uuid.NewString()
	if existing, _ := c.loadRecord(); existing != nil && existing.InstallationID != "" {
		installationID = existing.InstallationID
	}

	record := &Record{
		LicenseKey:      licenseKey,
		HardwareID:      hardwareID,
		InstallationID:  installationID,
		Tier:            ParseTier(resp.Tier),
		ValidationToken: security.CreateValidationToken(licenseKey, hardwareID, c.secret),
		LastValidated:   now,
		ExpiresAt:       resp.ExpiresAt,
	}

	if err := c.storeRecord(record); err != nil {
		return false, fmt.Errorf("failed to persist license record: %w", err)
	}

	c.features.SetTier(record.Tier)

	if c.metrics != nil {
		c.metrics.ValidationSuccess.Add(ctx, 1)
	}

	c.logger.InfoContext(ctx, "license validated online",
		slog.String("license_key_masked", maskLicenseKey(licenseKey)),
		slog.String("tier", string(record.Tier)),
		slog.Time("expires_at", record.ExpiresAt),
	)

	return true, nil
}

// ValidateOffline confirms license validity using only locally cached,
// previously authority-confirmed material. Any failure downgrades the
// granted tier to free as a side effect.
func (c *Client) ValidateOffline(licenseKey string) bool {
	record, _ := c.loadRecord()

	reason := ""
	switch {
	case record == nil:
		reason = "no cached license"
	case record.LicenseKey != licenseKey:
		reason = "license key mismatch"
	case !c.fingerprint.Matches(record.HardwareID):
		reason = "hardware binding mismatch"
	case record.Expired(c.now()):
		reason = "license expired"
	case !security.VerifyValidationToken(record.ValidationToken, record.LicenseKey, record.HardwareID, c.secret):
		reason = "validation token stale or invalid"
	}

	if reason != "" {
		c.logger.Warn("offline validation failed",
			slog.String("license_key_masked", maskLicenseKey(licenseKey)),
			slog.String("reason", reason),
		)
		c.features.Downgrade()
		return false
	}

	c.features.SetTier(record.Tier)

	c.logger.Debug("offline validation succeeded",
		slog.String("license_key_masked", maskLicenseKey(licenseKey)),
		slog.String("tier", string(record.Tier)),
	)

	return true
}

// CheckActivationStatus reports the current activation summary. It has
// no side effect beyond the tier downgrade offline validation already
// performs on failure.
func (c *Client) CheckActivationStatus() ActivationStatus {
	record, _ := c.loadRecord()
	if record == nil {
		c.features.Downgrade()
		return ActivationStatus{
			IsActivated: false,
			Tier:        TierFree,
			Messages:    []string{"no license activated"},
		}
	}

	if !c.ValidateOffline(record.LicenseKey) {
		return ActivationStatus{
			IsActivated: false,
			Tier:        TierFree,
			Messages:    []string{"cached license failed validation"},
		}
	}

	days := record.DaysRemaining(c.now())
	status := ActivationStatus{
		IsActivated:   true,
		Tier:          record.Tier,
		ExpiresInDays: days,
	}
	if days <= 7 {
		status.Messages = append(status.Messages,
			fmt.Sprintf("license expires in %d days", days))
	}

	return status
}

// Deactivate deletes the cache file and resets the feature tier to
// free. Idempotent: deactivating an unactivated client still succeeds.
func (c *Client) Deactivate() (bool, error) {
	if err := c.dropRecord(); err != nil {
		return false, err
	}
	c.features.Downgrade()

	c.logger.Info("license deactivated")
	return true, nil
}

// GetLicenseInfo returns the current license record. When an authority
// is configured it re-queries for fresh expiry and tier. A confirmed
// rejection clears the cache, downgrades the tier, and returns the
// terminal error; a transient failure returns the cached record
// alongside the error so the caller decides how far to trust it.
// Returns (nil, nil) when no record exists.
func (c *Client) GetLicenseInfo(ctx context.Context) (*Record, error) {
	record, err := c.loadRecord()
	if err != nil || record == nil {
		return nil, nil
	}

	if c.config.ServerURL == "" {
		return record, nil
	}

	resp, err := c.callAuthority(ctx, record.LicenseKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrLicenseRejected) {
			c.logger.WarnContext(ctx, "license rejected by authority during refresh",
				slog.String("license_key_masked", maskLicenseKey(record.LicenseKey)),
			)
			if c.metrics != nil {
				c.metrics.ValidationFailures.Add(ctx, 1)
			}
			if delErr := c.dropRecord(); delErr != nil {
				c.logger.ErrorContext(ctx, "failed to clear cache after rejection",
					slog.String("error", delErr.Error()),
				)
			}
			c.features.Downgrade()
			return nil, err
		}
		c.logger.DebugContext(ctx, "authority unreachable for info refresh",
			slog.String("error", err.Error()),
		)
		return record, err
	}

	// Stale-response discard: a refresh that completed after
	// cancellation must not overwrite newer state.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	record.Tier = ParseTier(resp.Tier)
	record.ExpiresAt = resp.ExpiresAt
	record.LastValidated = c.now()
	record.ValidationToken = security.CreateValidationToken(record.LicenseKey, record.HardwareID, c.secret)

	if err := c.storeRecord(record); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed record: %w", err)
	}

	return record, nil
}

// callAuthority performs the authority validation call. Transport
// failures and 5xx map to ErrNetworkError (retryable); 4xx maps to
// ErrLicenseRejected (terminal for that key).
func (c *Client) callAuthority(ctx context.Context, licenseKey string) (*validateResponse, error) {
	installationID := ""
	if record, _ := c.loadRecord(); record != nil {
		installationID = record.InstallationID
	}

	payload, err := json.Marshal(validateRequest{
		LicenseKey:     licenseKey,
		HardwareID:     c.fingerprint.HardwareID(),
		InstallationID: installationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.ServerURL+validateEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.auth != nil {
		header, err := c.auth.AuthHeader(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: auth provider failed: %v", apperrors.ErrNetworkError, err)
		}
		req.Header.Set("Authorization", header)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.AuthorityLatency.Record(ctx, time.Since(start).Seconds())
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", apperrors.ErrNetworkError, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var vr validateResponse
		if err := json.Unmarshal(body, &vr); err != nil {
			return nil, fmt.Errorf("%w: malformed authority response: %v", apperrors.ErrNetworkError, err)
		}
		return &vr, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: authority returned %d", apperrors.ErrLicenseRejected, resp.StatusCode)

	default:
		return nil, fmt.Errorf("%w: authority returned %d", apperrors.ErrNetworkError, resp.StatusCode)
	}
}

// maskLicenseKey masks the license key for log output
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
