package license

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/Muhammad-NSQ/Dlens/internal/errors"
)

// State is the license lifecycle state
type State string

const (
	StateUnactivated State = "UNACTIVATED"
	StateActivating  State = "ACTIVATING"
	StateActive      State = "ACTIVE"
	StateGracePeriod State = "GRACE_PERIOD"
	StateExpired     State = "EXPIRED"
	StateError       State = "ERROR"
)

// StateConfig carries the StateManager's tunables
type StateConfig struct {
	SyncInterval time.Duration
	GracePeriod  time.Duration
	StatePath    string
}

// stateSnapshot is the signed on-disk form of the manager's state.
// The signature binds every field so a hand-edited snapshot is
// rejected on resume.
type stateSnapshot struct {
	State      State     `json:"state"`
	LicenseKey string    `json:"license_key,omitempty"`
	RetryCount int       `json:"retry_count"`
	LastSync   time.Time `json:"last_sync"`
	SavedAt    time.Time `json:"saved_at"`
	Signature  string    `json:"signature"`
}

// Status is the externally visible state summary
type Status struct {
	State         State     `json:"state"`
	Tier          Tier      `json:"tier"`
	RetryCount    int       `json:"retry_count"`
	LastSync      time.Time `json:"last_sync,omitempty"`
	ExpiresInDays int       `json:"expires_in_days,omitempty"`
}

// StateManager drives the license lifecycle: activation, the periodic
// background sync loop, grace-period accounting, and crash-safe
// persistence of its own state. All transitions funnel through
// setState under the mutex.
type StateManager struct {
	mu     sync.Mutex
	client *Client
	config StateConfig
	secret string
	logger *slog.Logger

	state      State
	licenseKey string
	retryCount int
	lastSync   time.Time

	// generation invalidates in-flight sync results after an
	// activation or deactivation races past them
	generation uint64

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

// NewStateManager creates a state manager in the UNACTIVATED state.
// Call Resume to pick up a persisted snapshot, then Start to run the
// periodic sync loop.
func NewStateManager(client *Client, cfg StateConfig, secret string, logger *slog.Logger) *StateManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateManager{
		client: client,
		config: cfg,
		secret: secret,
		logger: logger.With(slog.String("component", "license_state")),
		state:  StateUnactivated,
		now:    time.Now,
	}
}

// State returns the current lifecycle state
func (m *StateManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current state summary
func (m *StateManager) Status() Status {
	m.mu.Lock()
	state := m.state
	retryCount := m.retryCount
	lastSync := m.lastSync
	m.mu.Unlock()

	status := Status{
		State:      state,
		Tier:       m.client.Features().Tier(),
		RetryCount: retryCount,
		LastSync:   lastSync,
	}
	if record, _ := m.client.loadRecord(); record != nil {
		status.ExpiresInDays = record.DaysRemaining(m.now())
	}
	return status
}

// Activate validates the given key and, on success, enters ACTIVE and
// begins tracking it. An authority rejection returns the manager to
// UNACTIVATED; a failure with no terminal cause enters ERROR so the
// sync loop keeps retrying.
func (m *StateManager) Activate(ctx context.Context, licenseKey string) error {
	m.mu.Lock()
	if m.state == StateActivating {
		m.mu.Unlock()
		return fmt.Errorf("activation already in progress")
	}
	m.generation++
	gen := m.generation
	m.transitionLocked(StateActivating)
	m.mu.Unlock()

	if m.client.metrics != nil {
		m.client.metrics.ActivationAttempts.Add(ctx, 1)
	}
	start := m.now()

	ok, err := m.client.ValidateLicense(ctx, licenseKey)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		m.logger.DebugContext(ctx, "discarding stale activation result")
		return fmt.Errorf("activation superseded")
	}

	switch {
	case ok:
		m.licenseKey = licenseKey
		m.retryCount = 0
		m.lastSync = m.now()
		// A key activated close to its expiry date lands directly in
		// the grace window rather than full ACTIVE.
		if record, _ := m.client.loadRecord(); record != nil {
			m.applyRecordLocked(record)
		} else {
			m.transitionLocked(StateActive)
		}
		if m.client.metrics != nil {
			m.client.metrics.ActivationSuccess.Add(ctx, 1)
			m.client.metrics.ActivationDuration.Record(ctx, time.Since(start).Seconds())
		}
		return nil

	case apperrors.IsTerminal(err):
		m.licenseKey = ""
		m.transitionLocked(StateUnactivated)
		return err

	default:
		m.licenseKey = licenseKey
		m.enterErrorLocked()
		if err == nil {
			err = apperrors.ErrLicenseNotActivated
		}
		return err
	}
}

// Deactivate removes the license and returns to UNACTIVATED. Safe to
// call in any state.
func (m *StateManager) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	if _, err := m.client.Deactivate(); err != nil {
		return err
	}
	m.licenseKey = ""
	m.retryCount = 0
	m.transitionLocked(StateUnactivated)
	return nil
}

// Resume restores a persisted snapshot. A missing, unreadable, or
// tampered snapshot resumes as UNACTIVATED. If the snapshot is older
// than one sync interval the cached license is re-validated offline
// before the state is trusted.
func (m *StateManager) Resume() {
	snapshot, err := m.loadSnapshot()
	if err != nil {
		m.logger.Warn("discarding persisted state",
			slog.String("error", err.Error()),
		)
		return
	}
	if snapshot == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.licenseKey = snapshot.LicenseKey
	m.retryCount = snapshot.RetryCount
	m.lastSync = snapshot.LastSync
	m.state = snapshot.State

	if m.state == StateActivating {
		// An activation interrupted by shutdown never completed
		m.state = StateUnactivated
		m.licenseKey = ""
	}

	stale := m.now().Sub(snapshot.SavedAt) > m.config.SyncInterval
	if m.licenseKey != "" && (stale || m.state == StateActive || m.state == StateGracePeriod) {
		// Re-validate before trusting the snapshot: the process starts
		// on the free tier, so a resumed ACTIVE/GRACE_PERIOD must earn
		// its tier back through the cached record.
		if m.client.ValidateOffline(m.licenseKey) {
			if record, _ := m.client.loadRecord(); record != nil {
				m.applyRecordLocked(record)
			}
		} else if record, _ := m.client.loadRecord(); record != nil && record.Expired(m.now()) {
			m.expireLocked()
		} else {
			m.enterErrorLocked()
		}
	}

	m.logger.Info("resumed persisted license state",
		slog.String("state", string(m.state)),
		slog.Int("retry_count", m.retryCount),
	)
}

// Start launches the periodic sync loop. Returns an error if already
// started.
func (m *StateManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("state manager already started")
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.syncLoop(ctx)
	return nil
}

// Stop halts the sync loop and blocks until the worker goroutine has
// exited, then persists a final snapshot. Safe to call more than once.
func (m *StateManager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	m.persistLocked()
	m.mu.Unlock()

	m.logger.Info("license sync loop stopped")
}

func (m *StateManager) syncLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sync(ctx)
		}
	}
}

// sync runs one evaluation cycle: it re-derives the lifecycle state
// from the current license record, refreshed through the authority
// when one is configured.
func (m *StateManager) sync(ctx context.Context) {
	m.mu.Lock()
	state := m.state
	licenseKey := m.licenseKey
	gen := m.generation
	m.mu.Unlock()

	if state == StateUnactivated || state == StateActivating || licenseKey == "" {
		return
	}

	if m.client.metrics != nil {
		m.client.metrics.SyncRuns.Add(ctx, 1)
	}

	record, err := m.client.GetLicenseInfo(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	// A deactivation or fresh activation won the race; this result
	// describes a license the manager no longer tracks.
	if gen != m.generation {
		m.logger.DebugContext(ctx, "discarding stale sync result")
		return
	}

	switch {
	case apperrors.IsTerminal(err):
		m.expireLocked()

	case err != nil:
		if m.client.metrics != nil {
			m.client.metrics.SyncFailures.Add(ctx, 1)
		}
		m.enterErrorLocked()

	case record == nil:
		// The cache vanished under a tracked license. Fail closed and
		// treat it like never having activated.
		m.client.Features().Downgrade()
		m.licenseKey = ""
		m.transitionLocked(StateUnactivated)

	default:
		m.retryCount = 0
		m.lastSync = m.now()
		m.applyRecordLocked(record)
	}
}

// applyRecordLocked re-derives the lifecycle state from the record's
// expiry: past expiry is EXPIRED, expiry inside the grace window is
// GRACE_PERIOD with the currently-granted tier left untouched, and
// anything further out is ACTIVE with the record's tier granted.
func (m *StateManager) applyRecordLocked(record *Record) {
	now := m.now()
	switch {
	case record.Expired(now):
		m.expireLocked()
	case record.ExpiresAt.Sub(now) <= m.config.GracePeriod:
		m.transitionLocked(StateGracePeriod)
	default:
		m.client.Features().SetTier(record.Tier)
		m.transitionLocked(StateActive)
	}
}

// enterErrorLocked transitions to ERROR and immediately attempts an
// offline recovery against the tracked key. Success returns straight
// to ACTIVE; failure bumps the persisted retry count and stays in
// ERROR until the next sync tick.
func (m *StateManager) enterErrorLocked() {
	m.transitionLocked(StateError)
	if m.licenseKey != "" && m.client.ValidateOffline(m.licenseKey) {
		m.retryCount = 0
		if record, _ := m.client.loadRecord(); record != nil {
			m.applyRecordLocked(record)
		} else {
			m.transitionLocked(StateActive)
		}
		return
	}
	m.retryCount++
	m.persistLocked()
}

// expireLocked enters EXPIRED and forces the free tier
func (m *StateManager) expireLocked() {
	m.client.Features().Downgrade()
	m.transitionLocked(StateExpired)
}

// transitionLocked records a state change and persists a snapshot.
// Caller holds the mutex.
func (m *StateManager) transitionLocked(next State) {
	if m.state == next {
		m.persistLocked()
		return
	}
	prev := m.state
	m.state = next
	m.logger.Info("license state transition",
		slog.String("from", string(prev)),
		slog.String("to", string(next)),
	)
	if m.client.metrics != nil {
		m.client.metrics.StateTransitions.Add(context.Background(), 1)
	}
	m.persistLocked()
}

func (m *StateManager) persistLocked() {
	snapshot := stateSnapshot{
		State:      m.state,
		LicenseKey: m.licenseKey,
		RetryCount: m.retryCount,
		LastSync:   m.lastSync,
		SavedAt:    m.now(),
	}
	snapshot.Signature = m.signSnapshot(snapshot)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		m.logger.Error("failed to marshal state snapshot",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := os.MkdirAll(filepath.Dir(m.config.StatePath), 0755); err != nil {
		m.logger.Error("failed to create state directory",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := os.WriteFile(m.config.StatePath, data, 0600); err != nil {
		m.logger.Error("failed to write state snapshot",
			slog.String("path", m.config.StatePath),
			slog.String("error", err.Error()),
		)
	}
}

// loadSnapshot reads and verifies the persisted snapshot. Returns
// (nil, nil) when no snapshot exists.
func (m *StateManager) loadSnapshot() (*stateSnapshot, error) {
	data, err := os.ReadFile(m.config.StatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state snapshot: %w", err)
	}

	var snapshot stateSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse state snapshot: %w", err)
	}

	expected := m.signSnapshot(snapshot)
	if !hmac.Equal([]byte(snapshot.Signature), []byte(expected)) {
		return nil, fmt.Errorf("state snapshot signature mismatch")
	}

	switch snapshot.State {
	case StateUnactivated, StateActivating, StateActive, StateGracePeriod, StateExpired, StateError:
	default:
		return nil, fmt.Errorf("unknown persisted state %q", snapshot.State)
	}

	return &snapshot, nil
}

// signSnapshot computes the HMAC-SHA256 signature over every snapshot
// field except the signature itself
func (m *StateManager) signSnapshot(s stateSnapshot) string {
	payload := string(s.State) + "|" +
		s.LicenseKey + "|" +
		strconv.Itoa(s.RetryCount) + "|" +
		s.LastSync.UTC().Format(time.RFC3339Nano) + "|" +
		s.SavedAt.UTC().Format(time.RFC3339Nano)

	h := hmac.New(sha256.New, []byte(m.secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
