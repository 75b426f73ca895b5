// Package lock records which trivia session this client currently owns.
//
// The record lives in reload-surviving Storage so a restarted client can
// resume the session instead of starting a duplicate. Every record carries a
// random ownership token; Release only clears the record whose token it was
// handed, so a late release for an old session never removes the lock of a
// newer one.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// RecordKey is the storage key holding the active lock record.
	RecordKey = "active-session"
	// SnapshotKey holds the session snapshot written alongside the lock.
	SnapshotKey = "active-session-snapshot"
)

// CompanionKeys lists keys that belong to the lock and are removed by ForceClear.
var CompanionKeys = []string{SnapshotKey}

var (
	// ErrLockHeld is returned by Acquire when another session owns the lock.
	ErrLockHeld = errors.New("lock: another session is active")
	// ErrCorruptRecord is returned when the stored record cannot be decoded.
	ErrCorruptRecord = errors.New("lock: stored record is corrupt")
)

// Policy decides what Acquire does when a different record already exists.
type Policy string

const (
	PolicyRefuse    Policy = "refuse"
	PolicyOverwrite Policy = "overwrite"
)

// ParsePolicy accepts the textual policy names used in config files.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyRefuse:
		return PolicyRefuse, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	default:
		return "", fmt.Errorf("lock: unknown policy %q", value)
	}
}

// Record marks the session this client owns.
type Record struct {
	SessionID  string    `json:"sessionId"`
	CategoryID string    `json:"categoryId"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// IsZero reports whether r is the empty record.
func (r Record) IsZero() bool {
	return r.SessionID == "" && r.Token == ""
}

// Manager guards the single lock record.
type Manager struct {
	store    Storage
	policy   Policy
	clock    func() time.Time
	newToken func() string
	mu       sync.Mutex
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPolicy sets the conflict policy for Acquire.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		if p != "" {
			m.policy = p
		}
	}
}

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithTokenSource overrides token generation.
func WithTokenSource(source func() string) Option {
	return func(m *Manager) {
		if source != nil {
			m.newToken = source
		}
	}
}

// NewManager wraps store.
func NewManager(store Storage, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		policy:   PolicyRefuse,
		clock:    time.Now,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Policy returns the configured conflict policy.
func (m *Manager) Policy() Policy { return m.policy }

// Storage exposes the backing store so companion data can share it.
func (m *Manager) Storage() Storage { return m.store }

// Acquire records sessionID as the active session. Acquiring the session that
// already holds the lock returns the existing record unchanged.
func (m *Manager) Acquire(sessionID, categoryID string) (Record, error) {
	sessionID = strings.TrimSpace(sessionID)
	categoryID = strings.TrimSpace(categoryID)
	if sessionID == "" {
		return Record{}, fmt.Errorf("lock: session id is required")
	}
	if categoryID == "" {
		return Record{}, fmt.Errorf("lock: category id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok, err := m.load()
	if err != nil && !(errors.Is(err, ErrCorruptRecord) && m.policy == PolicyOverwrite) {
		return Record{}, err
	}
	if ok {
		if current.SessionID == sessionID && current.CategoryID == categoryID {
			return current, nil
		}
		if m.policy != PolicyOverwrite {
			return Record{}, fmt.Errorf("%w: session %s (%s)", ErrLockHeld, current.SessionID, current.CategoryID)
		}
	}
	record := Record{
		SessionID:  sessionID,
		CategoryID: categoryID,
		Token:      m.newToken(),
		AcquiredAt: m.clock().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return Record{}, fmt.Errorf("lock: encode record: %w", err)
	}
	if err := m.store.Set(RecordKey, data); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Release clears the stored record if it is still the one identified by
// held. It reports whether a record was removed.
func (m *Manager) Release(held Record) (bool, error) {
	if held.Token == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok, err := m.load()
	if err != nil || !ok {
		return false, err
	}
	if current.Token != held.Token {
		return false, nil
	}
	if err := m.store.Delete(RecordKey); err != nil {
		return false, err
	}
	return true, nil
}

// Peek returns the stored record without modifying it.
func (m *Manager) Peek() (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

// Holds reports whether held is still the active record.
func (m *Manager) Holds(held Record) (bool, error) {
	current, ok, err := m.Peek()
	if err != nil || !ok {
		return false, err
	}
	return held.Token != "" && current.Token == held.Token, nil
}

// ForceClear removes the record and every companion key regardless of owner.
// It backs the debug "clear session" affordance.
func (m *Manager) ForceClear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, key := range append([]string{RecordKey}, CompanionKeys...) {
		if err := m.store.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) load() (Record, bool, error) {
	data, ok, err := m.store.Get(RecordKey)
	if err != nil || !ok {
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if record.SessionID == "" {
		return Record{}, false, fmt.Errorf("%w: missing session id", ErrCorruptRecord)
	}
	return record, true, nil
}
