package license

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is the canonical license status vocabulary. Transitions are
// owned exclusively by the Guard.
type Status string

const (
	// StatusAbsent means no license key has ever been activated
	StatusAbsent Status = "absent"
	// StatusActive means the last successful server validation returned
	// valid and activated for this domain
	StatusActive Status = "active"
	// StatusExpired means the license passed its expiry date or the
	// server signaled expiry
	StatusExpired Status = "expired"
	// StatusInvalid means the server definitively rejected the key
	StatusInvalid Status = "invalid"
	// StatusInactive means the license is valid but not activated here,
	// or the grace period ran out
	StatusInactive Status = "inactive"
)

// terminal reports whether the status is a negative terminal state
// eligible for automatic re-activation.
func (s Status) terminal() bool {
	return s == StatusExpired || s == StatusInvalid || s == StatusInactive
}

// Data holds the license details returned by the server
type Data struct {
	Status      string       `json:"status,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Activations *Activations `json:"activations,omitempty"`
	Product     string       `json:"product,omitempty"`
	Package     string       `json:"package,omitempty"`
}

// Activations describes the activation limit usage for a key
type Activations struct {
	Limit int `json:"limit"`
	Used  int `json:"used"`
}

// State is the persisted license state. status=active requires a key and
// a prior successful server validation.
type State struct {
	Key            string     `json:"key,omitempty"`
	Status         Status     `json:"status"`
	Data           *Data      `json:"data,omitempty"`
	LastCheckAt    time.Time  `json:"last_check_at,omitempty"`
	GraceStartedAt *time.Time `json:"grace_period_started_at,omitempty"`
}

// StateStore persists license state to a JSON file under the data dir
type StateStore struct {
	path string
	mu   sync.Mutex
}

// NewStateStore creates a store backed by the given file path
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load reads the persisted state. A missing file is not an error; it
// yields the absent state.
func (s *StateStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{Status: StatusAbsent}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read license state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to parse license state: %w", err)
	}
	if state.Status == "" {
		state.Status = StatusAbsent
	}
	return state, nil
}

// Save writes the state atomically with restricted permissions
func (s *StateStore) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal license state: %w", err)
	}

	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create license state dir: %w", err)
		}
	}
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write license state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace license state: %w", err)
	}
	return nil
}

// Clear removes the persisted state (explicit deactivation)
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove license state: %w", err)
	}
	return nil
}
