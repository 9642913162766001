package indexer

import (
	"encoding/json"
	"time"
)

// State is the indexer loop state.
type State int

const (
	// StateIdle means the loop was never started.
	StateIdle State = iota
	// StateRunning means the loop is polling.
	StateRunning
	// StateBackoff means the loop waits after a failed batch.
	StateBackoff
	// StateStopped is terminal: either Stop was called or retries were exhausted.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func stateNames() []string {
	return []string{
		StateIdle.String(),
		StateRunning.String(),
		StateBackoff.String(),
		StateStopped.String(),
	}
}

// Status is the operator-visible view of the loop.
type Status struct {
	State       State     `json:"state"`
	Cursor      uint64    `json:"lastProcessedBlock"`
	ChainHeight uint64    `json:"chainHeight"`
	Failures    int       `json:"consecutiveFailures"`
	LastError   string    `json:"lastError,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
