package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Worker is a person whose attendance is tracked.
type Worker struct {
	ID   string `json:"id" yaml:"id" toml:"id"`
	Name string `json:"name" yaml:"name" toml:"name"`

	// EmployeeID is the national or employee identifier shown next to the name.
	EmployeeID string `json:"dni" yaml:"dni" toml:"dni"`

	// TotalAssists counts attendance events attributed to this worker.
	TotalAssists int `json:"totalAssists" yaml:"totalAssists" toml:"totalAssists"`

	// LastAssistance is the most recent attendance date (YYYY-MM-DD), nil if none.
	LastAssistance *string `json:"lastAssistance" yaml:"lastAssistance" toml:"lastAssistance,omitempty"`
}

// RecordKey returns the store identity of the worker.
func (w *Worker) RecordKey() string {
	return w.ID
}

// Validate checks that the worker is well formed.
func (w *Worker) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("worker id is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("worker %s: name is required", w.ID)
	}
	if w.TotalAssists < 0 {
		return fmt.Errorf("worker %s: totalAssists must be >= 0 (got %d)", w.ID, w.TotalAssists)
	}
	if w.LastAssistance != nil {
		if _, err := ParseDate(*w.LastAssistance); err != nil {
			return fmt.Errorf("worker %s: %w", w.ID, err)
		}
	}
	return nil
}

// RecordAttendance bumps the attendance count and moves LastAssistance
// forward to date. An older date never replaces a newer one.
func (w *Worker) RecordAttendance(date string) {
	w.TotalAssists++
	if w.LastAssistance == nil || *w.LastAssistance <= date {
		d := date
		w.LastAssistance = &d
	}
}

// NewWorkerID returns a fresh identity for a worker created locally.
func NewWorkerID() string {
	return "w-" + uuid.NewString()[:8]
}
