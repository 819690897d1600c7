package schema

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for evidence keys and worker dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date, rejecting anything else.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// EventKind distinguishes the two attendance events of a day.
type EventKind string

const (
	CheckIn  EventKind = "check-in"
	CheckOut EventKind = "check-out"
)

// ParseEventKind accepts the canonical names plus short forms.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "check-in", "checkin", "in", "entrada":
		return CheckIn, nil
	case "check-out", "checkout", "out", "salida":
		return CheckOut, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// RecognizedFields is the advisory payload produced by text recognition.
type RecognizedFields struct {
	Text   string `json:"text,omitempty" yaml:"text,omitempty"`
	Date   string `json:"date,omitempty" yaml:"date,omitempty"`
	Amount string `json:"amount,omitempty" yaml:"amount,omitempty"`
}

// Empty reports whether recognition found nothing.
func (r *RecognizedFields) Empty() bool {
	return r == nil || (r.Text == "" && r.Date == "" && r.Amount == "")
}

// Slot holds the evidence for one event of the day.
type Slot struct {
	// Image is a data URL of the compacted JPEG.
	Image      string            `json:"image" yaml:"image"`
	Validated  bool              `json:"validated" yaml:"validated"`
	Recognized *RecognizedFields `json:"recognized,omitempty" yaml:"recognized,omitempty"`
	RecordedAt time.Time         `json:"recordedAt" yaml:"recordedAt"`
}

// EvidenceRecord is the per-day composite evidence of one worker.
type EvidenceRecord struct {
	ID       string    `json:"id" yaml:"id"`
	WorkerID string    `json:"workerId" yaml:"workerId"`
	Date     string    `json:"date" yaml:"date"`
	CheckIn  *Slot     `json:"checkIn" yaml:"checkIn"`
	CheckOut *Slot     `json:"checkOut" yaml:"checkOut"`
	Updated  time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// EvidenceKey returns the composite identity for a worker and date.
func EvidenceKey(workerID, date string) string {
	return workerID + "_" + date
}

// NewEvidenceRecord returns a record with both slots empty.
func NewEvidenceRecord(workerID, date string) *EvidenceRecord {
	return &EvidenceRecord{
		ID:       EvidenceKey(workerID, date),
		WorkerID: workerID,
		Date:     date,
	}
}

// RecordKey returns the store identity of the record.
func (e *EvidenceRecord) RecordKey() string {
	return e.ID
}

// Slot returns the slot for kind (nil when empty).
func (e *EvidenceRecord) Slot(kind EventKind) *Slot {
	switch kind {
	case CheckIn:
		return e.CheckIn
	case CheckOut:
		return e.CheckOut
	}
	return nil
}

// SetSlot fills the slot for kind and reports whether it was empty before.
func (e *EvidenceRecord) SetSlot(kind EventKind, s *Slot) (wasEmpty bool, err error) {
	switch kind {
	case CheckIn:
		wasEmpty = e.CheckIn == nil
		e.CheckIn = s
	case CheckOut:
		wasEmpty = e.CheckOut == nil
		e.CheckOut = s
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return wasEmpty, nil
}

// Events returns how many slots are filled.
func (e *EvidenceRecord) Events() int {
	n := 0
	if e.CheckIn != nil {
		n++
	}
	if e.CheckOut != nil {
		n++
	}
	return n
}

// Validate checks the identity rule of the composite shape.
func (e *EvidenceRecord) Validate() error {
	if e.WorkerID == "" {
		return fmt.Errorf("evidence %s: workerId is required", e.ID)
	}
	if _, err := ParseDate(e.Date); err != nil {
		return fmt.Errorf("evidence %s: %w", e.ID, err)
	}
	if want := EvidenceKey(e.WorkerID, e.Date); e.ID != want {
		return fmt.Errorf("evidence id %q does not match %q", e.ID, want)
	}
	return nil
}
