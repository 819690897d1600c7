package gist

import (
	"context"
	"time"

	"github.com/attendsync/attendsync/internal/schema"
)

// Status is the outcome of one sync operation.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes a finished push or pull.
type Result struct {
	Status   Status    `json:"status"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

// Remote moves the whole dataset between the local store and the shared
// remote document.
//
// Both operations read the sync configuration from the store on every call,
// so a reconfiguration takes effect on the next operation without rebuilding
// the client. When sync is disabled they return a StatusSkipped result and a
// nil error.
type Remote interface {
	// Push replaces the remote document with the current local dataset.
	//
	// Returns schema.ErrRemoteNotFound (one attempt) when the document
	// does not exist, or schema.ErrRemoteSyncFailed after the retry budget
	// is exhausted. Local data is never modified.
	//
	// Example:
	//   res, err := remote.Push(ctx)
	Push(ctx context.Context) (Result, error)

	// Pull downloads the remote dataset.
	//
	// A document without the dataset file yields an empty, non-nil dataset.
	// Errors follow Push.
	//
	// Example:
	//   ds, res, err := remote.Pull(ctx)
	Pull(ctx context.Context) (*schema.Dataset, Result, error)
}

// Sleeper waits between retry attempts.
type Sleeper interface {
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealSleeper waits on a timer.
var RealSleeper Sleeper = timerSleeper{}
