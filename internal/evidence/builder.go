// Package evidence builds and stores attendance evidence records.
//
// RecordEvidence is the single write path for evidence: it validates the
// request, compacts the image, optionally runs recognition and then upserts
// the per-day composite record and the worker's counters in one store
// transaction. After a successful write the session's mutation hook fires
// so the sync layer can schedule a push; the write never waits for it.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/attendsync/attendsync/internal/recognize"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

// Session carries the handles a recording operation works with. Callers
// build one explicitly and pass it to every operation; there is no package
// state.
type Session struct {
	// Store is the open record store. Required.
	Store *store.Store

	// Recognizer extracts advisory fields. Nil disables recognition.
	Recognizer recognize.Recognizer

	// Images bounds the stored image size. Zero value uses the defaults.
	Images ImageOptions

	// OnMutation is called after every committed write. It must not block.
	OnMutation func()

	// Logger for builder activity. Nil logs to stderr.
	Logger *log.Logger

	// Now is the clock used for timestamps. Nil uses time.Now.
	Now func() time.Time
}

var defaultLogger = log.New(os.Stderr, "[evidence] ", log.LstdFlags)

// logger never writes to s: a Session is shared by concurrent callers.
func (s *Session) logger() *log.Logger {
	if s.Logger == nil {
		return defaultLogger
	}
	return s.Logger
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Session) mutated() {
	if s.OnMutation != nil {
		s.OnMutation()
	}
}

// Request describes one attendance event to record.
type Request struct {
	WorkerID string
	Date     string
	Kind     schema.EventKind
	Image    []byte

	// Recognized, when set, is stored as is and recognition is skipped.
	Recognized *schema.RecognizedFields
}

// Validate checks the request before anything is decoded or stored.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.WorkerID) == "" {
		return schema.ErrMissingWorker
	}
	if strings.TrimSpace(r.Date) == "" {
		return schema.ErrMissingDate
	}
	if _, err := schema.ParseDate(r.Date); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrMissingDate, err)
	}
	if r.Kind != schema.CheckIn && r.Kind != schema.CheckOut {
		return fmt.Errorf("%w: %q", schema.ErrInvalidKind, r.Kind)
	}
	if len(r.Image) == 0 {
		return fmt.Errorf("%w: no image", schema.ErrInvalidImage)
	}
	return nil
}

// RecordEvidence stores the image as the req.Kind slot of the worker's
// record for req.Date, creating the record if needed.
//
// Filling an empty slot counts one attendance for the worker; replacing the
// image of a filled slot updates the record in place without counting again.
//
// Errors:
//   - schema.ErrValidation (missing worker/date, bad kind, bad image): nothing written
//   - schema.ErrUnknownWorker: the worker id is not in the store
//   - schema.ErrStorageUnavailable: the transaction failed and was rolled back
func RecordEvidence(ctx context.Context, sess *Session, req Request) (*schema.EvidenceRecord, error) {
	if sess == nil || sess.Store == nil {
		return nil, errors.New("evidence session has no store")
	}
	req.WorkerID = strings.TrimSpace(req.WorkerID)
	req.Date = strings.TrimSpace(req.Date)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	img, err := Compact(req.Image, sess.Images)
	if err != nil {
		return nil, err
	}

	fields := req.Recognized
	if fields == nil && sess.Recognizer != nil {
		fields = recognizeAdvisory(ctx, sess, img.JPEG)
	}

	now := sess.now()
	slot := &schema.Slot{
		Image:      img.DataURL(),
		Validated:  true,
		Recognized: fields,
		RecordedAt: now,
	}

	var rec *schema.EvidenceRecord
	err = sess.Store.Update(ctx, func(tx *store.Tx) error {
		worker, err := tx.GetWorker(ctx, req.WorkerID)
		if errors.Is(err, schema.ErrNotFound) {
			return fmt.Errorf("%w: %s", schema.ErrUnknownWorker, req.WorkerID)
		}
		if err != nil {
			return err
		}

		key := schema.EvidenceKey(req.WorkerID, req.Date)
		rec, err = tx.GetEvidence(ctx, key)
		if errors.Is(err, schema.ErrNotFound) {
			rec = schema.NewEvidenceRecord(req.WorkerID, req.Date)
		} else if err != nil {
			return err
		}

		wasEmpty, err := rec.SetSlot(req.Kind, slot)
		if err != nil {
			return err
		}
		rec.Updated = now

		if wasEmpty {
			worker.RecordAttendance(req.Date)
			if err := tx.Put(ctx, store.Workers, worker); err != nil {
				return err
			}
		}
		return tx.Put(ctx, store.Evidence, rec)
	})
	if err != nil {
		return nil, err
	}

	sess.logger().Printf("Recorded %s for %s on %s (%dx%d, %d bytes)",
		req.Kind, req.WorkerID, req.Date, img.Width, img.Height, len(img.JPEG))
	sess.mutated()
	return rec, nil
}

// recognizeAdvisory runs recognition and swallows every failure.
func recognizeAdvisory(ctx context.Context, sess *Session, jpeg []byte) (fields *schema.RecognizedFields) {
	defer func() {
		if r := recover(); r != nil {
			sess.logger().Printf("Recognition panicked, continuing without fields: %v", r)
			fields = nil
		}
	}()

	f, err := sess.Recognizer.Recognize(ctx, jpeg)
	if err != nil {
		if !errors.Is(err, schema.ErrRecognitionUnavailable) {
			err = fmt.Errorf("%w: %v", schema.ErrRecognitionUnavailable, err)
		}
		sess.logger().Printf("Recognition skipped: %v", err)
		return nil
	}
	if f.Empty() {
		return nil
	}
	return f
}

// AddWorker stores a new worker with zero attendance. An empty id is
// replaced by a generated one.
func AddWorker(ctx context.Context, sess *Session, name, employeeID, id string) (*schema.Worker, error) {
	if sess == nil || sess.Store == nil {
		return nil, errors.New("evidence session has no store")
	}
	if id == "" {
		id = schema.NewWorkerID()
	}
	w := &schema.Worker{
		ID:         strings.TrimSpace(id),
		Name:       strings.TrimSpace(name),
		EmployeeID: strings.TrimSpace(employeeID),
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrValidation, err)
	}

	err := sess.Store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetWorker(ctx, w.ID); err == nil {
			return fmt.Errorf("%w: worker %s already exists", schema.ErrValidation, w.ID)
		} else if !errors.Is(err, schema.ErrNotFound) {
			return err
		}
		return tx.Put(ctx, store.Workers, w)
	})
	if err != nil {
		return nil, err
	}

	sess.logger().Printf("Added worker %s (%s)", w.ID, w.Name)
	sess.mutated()
	return w, nil
}

// UpdateWorker changes a worker's name and employee id. Attendance counters
// are owned by RecordEvidence and are kept as stored.
func UpdateWorker(ctx context.Context, sess *Session, id, name, employeeID string) (*schema.Worker, error) {
	if sess == nil || sess.Store == nil {
		return nil, errors.New("evidence session has no store")
	}
	if strings.TrimSpace(id) == "" {
		return nil, schema.ErrMissingWorker
	}

	var w *schema.Worker
	err := sess.Store.Update(ctx, func(tx *store.Tx) error {
		var err error
		w, err = tx.GetWorker(ctx, id)
		if errors.Is(err, schema.ErrNotFound) {
			return fmt.Errorf("%w: %s", schema.ErrUnknownWorker, id)
		}
		if err != nil {
			return err
		}
		if name = strings.TrimSpace(name); name != "" {
			w.Name = name
		}
		if employeeID = strings.TrimSpace(employeeID); employeeID != "" {
			w.EmployeeID = employeeID
		}
		if err := w.Validate(); err != nil {
			return fmt.Errorf("%w: %v", schema.ErrValidation, err)
		}
		return tx.Put(ctx, store.Workers, w)
	})
	if err != nil {
		return nil, err
	}

	sess.logger().Printf("Updated worker %s", w.ID)
	sess.mutated()
	return w, nil
}

// DiscardLogger is a convenience for callers and tests that want silence.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
