// Package inbox records evidence from image files dropped into a directory.
//
// File names carry the event:
//
//	<workerId>_<YYYY-MM-DD>_<in|out>.<jpg|jpeg|png|gif|bmp|webp>
//
// e.g. W1_2024-01-10_in.jpg. Each file is recorded through the evidence
// builder and then moved to processed/ on success or failed/ otherwise, so a
// file is never recorded twice.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/schema"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Config holds configuration for the inbox.
type Config struct {
	// Dir is the watched directory. Required.
	Dir string

	// DebounceInterval is how long a file must stay quiet before it is
	// processed. Writers often emit several events per file.
	DebounceInterval time.Duration

	// Logger for inbox activity
	Logger *log.Logger
}

// Inbox turns dropped files into evidence records.
type Inbox struct {
	sess   *evidence.Session
	config Config

	queue   map[string]time.Time // path -> last event
	queueMu sync.Mutex

	// procMu serializes file processing between the ticker and Scan.
	procMu sync.Mutex
}

// New creates the inbox directories and returns an Inbox.
func New(sess *evidence.Session, config Config) (*Inbox, error) {
	if sess == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("inbox dir cannot be empty")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[inbox] ", log.LstdFlags)
	}
	for _, d := range []string{config.Dir, filepath.Join(config.Dir, ProcessedDir), filepath.Join(config.Dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return &Inbox{
		sess:   sess,
		config: config,
		queue:  make(map[string]time.Time),
	}, nil
}

// ParseName extracts the worker, date and event kind from a dropped file
// name.
func ParseName(name string) (workerID, date string, kind schema.EventKind, err error) {
	base := filepath.Base(name)
	if !IsImageFile(base) {
		return "", "", "", fmt.Errorf("%w: %s is not an image file", schema.ErrInvalidImage, base)
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("%w: %s: want <worker>_<YYYY-MM-DD>_<in|out>", schema.ErrValidation, base)
	}
	n := len(parts)
	kind, err = schema.ParseEventKind(parts[n-1])
	if err != nil {
		return "", "", "", err
	}
	date = parts[n-2]
	if _, err := schema.ParseDate(date); err != nil {
		return "", "", "", fmt.Errorf("%w: %v", schema.ErrMissingDate, err)
	}
	workerID = strings.Join(parts[:n-2], "_")
	if workerID == "" {
		return "", "", "", schema.ErrMissingWorker
	}
	return workerID, date, kind, nil
}

// ProcessFile records one file and moves it out of the inbox.
func (in *Inbox) ProcessFile(ctx context.Context, path string) (*schema.EvidenceRecord, error) {
	in.procMu.Lock()
	defer in.procMu.Unlock()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// Already handled by an earlier event.
		return nil, nil
	}

	rec, err := in.record(ctx, path)
	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		in.config.Logger.Printf("Failed to record %s: %v", filepath.Base(path), err)
	} else {
		in.config.Logger.Printf("Recorded %s as %s", filepath.Base(path), rec.ID)
	}

	if mvErr := in.move(path, dest); mvErr != nil {
		in.config.Logger.Printf("Failed to move %s to %s: %v", filepath.Base(path), dest, mvErr)
		if err == nil {
			err = mvErr
		}
	}
	return rec, err
}

func (in *Inbox) record(ctx context.Context, path string) (*schema.EvidenceRecord, error) {
	workerID, date, kind, err := ParseName(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return evidence.RecordEvidence(ctx, in.sess, evidence.Request{
		WorkerID: workerID,
		Date:     date,
		Kind:     kind,
		Image:    raw,
	})
}

// move renames path into the sub directory, adding a timestamp when the
// name is taken.
func (in *Inbox) move(path, sub string) error {
	base := filepath.Base(path)
	dest := filepath.Join(in.config.Dir, sub, base)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(base)
		dest = filepath.Join(in.config.Dir, sub,
			fmt.Sprintf("%s.%d%s", strings.TrimSuffix(base, ext), time.Now().UnixNano(), ext))
	}
	return os.Rename(path, dest)
}

// Scan processes every image already sitting in the inbox.
func (in *Inbox) Scan(ctx context.Context) (ok, failed int, err error) {
	entries, err := os.ReadDir(in.config.Dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return ok, failed, ctx.Err()
		}
		if _, err := in.ProcessFile(ctx, filepath.Join(in.config.Dir, e.Name())); err != nil {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed, nil
}

// Run scans the inbox, then watches it until ctx is cancelled.
func (in *Inbox) Run(ctx context.Context) error {
	if ok, failed, err := in.Scan(ctx); err != nil {
		return err
	} else if ok+failed > 0 {
		in.config.Logger.Printf("Initial scan: %d recorded, %d failed", ok, failed)
	}

	fw, err := NewFileWatcher()
	if err != nil {
		return err
	}
	if err := fw.Start(in.config.Dir); err != nil {
		_ = fw.Stop()
		return err
	}
	defer fw.Stop()
	in.config.Logger.Printf("Watching: %s", in.config.Dir)

	ticker := time.NewTicker(in.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case path, ok := <-fw.Events():
			if !ok {
				return nil
			}
			in.queueChange(path)

		case err, ok := <-fw.Errors():
			if !ok {
				return nil
			}
			in.config.Logger.Printf("Watcher error: %v", err)

		case <-ticker.C:
			in.processPending(ctx)
		}
	}
}

func (in *Inbox) queueChange(path string) {
	in.queueMu.Lock()
	defer in.queueMu.Unlock()
	in.queue[path] = time.Now()
}

// processPending handles files that have been quiet for a debounce interval.
func (in *Inbox) processPending(ctx context.Context) {
	now := time.Now()

	in.queueMu.Lock()
	var ready []string
	for path, queuedAt := range in.queue {
		if now.Sub(queuedAt) < in.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(in.queue, path)
	}
	in.queueMu.Unlock()

	for _, path := range ready {
		_, _ = in.ProcessFile(ctx, path)
	}
}
