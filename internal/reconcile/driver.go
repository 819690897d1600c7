// Package reconcile keeps the local store and the remote document in step.
//
// The Driver:
//  1. Pulls the remote dataset at startup and replaces local data with it
//  2. Seeds default workers when the store has none
//  3. Pushes the full local dataset after every local mutation, serially
//  4. Publishes its status to subscribers (the UI sync indicator)
//
// Pushes are requested with NotifyMutation and drained by one background
// worker. Requests that arrive while a push is running coalesce into a
// single follow-up push that snapshots the store when it starts, so the last
// push to finish always carries the latest local state.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/attendsync/attendsync/internal/gist"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

// State is the lifecycle state of the driver.
type State string

const (
	Uninitialized State = "uninitialized"
	Loading       State = "loading"
	Ready         State = "ready"
	Pushing       State = "pushing"
)

// ErrNotRunning is returned by Flush when no worker drains the queue.
var ErrNotRunning = errors.New("reconcile: driver is not running")

// Status is a snapshot of the driver for status displays.
type Status struct {
	State State `json:"state"`

	// SyncEnabled is true when a sync configuration is present and the
	// remote document has not been reported missing.
	SyncEnabled bool `json:"syncEnabled"`

	// Suspended is set after the remote answered 404. It clears on
	// Reconfigure.
	Suspended bool `json:"suspended"`

	// Pending counts push requests not yet drained.
	Pending int `json:"pending"`

	LastPush  *gist.Result `json:"lastPush,omitempty"`
	LastPull  *gist.Result `json:"lastPull,omitempty"`
	LastError string       `json:"lastError,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Config holds configuration for the driver.
type Config struct {
	// SeedWorkers returns the workers written into an empty store.
	SeedWorkers func() []schema.Worker

	// Logger for driver activity
	Logger *log.Logger

	// Now is the clock used for status timestamps.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SeedWorkers: schema.DefaultWorkers,
		Logger:      log.New(os.Stderr, "[driver] ", log.LstdFlags),
		Now:         time.Now,
	}
}

// Driver reconciles the store with a remote.
type Driver struct {
	store  *store.Store
	remote gist.Remote
	config *Config

	// syncMu serializes Load and pushes.
	syncMu sync.Mutex

	mu        sync.Mutex
	status    Status
	loaded    bool
	requested uint64
	completed uint64
	drained   chan struct{} // closed and replaced whenever completed moves
	subs      map[int]chan Status
	nextSub   int

	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a driver with the default configuration.
func New(st *store.Store, remote gist.Remote) (*Driver, error) {
	return NewWithConfig(st, remote, DefaultConfig())
}

// NewWithConfig creates a driver with custom configuration.
func NewWithConfig(st *store.Store, remote gist.Remote, config *Config) (*Driver, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.SeedWorkers == nil {
		config.SeedWorkers = def.SeedWorkers
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Now == nil {
		config.Now = def.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		store:   st,
		remote:  remote,
		config:  config,
		status:  Status{State: Uninitialized},
		drained: make(chan struct{}),
		subs:    make(map[int]chan Status),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the push worker. It returns immediately.
func (d *Driver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.wg.Add(1)
	go d.worker()
}

// Run starts the push worker and blocks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	d.Start()
	select {
	case <-ctx.Done():
	case <-d.ctx.Done():
	}
	return d.Close()
}

// Close stops the push worker. A push in flight is cancelled; requests still
// queued are dropped. Call Flush first to drain them.
func (d *Driver) Close() error {
	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	// Wake Flush callers so they observe the stop.
	close(d.drained)
	d.drained = make(chan struct{})
	d.mu.Unlock()
	return nil
}

// Load performs the startup reconciliation.
//
// If sync is enabled the remote dataset is pulled and replaces both local
// collections. Unpushed local edits are discarded in that case. If the pull
// fails, or sync is disabled, local data is kept. A store without workers is
// then seeded with the default workers.
//
// Only storage failures are returned; remote failures are reported through
// Status.
func (d *Driver) Load(ctx context.Context) error {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	d.update(func(s *Status) { s.State = Loading })
	d.config.Logger.Println("Loading")

	if err := d.load(ctx); err != nil {
		d.update(func(s *Status) {
			s.State = Uninitialized
			s.LastError = err.Error()
		})
		return err
	}

	d.mu.Lock()
	d.loaded = true
	pending := d.requested > d.completed
	d.mu.Unlock()

	d.update(func(s *Status) { s.State = Ready })
	d.config.Logger.Println("Ready")
	if pending {
		d.signal()
	}
	return nil
}

func (d *Driver) load(ctx context.Context) error {
	cfg, err := d.store.SyncConfig(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	suspended := d.status.Suspended
	d.mu.Unlock()

	d.update(func(s *Status) { s.SyncEnabled = cfg.Enabled() && !suspended })

	if cfg.Enabled() && !suspended {
		d.pull(ctx)
	} else {
		d.config.Logger.Println("Sync disabled, using local data")
	}

	return d.seed(ctx)
}

// pull fetches the remote dataset and applies it. Failures keep local data.
func (d *Driver) pull(ctx context.Context) {
	ds, res, err := d.remote.Pull(ctx)
	d.update(func(s *Status) { s.LastPull = &res })

	switch {
	case errors.Is(err, schema.ErrRemoteNotFound):
		d.suspend(err)
		return
	case err != nil:
		d.config.Logger.Printf("Pull failed, keeping local data: %v", err)
		d.update(func(s *Status) { s.LastError = err.Error() })
		return
	case ds == nil:
		return
	case ds.Empty():
		// A remote that has never been written; publish local data to it.
		d.config.Logger.Println("Remote document is empty, keeping local data")
		d.request()
		return
	}

	d.mu.Lock()
	target := d.requested
	d.mu.Unlock()

	if err := d.store.ReplaceDataset(ctx, ds); err != nil {
		d.config.Logger.Printf("Failed to apply remote dataset, keeping local data: %v", err)
		d.update(func(s *Status) { s.LastError = err.Error() })
		return
	}
	d.config.Logger.Printf("Loaded %d workers and %d evidence records from remote",
		len(ds.Workers), len(ds.EvidenceRecords))

	// Local state now equals the remote; earlier requests have nothing to add.
	d.complete(target)
	d.update(func(s *Status) { s.LastError = "" })
}

// seed writes the default workers into an empty store. It does not request a
// push.
func (d *Driver) seed(ctx context.Context) error {
	n, err := d.store.Count(ctx, store.Workers)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	workers := d.config.SeedWorkers()
	err = d.store.Update(ctx, func(tx *store.Tx) error {
		for i := range workers {
			if err := tx.Put(ctx, store.Workers, &workers[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.config.Logger.Printf("Seeded %d default workers", len(workers))
	return nil
}

// Reconfigure stores a new sync configuration and reloads. It is the only
// way to resume sync after the remote was reported missing.
func (d *Driver) Reconfigure(ctx context.Context, cfg schema.SyncConfig) error {
	cfg.DocumentID = strings.TrimSpace(cfg.DocumentID)
	cfg.Credential = strings.TrimSpace(cfg.Credential)
	if err := d.store.SaveSyncConfig(ctx, cfg); err != nil {
		return err
	}
	d.update(func(s *Status) {
		s.Suspended = false
		s.LastError = ""
	})
	d.config.Logger.Printf("Sync configuration updated (document %q)", cfg.DocumentID)
	return d.Load(ctx)
}

// NotifyMutation requests a push of the current local state. It never
// blocks; the push runs on the background worker.
func (d *Driver) NotifyMutation() {
	d.request()
	d.signal()
}

// Push runs one push synchronously, absorbing every request queued so far.
// Unlike the background worker it does not wait for Load, so it uploads
// whatever the store holds, including records the remote has never seen.
func (d *Driver) Push(ctx context.Context) (gist.Result, error) {
	d.mu.Lock()
	target := d.requested
	d.mu.Unlock()

	res, err := d.push(ctx)
	d.complete(target)
	return res, err
}

// Flush waits until every push requested before the call has finished.
func (d *Driver) Flush(ctx context.Context) error {
	d.mu.Lock()
	target := d.requested
	for d.completed < target {
		if !d.running {
			d.mu.Unlock()
			return ErrNotRunning
		}
		ch := d.drained
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
		d.mu.Lock()
	}
	d.mu.Unlock()
	return nil
}

// Status returns the current status.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

// Subscribe returns a channel receiving the latest status after every
// change. Slow readers only see the most recent value. Call the returned
// function to unsubscribe.
func (d *Driver) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	ch <- d.snapshot()
	d.mu.Unlock()

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
}

// worker drains push requests one at a time.
func (d *Driver) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			target := d.requested
			ready := d.loaded && target > d.completed
			d.mu.Unlock()
			if !ready || d.ctx.Err() != nil {
				break
			}

			if _, err := d.push(d.ctx); err != nil && d.ctx.Err() != nil {
				return
			}
			d.complete(target)
		}
	}
}

// push sends the current store contents. Failures never touch local data.
func (d *Driver) push(ctx context.Context) (gist.Result, error) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	d.mu.Lock()
	suspended := d.status.Suspended
	d.mu.Unlock()
	if suspended {
		res := gist.Result{Status: gist.StatusSkipped, At: d.config.Now().UTC()}
		return res, nil
	}

	d.update(func(s *Status) { s.State = Pushing })
	res, err := d.remote.Push(ctx)
	d.update(func(s *Status) {
		s.State = Ready
		s.LastPush = &res
		if err == nil && res.Status == gist.StatusOK {
			s.LastError = ""
		}
	})

	switch {
	case errors.Is(err, schema.ErrRemoteNotFound):
		d.suspend(err)
	case err != nil:
		d.config.Logger.Printf("Push failed: %v", err)
		d.update(func(s *Status) { s.LastError = err.Error() })
	}
	return res, err
}

// suspend stops all sync until Reconfigure.
func (d *Driver) suspend(err error) {
	d.config.Logger.Printf("Remote document not found, sync suspended until reconfigured: %v", err)
	d.update(func(s *Status) {
		s.Suspended = true
		s.SyncEnabled = false
		s.LastError = err.Error()
	})
}

func (d *Driver) request() {
	d.mu.Lock()
	d.requested++
	d.mu.Unlock()
	d.publish()
}

func (d *Driver) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// complete marks every request up to target as drained.
func (d *Driver) complete(target uint64) {
	d.mu.Lock()
	if target > d.completed {
		d.completed = target
		close(d.drained)
		d.drained = make(chan struct{})
	}
	d.mu.Unlock()
	d.publish()
}

func (d *Driver) update(fn func(s *Status)) {
	d.mu.Lock()
	fn(&d.status)
	d.status.UpdatedAt = d.config.Now().UTC()
	d.mu.Unlock()
	d.publish()
}

func (d *Driver) snapshot() Status {
	s := d.status
	s.Pending = int(d.requested - d.completed)
	return s
}

// publish delivers the current status to every subscriber, replacing any
// value a subscriber has not read yet.
func (d *Driver) publish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.snapshot()
	for _, ch := range d.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
