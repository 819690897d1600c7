package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/gist"
	"github.com/attendsync/attendsync/internal/recognize"
	"github.com/attendsync/attendsync/internal/reconcile"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
	"github.com/attendsync/attendsync/internal/ui"
)

// flushTimeout covers the full retry budget of one push (1+2+4+8+16s)
// plus request time.
const flushTimeout = 90 * time.Second

// app bundles the handles every command works with.
type app struct {
	store   *store.Store
	remote  *gist.Client
	driver  *reconcile.Driver
	session *evidence.Session
}

// openApp opens the store and wires the sync client, driver and evidence
// session from the loaded configuration.
func openApp(ctx context.Context) (*app, error) {
	st, err := store.OpenContext(ctx, cfg.DB.Path)
	if err != nil {
		return nil, err
	}

	seed := schema.DefaultWorkers
	if cfg.Seed.File != "" {
		workers, err := schema.LoadSeedFile(cfg.Seed.File)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		seed = func() []schema.Worker { return append([]schema.Worker(nil), workers...) }
	}

	remote := gist.New(st, gist.Config{
		APIURL:      cfg.Gist.APIURL,
		Filename:    cfg.Gist.Filename,
		Description: cfg.Gist.Description,
		Logger:      sink.Logger("sync"),
	})

	driver, err := reconcile.NewWithConfig(st, remote, &reconcile.Config{
		SeedWorkers: seed,
		Logger:      sink.Logger("driver"),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var rec recognize.Recognizer
	if cfg.Recognize.Enabled {
		rec = recognize.NewVision(recognize.VisionConfig{
			APIKey: cfg.Recognize.APIKey,
			Model:  cfg.Recognize.Model,
			Logger: sink.Logger("recognize"),
		})
	}

	sess := &evidence.Session{
		Store:      st,
		Recognizer: rec,
		Images:     evidence.ImageOptions{MaxEdge: cfg.Image.MaxEdge, Quality: cfg.Image.Quality},
		OnMutation: driver.NotifyMutation,
		Logger:     sink.Logger("evidence"),
	}

	return &app{store: st, remote: remote, driver: driver, session: sess}, nil
}

// mustOpen opens the app, starts the push worker and runs the startup load.
func mustOpen(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		fatal("%v", err)
	}
	a.driver.Start()
	if err := a.driver.Load(ctx); err != nil {
		a.close()
		fatal("failed to load data: %v", err)
	}
	return a
}

// finish waits for queued pushes and reports the sync state.
func (a *app) finish(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := a.driver.Flush(ctx); err != nil && !errors.Is(err, reconcile.ErrNotRunning) {
		fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), err)
	}
	fmt.Println(ui.SyncIndicator(a.driver.Status()))
}

func (a *app) close() {
	_ = a.driver.Close()
	_ = a.store.Close()
}
