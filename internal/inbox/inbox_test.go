package inbox

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 12, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testInbox(t *testing.T) (*Inbox, *store.Store, string) {
	t.Helper()
	tmp := t.TempDir()
	st, err := store.Open(filepath.Join(tmp, "attend.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.PutWorker(context.Background(), &schema.Worker{ID: "W1", Name: "Ana"}); err != nil {
		t.Fatal(err)
	}

	quiet := log.New(io.Discard, "", 0)
	dir := filepath.Join(tmp, "inbox")
	in, err := New(&evidence.Session{Store: st, Logger: quiet}, Config{
		Dir:              dir,
		DebounceInterval: 20 * time.Millisecond,
		Logger:           quiet,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return in, st, dir
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name               string
		worker, date, kind string
		wantErr            error
	}{
		{"W1_2024-01-10_in.jpg", "W1", "2024-01-10", "check-in", nil},
		{"W1_2024-01-10_OUT.PNG", "W1", "2024-01-10", "check-out", nil},
		{"w_a_b_2024-02-29_salida.webp", "w_a_b", "2024-02-29", "check-out", nil},
		{"/abs/dir/W2_2024-03-01_entrada.jpeg", "W2", "2024-03-01", "check-in", nil},
		{"W1_2024-01-10.jpg", "", "", "", schema.ErrValidation},
		{"W1_2024-13-10_in.jpg", "", "", "", schema.ErrMissingDate},
		{"W1_2024-01-10_lunch.jpg", "", "", "", schema.ErrInvalidKind},
		{"_2024-01-10_in.jpg", "", "", "", schema.ErrMissingWorker},
		{"W1_2024-01-10_in.txt", "", "", "", schema.ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, d, k, err := ParseName(tt.name)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseName() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseName() failed: %v", err)
			}
			if w != tt.worker || d != tt.date || string(k) != tt.kind {
				t.Errorf("ParseName() = %q, %q, %q; want %q, %q, %q", w, d, k, tt.worker, tt.date, tt.kind)
			}
		})
	}
}

func TestProcessFile_Success(t *testing.T) {
	in, st, dir := testInbox(t)
	path := filepath.Join(dir, "W1_2024-01-10_in.png")
	if err := os.WriteFile(path, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := in.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile() failed: %v", err)
	}
	if rec.ID != "W1_2024-01-10" || rec.CheckIn == nil {
		t.Errorf("ProcessFile() = %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(dir, ProcessedDir, "W1_2024-01-10_in.png")); err != nil {
		t.Errorf("file not moved to processed/: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still in inbox")
	}
	w, _ := st.GetWorker(context.Background(), "W1")
	if w.TotalAssists != 1 {
		t.Errorf("TotalAssists = %d, want 1", w.TotalAssists)
	}
}

func TestProcessFile_FailureMovesToFailed(t *testing.T) {
	in, st, dir := testInbox(t)
	path := filepath.Join(dir, "W9_2024-01-10_in.png")
	if err := os.WriteFile(path, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := in.ProcessFile(context.Background(), path); !errors.Is(err, schema.ErrUnknownWorker) {
		t.Fatalf("ProcessFile() error = %v, want ErrUnknownWorker", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FailedDir, "W9_2024-01-10_in.png")); err != nil {
		t.Errorf("file not moved to failed/: %v", err)
	}
	n, _ := st.Count(context.Background(), store.Evidence)
	if n != 0 {
		t.Errorf("evidence count = %d, want 0", n)
	}
}

func TestScan(t *testing.T) {
	in, _, dir := testInbox(t)
	files := map[string][]byte{
		"W1_2024-01-10_in.png":  pngBytes(t),
		"W1_2024-01-10_out.png": pngBytes(t),
		"W1_2024-01-11_in.png":  []byte("broken"),
		"notes.txt":             []byte("ignored"),
	}
	for name, b := range files {
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ok, failed, err := in.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if ok != 2 || failed != 1 {
		t.Errorf("Scan() = %d ok, %d failed; want 2, 1", ok, failed)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("non-image file should stay in place")
	}
}

func TestRun_WatchesNewFiles(t *testing.T) {
	in, st, dir := testInbox(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	tmp := filepath.Join(t.TempDir(), "drop.png")
	if err := os.WriteFile(tmp, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "W1_2024-01-10_out.png")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rec, err := st.GetEvidence(context.Background(), "W1_2024-01-10"); err == nil && rec.CheckOut != nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() returned %v", err)
	}

	rec, err := st.GetEvidence(context.Background(), "W1_2024-01-10")
	if err != nil {
		t.Fatalf("dropped file was not recorded: %v", err)
	}
	if rec.CheckOut == nil {
		t.Error("check-out slot empty")
	}
}

func TestFileWatcher_StartStop(t *testing.T) {
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	if err := fw.Start(t.TempDir()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}
	if err := fw.Start(t.TempDir()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
}
