package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/attendsync/attendsync/internal/gist"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

// fakeRemote keeps the remote dataset in memory and pushes whatever the
// store holds when Push starts.
type fakeRemote struct {
	st *store.Store

	mu      sync.Mutex
	data    *schema.Dataset
	pullErr error
	pushErr error
	pushes  int
	pulls   int
	delay   time.Duration

	inflight    int32
	maxInflight int32
}

func (f *fakeRemote) Push(ctx context.Context) (gist.Result, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		m := atomic.LoadInt32(&f.maxInflight)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxInflight, m, n) {
			break
		}
	}

	ds, err := f.st.Dataset(ctx)
	if err != nil {
		return gist.Result{Status: gist.StatusFailed}, err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if f.pushErr != nil {
		return gist.Result{Status: gist.StatusFailed, Attempts: 5, Error: f.pushErr.Error()}, f.pushErr
	}
	f.data = ds
	return gist.Result{Status: gist.StatusOK, Attempts: 1}, nil
}

func (f *fakeRemote) Pull(context.Context) (*schema.Dataset, gist.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.pullErr != nil {
		return nil, gist.Result{Status: gist.StatusFailed, Attempts: 1}, f.pullErr
	}
	ds := &schema.Dataset{}
	if f.data != nil {
		ds.Workers = append(ds.Workers, f.data.Workers...)
		ds.EvidenceRecords = append(ds.EvidenceRecords, f.data.EvidenceRecords...)
	}
	ds.Normalize()
	return ds, gist.Result{Status: gist.StatusOK, Attempts: 1}, nil
}

func (f *fakeRemote) counts() (pushes, pulls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes, f.pulls
}

func setup(t *testing.T, enabled bool) (*Driver, *store.Store, *fakeRemote) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "attend.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if enabled {
		if err := st.SaveSyncConfig(context.Background(), schema.SyncConfig{DocumentID: "doc", Credential: "tok"}); err != nil {
			t.Fatal(err)
		}
	}

	remote := &fakeRemote{st: st}
	d, err := NewWithConfig(st, remote, &Config{Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, st, remote
}

func putWorker(t *testing.T, st *store.Store, id string, assists int) {
	t.Helper()
	if err := st.PutWorker(context.Background(), &schema.Worker{ID: id, Name: "Worker " + id, TotalAssists: assists}); err != nil {
		t.Fatal(err)
	}
}

func workerIDs(t *testing.T, st *store.Store) []string {
	t.Helper()
	ws, err := st.Workers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(ws))
	for _, w := range ws {
		ids = append(ids, w.ID)
	}
	return ids
}

func flush(t *testing.T, d *Driver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
}

func TestLoad_DisabledSeedsDefaults(t *testing.T) {
	d, st, remote := setup(t, false)
	d.Start()

	if got := d.Status().State; got != Uninitialized {
		t.Errorf("initial state = %s, want uninitialized", got)
	}
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	st0 := d.Status()
	if st0.State != Ready || st0.SyncEnabled {
		t.Errorf("Status() = %+v, want ready with sync disabled", st0)
	}
	if got := len(workerIDs(t, st)); got != len(schema.DefaultWorkers()) {
		t.Errorf("seeded %d workers, want %d", got, len(schema.DefaultWorkers()))
	}
	if st0.Pending != 0 {
		t.Errorf("Pending = %d, seeding must not request a push", st0.Pending)
	}
	if pushes, pulls := remote.counts(); pushes != 0 || pulls != 0 {
		t.Errorf("pushes = %d, pulls = %d, want none", pushes, pulls)
	}
}

func TestLoad_KeepsExistingWorkers(t *testing.T) {
	d, st, _ := setup(t, false)
	putWorker(t, st, "W1", 5)

	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"W1"}, workerIDs(t, st)); diff != "" {
		t.Errorf("workers mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_PullReplacesLocal(t *testing.T) {
	d, st, remote := setup(t, true)
	putWorker(t, st, "W1", 5)
	if err := st.PutEvidence(context.Background(), schema.NewEvidenceRecord("W1", "2024-01-10")); err != nil {
		t.Fatal(err)
	}
	remote.data = &schema.Dataset{Workers: []schema.Worker{{ID: "W2", Name: "Luis", TotalAssists: 3}}}

	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if diff := cmp.Diff([]string{"W2"}, workerIDs(t, st)); diff != "" {
		t.Errorf("workers mismatch (-want +got):\n%s", diff)
	}
	n, _ := st.Count(context.Background(), store.Evidence)
	if n != 0 {
		t.Errorf("evidence count = %d, want 0 after replace", n)
	}
	s := d.Status()
	if !s.SyncEnabled || s.LastPull == nil || s.LastPull.Status != gist.StatusOK {
		t.Errorf("Status() = %+v", s)
	}
}

func TestLoad_PullFailureKeepsLocal(t *testing.T) {
	d, st, remote := setup(t, true)
	putWorker(t, st, "W1", 5)
	remote.pullErr = fmt.Errorf("%w: gave up", schema.ErrRemoteSyncFailed)

	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"W1"}, workerIDs(t, st)); diff != "" {
		t.Errorf("workers mismatch (-want +got):\n%s", diff)
	}
	s := d.Status()
	if s.State != Ready || s.LastError == "" || s.Suspended {
		t.Errorf("Status() = %+v, want ready with last error", s)
	}
}

func TestLoad_EmptyRemoteIsInitialized(t *testing.T) {
	d, st, remote := setup(t, true)
	putWorker(t, st, "W1", 5)
	d.Start()

	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	flush(t, d)

	if pushes, _ := remote.counts(); pushes != 1 {
		t.Fatalf("pushes = %d, want 1", pushes)
	}
	if len(remote.data.Workers) != 1 || remote.data.Workers[0].ID != "W1" {
		t.Errorf("remote workers = %+v", remote.data.Workers)
	}
}

func TestRemoteNotFoundSuspendsUntilReconfigure(t *testing.T) {
	d, st, remote := setup(t, true)
	putWorker(t, st, "W1", 5)
	remote.pullErr = fmt.Errorf("%w: GET /gists/doc", schema.ErrRemoteNotFound)
	d.Start()

	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := d.Status(); !s.Suspended || s.SyncEnabled {
		t.Fatalf("Status() = %+v, want suspended", s)
	}

	d.NotifyMutation()
	flush(t, d)
	if pushes, _ := remote.counts(); pushes != 0 {
		t.Errorf("pushes = %d while suspended, want 0", pushes)
	}

	remote.mu.Lock()
	remote.pullErr = nil
	remote.data = &schema.Dataset{Workers: []schema.Worker{{ID: "W1", Name: "Ana", TotalAssists: 5}}}
	remote.mu.Unlock()

	if err := d.Reconfigure(context.Background(), schema.SyncConfig{DocumentID: " doc2 ", Credential: "tok"}); err != nil {
		t.Fatalf("Reconfigure() failed: %v", err)
	}
	if s := d.Status(); s.Suspended || !s.SyncEnabled {
		t.Errorf("Status() after Reconfigure = %+v", s)
	}
	cfg, _ := st.SyncConfig(context.Background())
	if cfg.DocumentID != "doc2" {
		t.Errorf("DocumentID = %q, want trimmed doc2", cfg.DocumentID)
	}

	d.NotifyMutation()
	flush(t, d)
	if pushes, _ := remote.counts(); pushes != 1 {
		t.Errorf("pushes = %d after Reconfigure, want 1", pushes)
	}
}

func TestPushesAreSerialAndEndWithLatestState(t *testing.T) {
	d, st, remote := setup(t, true)
	remote.delay = 2 * time.Millisecond
	d.Start()
	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := &schema.Worker{ID: fmt.Sprintf("X%02d", i), Name: "Worker", TotalAssists: i}
			if err := st.PutWorker(context.Background(), w); err != nil {
				t.Error(err)
			}
			d.NotifyMutation()
		}(i)
	}
	wg.Wait()
	flush(t, d)

	if got := atomic.LoadInt32(&remote.maxInflight); got != 1 {
		t.Errorf("max concurrent pushes = %d, want 1", got)
	}
	pushes, _ := remote.counts()
	if pushes == 0 || pushes > n {
		t.Errorf("pushes = %d, want between 1 and %d", pushes, n)
	}

	local, err := st.Dataset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(local, remote.data); diff != "" {
		t.Errorf("remote differs from local (-local +remote):\n%s", diff)
	}
}

func TestPushFailureKeepsLocalData(t *testing.T) {
	d, st, remote := setup(t, true)
	d.Start()
	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	remote.mu.Lock()
	remote.pushErr = fmt.Errorf("%w: gave up after 5 attempts", schema.ErrRemoteSyncFailed)
	remote.mu.Unlock()

	putWorker(t, st, "W9", 1)
	d.NotifyMutation()
	flush(t, d)

	if _, err := st.GetWorker(context.Background(), "W9"); err != nil {
		t.Errorf("local write lost after failed push: %v", err)
	}
	s := d.Status()
	if s.LastPush == nil || s.LastPush.Status != gist.StatusFailed || s.LastError == "" {
		t.Errorf("Status() = %+v, want failed last push", s)
	}
	if s.State != Ready {
		t.Errorf("State = %s, want ready", s.State)
	}
}

func TestPush_Synchronous(t *testing.T) {
	d, st, remote := setup(t, true)
	putWorker(t, st, "W1", 5)

	d.NotifyMutation()
	res, err := d.Push(context.Background())
	if err != nil || res.Status != gist.StatusOK {
		t.Fatalf("Push() = %+v, %v", res, err)
	}
	if s := d.Status(); s.Pending != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending)
	}
	if pushes, _ := remote.counts(); pushes != 1 {
		t.Errorf("pushes = %d, want 1", pushes)
	}
}

func TestPush_WithoutLoadUploadsLocalOnlyRecords(t *testing.T) {
	d, st, remote := setup(t, true)
	putWorker(t, st, "remoteW", 1)
	putWorker(t, st, "offlineW", 2)
	remote.data = &schema.Dataset{Workers: []schema.Worker{{ID: "remoteW", Name: "Worker remoteW", TotalAssists: 1}}}

	res, err := d.Push(context.Background())
	if err != nil || res.Status != gist.StatusOK {
		t.Fatalf("Push() = %+v, %v", res, err)
	}

	remote.mu.Lock()
	var got []string
	for _, w := range remote.data.Workers {
		got = append(got, w.ID)
	}
	remote.mu.Unlock()

	want := []string{"remoteW", "offlineW"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("remote workers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"remoteW", "offlineW"}, workerIDs(t, st)); diff != "" {
		t.Errorf("local workers changed (-want +got):\n%s", diff)
	}
	if _, pulls := remote.counts(); pulls != 0 {
		t.Errorf("pulls = %d, want 0", pulls)
	}
}

func TestFlush_NotRunning(t *testing.T) {
	d, _, _ := setup(t, true)
	d.NotifyMutation()

	if err := d.Flush(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Flush() error = %v, want ErrNotRunning", err)
	}
}

func TestSubscribe(t *testing.T) {
	d, _, _ := setup(t, true)
	d.Start()

	ch, unsubscribe := d.Subscribe()
	first := <-ch
	if first.State != Uninitialized {
		t.Errorf("first status = %s, want uninitialized", first.State)
	}

	if err := d.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	d.NotifyMutation()
	flush(t, d)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.State == Ready && s.LastPush != nil {
				unsubscribe()
				for range ch {
				}
				return
			}
		case <-deadline:
			t.Fatal("never observed a ready status with a push result")
		}
	}
}
