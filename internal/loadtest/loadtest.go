// Package loadtest drives the evidence pipeline with many concurrent
// recorders to check that attendance counters stay consistent and that
// recording latency stays low.
package loadtest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

// Fixture is a store populated with synthetic workers.
type Fixture struct {
	Session   *evidence.Session
	WorkerIDs []string
	Dates     []string
	Image     []byte
}

// LatencyStats captures performance metrics from a run.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalRecords int
	Errors       int
	Durations    []time.Duration
}

// NewFixture adds numWorkers workers to the session's store. Dates are the
// numDays days ending at end.
func NewFixture(ctx context.Context, sess *evidence.Session, numWorkers, numDays int, end time.Time) (*Fixture, error) {
	if sess == nil || sess.Store == nil {
		return nil, fmt.Errorf("session with a store is required")
	}
	if numWorkers <= 0 || numDays <= 0 {
		return nil, fmt.Errorf("workers and days must be > 0 (got %d, %d)", numWorkers, numDays)
	}

	img, err := sampleJPEG(64, 48)
	if err != nil {
		return nil, err
	}

	f := &Fixture{Session: sess, Image: img}
	for i := 0; i < numWorkers; i++ {
		w, err := evidence.AddWorker(ctx, sess, fmt.Sprintf("Load Worker %d", i), fmt.Sprintf("%08d", i), fmt.Sprintf("load-%04d", i))
		if err != nil {
			return nil, fmt.Errorf("failed to add worker %d: %w", i, err)
		}
		f.WorkerIDs = append(f.WorkerIDs, w.ID)
	}
	for d := numDays - 1; d >= 0; d-- {
		f.Dates = append(f.Dates, end.AddDate(0, 0, -d).Format(schema.DateLayout))
	}
	return f, nil
}

// RunConcurrentRecords simulates numDevices devices each recording
// recordsPerDevice random events. Devices overlap on purpose, so the same
// worker, day and event is recorded more than once.
func (f *Fixture) RunConcurrentRecords(ctx context.Context, numDevices, recordsPerDevice int) (*LatencyStats, error) {
	var wg sync.WaitGroup

	resultsChan := make(chan []time.Duration, numDevices)
	errorsChan := make(chan error, numDevices)

	for i := 0; i < numDevices; i++ {
		wg.Add(1)
		go func(device int) {
			defer wg.Done()

			// Deterministic per device for reproducibility
			rng := rand.New(rand.NewSource(int64(42 + device)))
			durations := make([]time.Duration, 0, recordsPerDevice)

			for j := 0; j < recordsPerDevice; j++ {
				req := evidence.Request{
					WorkerID:   f.WorkerIDs[rng.Intn(len(f.WorkerIDs))],
					Date:       f.Dates[rng.Intn(len(f.Dates))],
					Kind:       []schema.EventKind{schema.CheckIn, schema.CheckOut}[rng.Intn(2)],
					Image:      f.Image,
					Recognized: &schema.RecognizedFields{Text: "load"},
				}

				start := time.Now()
				_, err := evidence.RecordEvidence(ctx, f.Session, req)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("device %d record %d failed: %w", device, j, err)
					resultsChan <- durations
					return
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var firstErr error
	errorCount := 0
	for err := range errorsChan {
		errorCount++
		if firstErr == nil {
			firstErr = err
		}
	}

	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no records completed: %w", firstErr)
	}

	stats := computeLatencyStats(all)
	stats.Errors = errorCount
	return stats, firstErr
}

// VerifyCounters checks every worker's attendance against the evidence in
// the store: TotalAssists must equal the baseline plus the number of
// recorded events, and LastAssistance must be the latest recorded date.
func VerifyCounters(ctx context.Context, st *store.Store, baseline map[string]int) error {
	workers, err := st.Workers(ctx)
	if err != nil {
		return err
	}
	recs, err := st.EvidenceRecords(ctx)
	if err != nil {
		return err
	}

	events := make(map[string]int)
	latest := make(map[string]string)
	for _, r := range recs {
		events[r.WorkerID] += r.Events()
		if r.Date > latest[r.WorkerID] {
			latest[r.WorkerID] = r.Date
		}
	}

	for _, w := range workers {
		want := baseline[w.ID] + events[w.ID]
		if w.TotalAssists != want {
			return fmt.Errorf("worker %s: totalAssists = %d, want %d", w.ID, w.TotalAssists, want)
		}
		if d, ok := latest[w.ID]; ok && (w.LastAssistance == nil || *w.LastAssistance < d) {
			return fmt.Errorf("worker %s: lastAssistance behind latest evidence %s", w.ID, d)
		}
	}
	return nil
}

// Baseline returns the current TotalAssists of every worker.
func Baseline(ctx context.Context, st *store.Store) (map[string]int, error) {
	workers, err := st.Workers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(workers))
	for _, w := range workers {
		out[w.ID] = w.TotalAssists
	}
	return out, nil
}

func sampleJPEG(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("failed to encode sample image: %w", err)
	}
	return buf.Bytes(), nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalRecords: len(durations),
		Durations:    sorted,
	}
}

// WriteTo prints the statistics.
func (s *LatencyStats) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, `Latency Statistics:
  Total Records: %d
  Errors:        %d
  Min:           %v
  P50 (Median):  %v
  Mean:          %v
  P95:           %v
  P99:           %v
  Max:           %v
`, s.TotalRecords, s.Errors, s.Min, s.P50, s.Mean, s.P95, s.P99, s.Max)
	return int64(n), err
}
