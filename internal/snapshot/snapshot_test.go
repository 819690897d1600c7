package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "attend.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleDataset() *schema.Dataset {
	last := "2024-01-10"
	rec := schema.NewEvidenceRecord("W1", "2024-01-10")
	at := time.Date(2024, 1, 10, 8, 30, 0, 0, time.UTC)
	_, _ = rec.SetSlot(schema.CheckIn, &schema.Slot{
		Image:      "data:image/jpeg;base64,AAAA",
		Validated:  true,
		Recognized: &schema.RecognizedFields{Date: "2024-01-10", Amount: "12.50"},
		RecordedAt: at,
	})
	rec.Updated = at
	return &schema.Dataset{
		Workers: []schema.Worker{
			{ID: "W1", Name: "Ana", EmployeeID: "123", TotalAssists: 6, LastAssistance: &last},
			{ID: "W2", Name: "Luis", EmployeeID: "456"},
		},
		EvidenceRecords: []schema.EvidenceRecord{*rec},
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			want := sampleDataset()
			data, err := Encode(want, format)
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}
			got, err := Decode(data, format)
			if err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("dataset mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"garbage", "{not json"},
		{"invalid worker", `{"workers":[{"id":"","name":"x"}]}`},
		{"duplicate worker", `{"workers":[{"id":"W1","name":"a"},{"id":"W1","name":"b"}]}`},
	}
	for _, tt := range tests {
		if _, err := Decode([]byte(tt.data), FormatJSON); !errors.Is(err, schema.ErrValidation) {
			t.Errorf("%s: Decode() error = %v, want ErrValidation", tt.name, err)
		}
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]Format{
		"a.json": FormatJSON,
		"a.YAML": FormatYAML,
		"a.yml":  FormatYAML,
		"a":      FormatJSON,
	}
	for path, want := range tests {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := testStore(t)
	if err := src.ReplaceDataset(ctx, sampleDataset()); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "out", "snapshot.yaml")
	res, err := Export(ctx, src, path)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if res.Workers != 2 || res.Evidence != 1 {
		t.Errorf("Export() = %+v", res)
	}

	dst := testStore(t)
	if err := dst.PutWorker(ctx, &schema.Worker{ID: "OLD", Name: "Old"}); err != nil {
		t.Fatal(err)
	}
	res, err = Import(ctx, dst, ImportOptions{Path: path, Backup: true})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if res.BackupCreated == "" {
		t.Fatal("backup not created")
	}
	backup, err := Read(res.BackupCreated)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if len(backup.Workers) != 1 || backup.Workers[0].ID != "OLD" {
		t.Errorf("backup workers = %+v", backup.Workers)
	}

	want, _ := src.Dataset(ctx)
	got, _ := dst.Dataset(ctx)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("imported dataset mismatch (-want +got):\n%s", diff)
	}
}

func TestImport_DryRunAndInvalid(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	if err := st.PutWorker(ctx, &schema.Worker{ID: "KEEP", Name: "Keep"}); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	if err := Write(sampleDataset(), good); err != nil {
		t.Fatal(err)
	}
	if _, err := Import(ctx, st, ImportOptions{Path: good, DryRun: true}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"workers":[{"id":"X"}]}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Import(ctx, st, ImportOptions{Path: bad}); err == nil {
		t.Error("Import() of invalid snapshot succeeded")
	}

	ws, _ := st.Workers(ctx)
	if len(ws) != 1 || ws[0].ID != "KEEP" {
		t.Errorf("workers = %+v, want untouched store", ws)
	}
}
