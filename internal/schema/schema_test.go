package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestWorker_Validate(t *testing.T) {
	tests := []struct {
		name    string
		worker  Worker
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid worker",
			worker: Worker{ID: "w1", Name: "Ana", EmployeeID: "123", TotalAssists: 3, LastAssistance: strPtr("2024-01-09")},
		},
		{
			name:    "missing id",
			worker:  Worker{Name: "Ana"},
			wantErr: true,
			errMsg:  "worker id is required",
		},
		{
			name:    "missing name",
			worker:  Worker{ID: "w1"},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "negative count",
			worker:  Worker{ID: "w1", Name: "Ana", TotalAssists: -1},
			wantErr: true,
			errMsg:  "totalAssists must be >= 0",
		},
		{
			name:    "bad last date",
			worker:  Worker{ID: "w1", Name: "Ana", LastAssistance: strPtr("10/01/2024")},
			wantErr: true,
			errMsg:  "invalid date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.worker.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestWorker_RecordAttendance(t *testing.T) {
	w := Worker{ID: "W1", Name: "Ana", TotalAssists: 5}

	w.RecordAttendance("2024-01-10")
	if w.TotalAssists != 6 {
		t.Errorf("TotalAssists = %d, want 6", w.TotalAssists)
	}
	if w.LastAssistance == nil || *w.LastAssistance != "2024-01-10" {
		t.Fatalf("LastAssistance = %v, want 2024-01-10", w.LastAssistance)
	}

	// An older date counts but does not move the last date backwards.
	w.RecordAttendance("2024-01-02")
	if w.TotalAssists != 7 {
		t.Errorf("TotalAssists = %d, want 7", w.TotalAssists)
	}
	if *w.LastAssistance != "2024-01-10" {
		t.Errorf("LastAssistance = %s, want 2024-01-10", *w.LastAssistance)
	}
}

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		in      string
		want    EventKind
		wantErr bool
	}{
		{"check-in", CheckIn, false},
		{"IN", CheckIn, false},
		{"entrada", CheckIn, false},
		{"check-out", CheckOut, false},
		{"out", CheckOut, false},
		{"lunch", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEventKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEventKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrValidation) {
			t.Errorf("ParseEventKind(%q) error should wrap ErrValidation", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseEventKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEvidenceRecord_SetSlot(t *testing.T) {
	rec := NewEvidenceRecord("W1", "2024-01-10")
	if rec.ID != "W1_2024-01-10" {
		t.Fatalf("ID = %q, want W1_2024-01-10", rec.ID)
	}

	wasEmpty, err := rec.SetSlot(CheckIn, &Slot{Image: "a", Validated: true})
	if err != nil {
		t.Fatalf("SetSlot() failed: %v", err)
	}
	if !wasEmpty {
		t.Error("first check-in should report an empty slot")
	}

	wasEmpty, err = rec.SetSlot(CheckIn, &Slot{Image: "b", Validated: true})
	if err != nil {
		t.Fatalf("SetSlot() failed: %v", err)
	}
	if wasEmpty {
		t.Error("second check-in should report a filled slot")
	}
	if rec.CheckIn.Image != "b" {
		t.Errorf("CheckIn.Image = %q, want b", rec.CheckIn.Image)
	}
	if rec.CheckOut != nil {
		t.Error("CheckOut should stay empty")
	}
	if rec.Events() != 1 {
		t.Errorf("Events() = %d, want 1", rec.Events())
	}

	if _, err := rec.SetSlot("lunch", &Slot{}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("SetSlot(lunch) error = %v, want ErrInvalidKind", err)
	}
}

func TestEvidenceRecord_Validate(t *testing.T) {
	good := NewEvidenceRecord("w1", "2024-01-10")
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() on fresh record failed: %v", err)
	}

	bad := *good
	bad.ID = "w1-2024-01-10"
	if err := bad.Validate(); err == nil {
		t.Error("Validate() should reject an id that breaks the composite key")
	}

	noDate := NewEvidenceRecord("w1", "")
	if err := noDate.Validate(); err == nil {
		t.Error("Validate() should reject a record without date")
	}
}

func TestDataset_Validate(t *testing.T) {
	ds := Dataset{
		Workers: []Worker{{ID: "w1", Name: "Ana"}, {ID: "w1", Name: "Otra"}},
	}
	if err := ds.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate worker") {
		t.Errorf("Validate() error = %v, want duplicate worker", err)
	}

	var empty Dataset
	if !empty.Empty() {
		t.Error("zero Dataset should be empty")
	}
	empty.Normalize()
	if empty.Workers == nil || empty.EvidenceRecords == nil {
		t.Error("Normalize() should allocate both slices")
	}
}

func TestSyncConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SyncConfig
		want bool
	}{
		{"empty", SyncConfig{}, false},
		{"missing credential", SyncConfig{DocumentID: "abc"}, false},
		{"missing document", SyncConfig{Credential: "tok"}, false},
		{"blank document", SyncConfig{DocumentID: "  ", Credential: "tok"}, false},
		{"complete", SyncConfig{DocumentID: "abc", Credential: "tok"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Enabled(); got != tt.want {
			t.Errorf("%s: Enabled() = %v, want %v", tt.name, got, tt.want)
		}
	}

	r := SyncConfig{DocumentID: "abc", Credential: "ghp_secret1234"}.Redacted()
	if r.Credential != "**********1234" {
		t.Errorf("Redacted().Credential = %q", r.Credential)
	}
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workers.toml")
	content := `
[[workers]]
id = "a1"
name = "Ana"
dni = "111"

[[workers]]
id = "b2"
name = "Beto"
dni = "222"
totalAssists = 4
lastAssistance = "2024-02-01"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	workers, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile() failed: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("got %d workers, want 2", len(workers))
	}
	if workers[1].TotalAssists != 4 || workers[1].LastAssistance == nil || *workers[1].LastAssistance != "2024-02-01" {
		t.Errorf("second worker = %+v", workers[1])
	}

	dup := filepath.Join(dir, "dup.toml")
	_ = os.WriteFile(dup, []byte("[[workers]]\nid=\"x\"\nname=\"X\"\n[[workers]]\nid=\"x\"\nname=\"Y\"\n"), 0644)
	if _, err := LoadSeedFile(dup); err == nil {
		t.Error("LoadSeedFile() should reject duplicate ids")
	}
}

func TestDefaultWorkers(t *testing.T) {
	ds := Dataset{Workers: DefaultWorkers()}
	if len(ds.Workers) == 0 {
		t.Fatal("DefaultWorkers() is empty")
	}
	if err := ds.Validate(); err != nil {
		t.Errorf("DefaultWorkers() invalid: %v", err)
	}
}
