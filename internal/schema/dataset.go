package schema

import "fmt"

// Dataset is the full local state mirrored to the remote document.
type Dataset struct {
	Workers         []Worker         `json:"workers" yaml:"workers"`
	EvidenceRecords []EvidenceRecord `json:"evidenceRecords" yaml:"evidenceRecords"`
}

// Empty reports whether the dataset holds nothing at all.
func (d *Dataset) Empty() bool {
	return d == nil || (len(d.Workers) == 0 && len(d.EvidenceRecords) == 0)
}

// Normalize replaces nil slices with empty ones so the serialized form
// always carries both arrays.
func (d *Dataset) Normalize() {
	if d.Workers == nil {
		d.Workers = []Worker{}
	}
	if d.EvidenceRecords == nil {
		d.EvidenceRecords = []EvidenceRecord{}
	}
}

// Validate checks every entity and rejects duplicate identities.
func (d *Dataset) Validate() error {
	seen := make(map[string]bool, len(d.Workers))
	for i := range d.Workers {
		w := &d.Workers[i]
		if err := w.Validate(); err != nil {
			return err
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate worker id %q", w.ID)
		}
		seen[w.ID] = true
	}
	seenEv := make(map[string]bool, len(d.EvidenceRecords))
	for i := range d.EvidenceRecords {
		e := &d.EvidenceRecords[i]
		if err := e.Validate(); err != nil {
			return err
		}
		if seenEv[e.ID] {
			return fmt.Errorf("duplicate evidence id %q", e.ID)
		}
		seenEv[e.ID] = true
	}
	return nil
}
