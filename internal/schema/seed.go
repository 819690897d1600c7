package schema

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// DefaultWorkers is the built-in roster seeded into an empty store when no
// remote data could be loaded.
func DefaultWorkers() []Worker {
	return []Worker{
		{ID: "w1", Name: "María López", EmployeeID: "40123456"},
		{ID: "w2", Name: "Juan Pérez", EmployeeID: "38987654"},
		{ID: "w3", Name: "Ana Gómez", EmployeeID: "42555111"},
		{ID: "w4", Name: "Carlos Díaz", EmployeeID: "35444222"},
		{ID: "w5", Name: "Lucía Fernández", EmployeeID: "41777333"},
	}
}

// seedFile is the TOML layout of a roster file:
//
//	[[workers]]
//	id = "w1"
//	name = "María López"
//	dni = "40123456"
type seedFile struct {
	Workers []Worker `toml:"workers"`
}

// LoadSeedFile reads a TOML roster. Counts and dates in the file are kept
// as written so a roster can also restore historic totals.
func LoadSeedFile(path string) ([]Worker, error) {
	var f seedFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if len(f.Workers) == 0 {
		return nil, fmt.Errorf("seed file %s has no workers", path)
	}
	seen := make(map[string]bool, len(f.Workers))
	for i := range f.Workers {
		w := &f.Workers[i]
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("invalid seed file %s: duplicate worker id %q", path, w.ID)
		}
		seen[w.ID] = true
	}
	return f.Workers, nil
}
