// Package snapshot writes and restores the dataset as a local file.
//
// A snapshot has the same shape as the remote document ({workers,
// evidenceRecords}) and can be written as JSON or YAML. It serves as an
// offline backup and as a way to seed a new device without a remote.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

// Format is a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file extension. Unknown extensions
// default to JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Result contains statistics about an export or import.
type Result struct {
	Path          string `json:"path"`
	Workers       int    `json:"workers"`
	Evidence      int    `json:"evidence"`
	BackupCreated string `json:"backupCreated,omitempty"`
}

// Encode serializes ds in the given format.
func Encode(ds *schema.Dataset, format Format) ([]byte, error) {
	ds.Normalize()
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(ds)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal yaml: %w", err)
		}
		return data, nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(ds, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal json: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
}

// Decode parses a snapshot and validates it.
func Decode(data []byte, format Format) (*schema.Dataset, error) {
	ds := &schema.Dataset{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, ds)
	case FormatJSON, "":
		err = json.Unmarshal(data, ds)
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s snapshot: %v", schema.ErrValidation, format, err)
	}
	ds.Normalize()
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrValidation, err)
	}
	return ds, nil
}

// Read loads a snapshot file, choosing the format from its extension.
func Read(path string) (*schema.Dataset, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Decode(data, FormatFor(path))
}

// Write stores ds at path atomically, choosing the format from its
// extension.
func Write(ds *schema.Dataset, path string) error {
	data, err := Encode(ds, FormatFor(path))
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Export writes the store's dataset to path.
func Export(ctx context.Context, st *store.Store, path string) (*Result, error) {
	ds, err := st.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	if err := Write(ds, path); err != nil {
		return nil, err
	}
	return &Result{Path: path, Workers: len(ds.Workers), Evidence: len(ds.EvidenceRecords)}, nil
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	Path   string // Snapshot file to load
	DryRun bool   // Validate without writing
	Backup bool   // Export the current data next to Path first
}

// Import replaces the store's dataset with the snapshot at opts.Path. The
// replacement is atomic: on any failure the store keeps its previous data.
func Import(ctx context.Context, st *store.Store, opts ImportOptions) (*Result, error) {
	ds, err := Read(opts.Path)
	if err != nil {
		return nil, err
	}
	result := &Result{Path: opts.Path, Workers: len(ds.Workers), Evidence: len(ds.EvidenceRecords)}
	if opts.DryRun {
		return result, nil
	}

	if opts.Backup {
		ext := filepath.Ext(opts.Path)
		backupPath := strings.TrimSuffix(opts.Path, ext) + ".backup." + time.Now().Format("20060102-150405") + ext
		if _, err := Export(ctx, st, backupPath); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	if err := st.ReplaceDataset(ctx, ds); err != nil {
		return nil, err
	}
	return result, nil
}
