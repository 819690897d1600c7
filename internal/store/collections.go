package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/attendsync/attendsync/internal/schema"
)

// decode unmarshals one document into T.
func decode[T any](c Collection, doc json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("%w: corrupt %s document: %w", schema.ErrStorageUnavailable, c, err)
	}
	return &v, nil
}

func decodeAll[T any](c Collection, docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode[T](c, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// GetWorker returns the worker with id or schema.ErrNotFound.
func (s *Store) GetWorker(ctx context.Context, id string) (*schema.Worker, error) {
	return getWorker(ctx, s.conn, id)
}

// GetWorker is Store.GetWorker inside the transaction.
func (t *Tx) GetWorker(ctx context.Context, id string) (*schema.Worker, error) {
	return getWorker(ctx, t.tx, id)
}

func getWorker(ctx context.Context, q querier, id string) (*schema.Worker, error) {
	doc, err := get(ctx, q, Workers, id)
	if err != nil {
		return nil, err
	}
	return decode[schema.Worker](Workers, doc)
}

// PutWorker validates and stores w.
func (s *Store) PutWorker(ctx context.Context, w *schema.Worker) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid worker: %w", err)
	}
	return put(ctx, s.conn, Workers, w)
}

// Workers returns every stored worker.
func (s *Store) Workers(ctx context.Context) ([]schema.Worker, error) {
	return listWorkers(ctx, s.conn)
}

// Workers is Store.Workers inside the transaction.
func (t *Tx) Workers(ctx context.Context) ([]schema.Worker, error) {
	return listWorkers(ctx, t.tx)
}

func listWorkers(ctx context.Context, q querier) ([]schema.Worker, error) {
	docs, err := getAll(ctx, q, Workers)
	if err != nil {
		return nil, err
	}
	return decodeAll[schema.Worker](Workers, docs)
}

// GetEvidence returns the evidence record with id or schema.ErrNotFound.
func (s *Store) GetEvidence(ctx context.Context, id string) (*schema.EvidenceRecord, error) {
	return getEvidence(ctx, s.conn, id)
}

// GetEvidence is Store.GetEvidence inside the transaction.
func (t *Tx) GetEvidence(ctx context.Context, id string) (*schema.EvidenceRecord, error) {
	return getEvidence(ctx, t.tx, id)
}

func getEvidence(ctx context.Context, q querier, id string) (*schema.EvidenceRecord, error) {
	doc, err := get(ctx, q, Evidence, id)
	if err != nil {
		return nil, err
	}
	return decode[schema.EvidenceRecord](Evidence, doc)
}

// PutEvidence validates and stores rec.
func (s *Store) PutEvidence(ctx context.Context, rec *schema.EvidenceRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid evidence: %w", err)
	}
	return put(ctx, s.conn, Evidence, rec)
}

// EvidenceRecords returns every stored evidence record.
func (s *Store) EvidenceRecords(ctx context.Context) ([]schema.EvidenceRecord, error) {
	return listEvidence(ctx, s.conn)
}

// EvidenceRecords is Store.EvidenceRecords inside the transaction.
func (t *Tx) EvidenceRecords(ctx context.Context) ([]schema.EvidenceRecord, error) {
	return listEvidence(ctx, t.tx)
}

func listEvidence(ctx context.Context, q querier) ([]schema.EvidenceRecord, error) {
	docs, err := getAll(ctx, q, Evidence)
	if err != nil {
		return nil, err
	}
	return decodeAll[schema.EvidenceRecord](Evidence, docs)
}

// SyncConfig returns the stored sync configuration. An absent configuration
// is not an error: the zero value (sync disabled) is returned.
func (s *Store) SyncConfig(ctx context.Context) (schema.SyncConfig, error) {
	doc, err := get(ctx, s.conn, Configuration, schema.SyncConfigKey)
	if errors.Is(err, schema.ErrNotFound) {
		return schema.SyncConfig{}, nil
	}
	if err != nil {
		return schema.SyncConfig{}, err
	}
	cfg, err := decode[schema.SyncConfig](Configuration, doc)
	if err != nil {
		return schema.SyncConfig{}, err
	}
	return *cfg, nil
}

// SaveSyncConfig stores cfg under the reserved key. Saving an empty
// configuration disables sync.
func (s *Store) SaveSyncConfig(ctx context.Context, cfg schema.SyncConfig) error {
	return put(ctx, s.conn, Configuration, &cfg)
}

// Dataset returns a snapshot of both synced collections, read in one
// transaction so worker counters always match the evidence.
func (s *Store) Dataset(ctx context.Context) (*schema.Dataset, error) {
	ds := &schema.Dataset{}
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		if ds.Workers, err = tx.Workers(ctx); err != nil {
			return err
		}
		ds.EvidenceRecords, err = tx.EvidenceRecords(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	ds.Normalize()
	return ds, nil
}

// ReplaceDataset clears and reloads both synced collections in one
// transaction. Local records not present in ds are discarded.
func (s *Store) ReplaceDataset(ctx context.Context, ds *schema.Dataset) error {
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("refusing to load invalid dataset: %w", err)
	}

	workers := make([]Record, 0, len(ds.Workers))
	for i := range ds.Workers {
		workers = append(workers, &ds.Workers[i])
	}
	evidence := make([]Record, 0, len(ds.EvidenceRecords))
	for i := range ds.EvidenceRecords {
		evidence = append(evidence, &ds.EvidenceRecords[i])
	}

	return s.Update(ctx, func(tx *Tx) error {
		if err := tx.ClearAndBulkLoad(ctx, Workers, workers); err != nil {
			return err
		}
		return tx.ClearAndBulkLoad(ctx, Evidence, evidence)
	})
}

// Stats summarizes the store for status displays.
type Stats struct {
	Workers  int `json:"workers"`
	Evidence int `json:"evidence"`
}

// Stats returns per-collection counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Workers, err = s.Count(ctx, Workers); err != nil {
		return Stats{}, err
	}
	if st.Evidence, err = s.Count(ctx, Evidence); err != nil {
		return Stats{}, err
	}
	return st, nil
}
