// Package sqlite mirrors a local vector index into a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/efebarandurmaz/vecrag/internal/vector"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    payload TEXT,
    embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS collection (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    dimension INTEGER NOT NULL,
    metric TEXT NOT NULL
);
`

// ErrCollectionMismatch is returned when the database was created for a
// different dimension or metric.
var ErrCollectionMismatch = errors.New("sqlite collection mismatch")

// Store implements vector.Mirror on a SQLite database.
type Store struct {
	db     *sql.DB
	dim    int
	metric vector.Metric
}

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// EnsureCollection records dim and metric on first use and checks them on
// later runs.
func (s *Store) EnsureCollection(ctx context.Context, dim int, metric vector.Metric) error {
	gotDim, gotMetric, found, err := s.collection(ctx)
	switch {
	case err != nil:
		return err
	case !found:
		if _, err := s.db.ExecContext(ctx, `INSERT INTO collection(id, dimension, metric) VALUES(1, ?, ?)`, dim, string(metric)); err != nil {
			return fmt.Errorf("sqlite create collection: %w", err)
		}
	case gotDim != dim || gotMetric != metric:
		return fmt.Errorf("%w: stored %d/%s, index %d/%s", ErrCollectionMismatch, gotDim, gotMetric, dim, metric)
	}
	s.dim = dim
	s.metric = metric
	return nil
}

// collection reads the stored collection row.
func (s *Store) collection(ctx context.Context) (int, vector.Metric, bool, error) {
	var (
		dim    int
		metric string
	)
	err := s.db.QueryRowContext(ctx, `SELECT dimension, metric FROM collection WHERE id = 1`).Scan(&dim, &metric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, "", false, nil
	case err != nil:
		return 0, "", false, fmt.Errorf("sqlite read collection: %w", err)
	}
	return dim, vector.Metric(metric), true, nil
}

// Upsert writes records in a single transaction.
func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records(id, payload, embedding) VALUES(?, ?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("sqlite encode payload %q: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, string(payload), EncodeEmbedding(r.Embedding)); err != nil {
			return fmt.Errorf("sqlite upsert %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Records returns every stored record ordered by id.
func (s *Store) Records(ctx context.Context) ([]vector.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload, embedding FROM records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vector.Record
	for rows.Next() {
		var (
			rec     vector.Record
			payload sql.NullString
			blob    []byte
		)
		if err := rows.Scan(&rec.ID, &payload, &blob); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &rec.Payload); err != nil {
				return nil, fmt.Errorf("sqlite decode payload %q: %w", rec.ID, err)
			}
		}
		if rec.Embedding, err = DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("sqlite decode embedding %q: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search loads the stored records into a scratch index and ranks them with
// the collection's metric. A handle that never called EnsureCollection uses
// the stored collection row, and the query's length and the default metric
// only when the database has none.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]vector.ScoredResult, error) {
	dim, metric := s.dim, s.metric
	if dim == 0 {
		storedDim, storedMetric, found, err := s.collection(ctx)
		if err != nil {
			return nil, err
		}
		if found {
			dim, metric = storedDim, storedMetric
		} else {
			dim, metric = len(query), vector.DefaultMetric
		}
	}

	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := vector.NewIndex(dim, vector.WithMetric(metric))
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := idx.Insert(r); err != nil {
			return nil, fmt.Errorf("sqlite load %q: %w", r.ID, err)
		}
	}
	return idx.Search(ctx, query, topK)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EncodeEmbedding packs v as little-endian IEEE 754 float32 values.
func EncodeEmbedding(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeEmbedding reverses EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

var _ vector.Mirror = (*Store)(nil)
