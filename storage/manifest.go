package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	curatepath "github.com/aqua777/curator/path"
)

// EnrichmentEntry is one manifest row: the record of an enrichment's
// (signal descriptor, output path, source path, shard reference, row
// count, completed bitmap) per spec section 3.2.
type EnrichmentEntry struct {
	OutputPath   string
	SourcePath   string
	Signal       curatepath.SignalDescriptor
	ShardRef     string
	NumItems     int
	CreatedAt    time.Time
	OutputSchema *curatepath.Field
}

// Manifest is the authoritative index of a dataset's source schema and
// enrichments, persisted in a SQLite database the way
// agentic-research-mache/internal/ingest/sqlite_writer.go persists its
// node/ref tables: one small schema, WAL-style pragmas tuned for single
// writer/many reader access, transactional batch commits.
type Manifest struct {
	db *sql.DB
	mu sync.Mutex // serializes writers per dataset (spec section 5)

	namespace string
	name      string
}

// OpenManifest opens (creating if absent) the manifest database at
// dbPath for the named dataset.
func OpenManifest(dbPath, namespace, name string) (*Manifest, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrapErr(ManifestCorrupt, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, wrapErr(ManifestCorrupt, err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = FULL`); err != nil {
		_ = db.Close()
		return nil, wrapErr(ManifestCorrupt, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS dataset_meta (
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		source_schema JSON NOT NULL,
		PRIMARY KEY (namespace, name)
	);
	CREATE TABLE IF NOT EXISTS enrichments (
		namespace TEXT NOT NULL,
		dataset_name TEXT NOT NULL,
		output_path TEXT NOT NULL,
		source_path TEXT NOT NULL,
		signal_name TEXT NOT NULL,
		signal_params JSON NOT NULL,
		shard_ref TEXT NOT NULL,
		output_schema JSON NOT NULL,
		num_items INTEGER NOT NULL,
		completed_bitmap BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, dataset_name, output_path)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, wrapErr(ManifestCorrupt, err)
	}

	return &Manifest{db: db, namespace: namespace, name: name}, nil
}

// Close releases the manifest's database handle.
func (m *Manifest) Close() error { return m.db.Close() }

// PutSourceSchema stores the dataset's immutable source schema. It is
// only ever written once, at dataset creation.
func (m *Manifest) PutSourceSchema(schema *curatepath.Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(schema)
	if err != nil {
		return wrapErr(ManifestCorrupt, err)
	}
	_, err = m.db.Exec(
		`INSERT INTO dataset_meta (namespace, name, source_schema) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, name) DO UPDATE SET source_schema = excluded.source_schema`,
		m.namespace, m.name, string(data))
	return wrapErr(ManifestCorrupt, err)
}

// SourceSchema loads the dataset's source schema.
func (m *Manifest) SourceSchema() (*curatepath.Field, error) {
	var raw string
	err := m.db.QueryRow(`SELECT source_schema FROM dataset_meta WHERE namespace = ? AND name = ?`,
		m.namespace, m.name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, wrapErr(ManifestCorrupt, fmt.Errorf("dataset %s/%s has no source schema", m.namespace, m.name))
	}
	if err != nil {
		return nil, wrapErr(ManifestCorrupt, err)
	}
	var f curatepath.Field
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, wrapErr(ManifestCorrupt, err)
	}
	return &f, nil
}

// CommitBitmapAndEnrichment persists the completed bitmap and the
// enrichment row together, the manifest-commit-last step of spec
// section 4.D.1/9: the shard file and the bitmap must already be
// durable on disk before this call.
func (m *Manifest) CommitBitmapAndEnrichment(e EnrichmentEntry, bitmap *CompletedBitmap) error {
	raw, err := bitmap.Serialize()
	if err != nil {
		return wrapErr(ManifestCorrupt, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	paramsJSON, err := json.Marshal(e.Signal.Params)
	if err != nil {
		return wrapErr(ManifestCorrupt, err)
	}
	schemaJSON, err := json.Marshal(e.OutputSchema)
	if err != nil {
		return wrapErr(ManifestCorrupt, err)
	}
	_, err = m.db.Exec(`
		INSERT INTO enrichments
			(namespace, dataset_name, output_path, source_path, signal_name, signal_params, shard_ref, output_schema, num_items, completed_bitmap, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, dataset_name, output_path) DO UPDATE SET
			source_path = excluded.source_path,
			signal_name = excluded.signal_name,
			signal_params = excluded.signal_params,
			shard_ref = excluded.shard_ref,
			output_schema = excluded.output_schema,
			num_items = excluded.num_items,
			completed_bitmap = excluded.completed_bitmap,
			created_at = excluded.created_at
	`, m.namespace, m.name, e.OutputPath, e.SourcePath, e.Signal.Name, string(paramsJSON),
		e.ShardRef, string(schemaJSON), e.NumItems, raw, e.CreatedAt.Unix())
	return wrapErr(ManifestCorrupt, err)
}

// Enrichment looks up one enrichment row by its output path.
func (m *Manifest) Enrichment(outputPath string) (*EnrichmentEntry, *CompletedBitmap, error) {
	row := m.db.QueryRow(`
		SELECT source_path, signal_name, signal_params, shard_ref, output_schema, num_items, completed_bitmap, created_at
		FROM enrichments WHERE namespace = ? AND dataset_name = ? AND output_path = ?`,
		m.namespace, m.name, outputPath)

	var sourcePath, signalName, paramsJSON, shardRef, schemaJSON string
	var numItems int
	var bitmapBytes []byte
	var createdAtUnix int64
	if err := row.Scan(&sourcePath, &signalName, &paramsJSON, &shardRef, &schemaJSON, &numItems, &bitmapBytes, &createdAtUnix); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, wrapErr(ManifestCorrupt, err)
	}

	var params map[string]string
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return nil, nil, wrapErr(ManifestCorrupt, err)
	}
	var outSchema curatepath.Field
	if err := json.Unmarshal([]byte(schemaJSON), &outSchema); err != nil {
		return nil, nil, wrapErr(ManifestCorrupt, err)
	}
	bitmap, err := DeserializeBitmap(bitmapBytes)
	if err != nil {
		return nil, nil, wrapErr(ManifestCorrupt, err)
	}

	return &EnrichmentEntry{
		OutputPath:   outputPath,
		SourcePath:   sourcePath,
		Signal:       curatepath.SignalDescriptor{Name: signalName, Params: params},
		ShardRef:     shardRef,
		NumItems:     numItems,
		CreatedAt:    time.Unix(createdAtUnix, 0).UTC(),
		OutputSchema: &outSchema,
	}, bitmap, nil
}

// ListEnrichments returns a snapshot of every enrichment row, the
// per-call manifest snapshot spec section 4.C promises concurrent
// select_rows callers.
func (m *Manifest) ListEnrichments() ([]EnrichmentEntry, error) {
	rows, err := m.db.Query(`
		SELECT output_path, source_path, signal_name, signal_params, shard_ref, output_schema, num_items, created_at
		FROM enrichments WHERE namespace = ? AND dataset_name = ?`, m.namespace, m.name)
	if err != nil {
		return nil, wrapErr(ManifestCorrupt, err)
	}
	defer rows.Close()

	var out []EnrichmentEntry
	for rows.Next() {
		var outputPath, sourcePath, signalName, paramsJSON, shardRef, schemaJSON string
		var numItems int
		var createdAtUnix int64
		if err := rows.Scan(&outputPath, &sourcePath, &signalName, &paramsJSON, &shardRef, &schemaJSON, &numItems, &createdAtUnix); err != nil {
			return nil, wrapErr(ManifestCorrupt, err)
		}
		var params map[string]string
		_ = json.Unmarshal([]byte(paramsJSON), &params)
		var outSchema curatepath.Field
		_ = json.Unmarshal([]byte(schemaJSON), &outSchema)
		out = append(out, EnrichmentEntry{
			OutputPath: outputPath, SourcePath: sourcePath,
			Signal:       curatepath.SignalDescriptor{Name: signalName, Params: params},
			ShardRef:     shardRef,
			NumItems:     numItems,
			CreatedAt:    time.Unix(createdAtUnix, 0).UTC(),
			OutputSchema: &outSchema,
		})
	}
	return out, rows.Err()
}

// DeleteEnrichment removes an enrichment's manifest row. The caller is
// responsible for removing the shard file itself; the source dataset is
// never touched.
func (m *Manifest) DeleteEnrichment(outputPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`DELETE FROM enrichments WHERE namespace = ? AND dataset_name = ? AND output_path = ?`,
		m.namespace, m.name, outputPath)
	return wrapErr(ManifestCorrupt, err)
}
