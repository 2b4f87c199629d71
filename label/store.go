// Package label implements the user-label store of spec section 4.H:
// boolean row_id -> label_name -> {label, created} records, addressable
// by row id, by filter, or by search result (the latter two resolved by
// the caller via query.SelectRows before the IDs reach this package, so
// label stays decoupled from the query planner the way concept stays
// decoupled from the pipeline).
package label

import (
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one row's label assignment (spec section 6: "row_id ->
// label_name -> record").
type Record struct {
	RowID     string
	Label     string
	CreatedAt time.Time
}

// Store is the one-file-per-dataset backing for labels, grounded on the
// same SQLite batch-transaction idiom as concept.Store and
// storage.Manifest (itself adapted from
// agentic-research-mache/internal/ingest/sqlite_writer.go).
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenStore opens (creating if absent) the label store at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, err
	}
	schema := `
	CREATE TABLE IF NOT EXISTS labels (
		row_id TEXT NOT NULL,
		label_name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (row_id, label_name)
	);
	CREATE INDEX IF NOT EXISTS idx_labels_name ON labels(label_name);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Add writes label on every row id in rowIDs, idempotently (spec
// section 4.H: add_labels). All rows commit in one transaction, so a
// label applied over a large selection either fully lands or not at
// all.
func (s *Store) Add(labelName string, rowIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO labels (row_id, label_name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(row_id, label_name) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, id := range rowIDs {
		if _, err := stmt.Exec(id, labelName, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Remove deletes label from every row id in rowIDs (spec section 4.H:
// remove_labels is symmetric with add_labels).
func (s *Store) Remove(labelName string, rowIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM labels WHERE row_id = ? AND label_name = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range rowIDs {
		if _, err := stmt.Exec(id, labelName); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Lookup returns the set of label names applied to rowID, the shape
// query.LabelLookup expects so SelectRows can evaluate include_labels /
// exclude_labels without knowing the label store's backing format.
func (s *Store) Lookup(rowID string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT label_name FROM labels WHERE row_id = ?`, rowID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		out[name] = true
	}
	return out
}

// RowsWithLabel lists every row id carrying label, for callers that
// need the reverse lookup (e.g. export filtering at scale instead of
// per-row Lookup calls).
func (s *Store) RowsWithLabel(labelName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT row_id FROM labels WHERE label_name = ?`, labelName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Records returns every label record assigned to rowID, including
// creation timestamps, for UI/export surfaces that need more than the
// boolean set Lookup provides.
func (s *Store) Records(rowID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT row_id, label_name, created_at FROM labels WHERE row_id = ?`, rowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var createdAt int64
		if err := rows.Scan(&r.RowID, &r.Label, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
