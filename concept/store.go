package concept

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Concept is the {namespace, name, type} record of spec section 3.3.
// Version increments on every edit, so a cached model artifact can be
// checked for staleness.
type Concept struct {
	Namespace string
	Name      string
	Type      string
	Version   int
}

// Example is one labeled training example (spec section 3.3).
type Example struct {
	ID     string
	Label  bool
	Text   string
	Origin string
}

// EditOptions batches an insert/remove/update against a concept's
// example set, per spec section 4.F's `edit(ns, name, {insert?,
// remove?, update?})`.
type EditOptions struct {
	Insert []Example
	Remove []string
	Update []Example
}

// Store is the one-file-per-dataset backing for concepts, their
// examples, and trained model cache artifacts (spec section 6:
// "one file per (namespace, name) with examples"; collapsed here into
// one SQLite database per dataset, the same persistence choice and
// pragma tuning as storage.Manifest).
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenStore opens (creating if absent) the concept store at dbPath.
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
	CREATE TABLE IF NOT EXISTS concepts (
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (namespace, name)
	);
	CREATE TABLE IF NOT EXISTS examples (
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		id TEXT NOT NULL,
		label INTEGER NOT NULL,
		text TEXT NOT NULL,
		origin TEXT NOT NULL,
		PRIMARY KEY (namespace, name, id)
	);
	CREATE TABLE IF NOT EXISTS model_cache (
		namespace TEXT NOT NULL,
		name TEXT NOT NULL,
		embedding TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		version INTEGER NOT NULL,
		weights BLOB NOT NULL,
		bias REAL NOT NULL,
		platt_a REAL NOT NULL,
		platt_b REAL NOT NULL,
		metrics JSON NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, name, embedding)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create registers a new concept with no examples.
func (s *Store) Create(ns, name, typ string) (*Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO concepts (namespace, name, type, version) VALUES (?, ?, ?, 1)
		ON CONFLICT(namespace, name) DO NOTHING`, ns, name, typ)
	if err != nil {
		return nil, err
	}
	return s.get(ns, name)
}

// Get loads a concept's metadata, or a NotFound error.
func (s *Store) Get(ns, name string) (*Concept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ns, name)
}

func (s *Store) get(ns, name string) (*Concept, error) {
	row := s.db.QueryRow(`SELECT type, version FROM concepts WHERE namespace = ? AND name = ?`, ns, name)
	var typ string
	var version int
	if err := row.Scan(&typ, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, newErr(NotFound, ns+"/"+name)
		}
		return nil, err
	}
	return &Concept{Namespace: ns, Name: name, Type: typ, Version: version}, nil
}

// Remove deletes a concept, its examples, and any cached models.
func (s *Store) Remove(ns, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM concepts WHERE namespace = ? AND name = ?`, ns, name); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM examples WHERE namespace = ? AND name = ?`, ns, name); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM model_cache WHERE namespace = ? AND name = ?`, ns, name)
	return err
}

// Edit applies an insert/remove/update batch to a concept's examples
// and bumps its version. Cached models keep their old version, so after
// an edit Score reports VersionStale for them and Train retrains.
func (s *Store) Edit(ns, name string, opts EditOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ex := range opts.Insert {
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}
		if _, err := tx.Exec(`
			INSERT INTO examples (namespace, name, id, label, text, origin) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(namespace, name, id) DO UPDATE SET label = excluded.label, text = excluded.text, origin = excluded.origin`,
			ns, name, ex.ID, boolToInt(ex.Label), ex.Text, ex.Origin); err != nil {
			return err
		}
	}
	for _, ex := range opts.Update {
		if _, err := tx.Exec(`
			UPDATE examples SET label = ?, text = ?, origin = ? WHERE namespace = ? AND name = ? AND id = ?`,
			boolToInt(ex.Label), ex.Text, ex.Origin, ns, name, ex.ID); err != nil {
			return err
		}
	}
	for _, id := range opts.Remove {
		if _, err := tx.Exec(`DELETE FROM examples WHERE namespace = ? AND name = ? AND id = ?`, ns, name, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE concepts SET version = version + 1 WHERE namespace = ? AND name = ?`, ns, name); err != nil {
		return err
	}
	return tx.Commit()
}

// Examples returns every labeled example for a concept.
func (s *Store) Examples(ns, name string) ([]Example, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT id, label, text, origin FROM examples WHERE namespace = ? AND name = ?`, ns, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Example
	for rows.Next() {
		var ex Example
		var label int
		if err := rows.Scan(&ex.ID, &label, &ex.Text, &ex.Origin); err != nil {
			return nil, err
		}
		ex.Label = label != 0
		out = append(out, ex)
	}
	return out, rows.Err()
}

// cachedArtifact is the serialized trained model plus the version and
// cache key it was trained against.
type cachedArtifact struct {
	version  int
	cacheKey string
	model    *Model
	metrics  Metrics
}

func (s *Store) cached(ns, name, embedding string) (*cachedArtifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`
		SELECT cache_key, version, weights, bias, platt_a, platt_b, metrics
		FROM model_cache WHERE namespace = ? AND name = ? AND embedding = ?`, ns, name, embedding)
	var cacheKey, metricsJSON string
	var version int
	var weightsBlob []byte
	var bias, a, b float64
	if err := row.Scan(&cacheKey, &version, &weightsBlob, &bias, &a, &b, &metricsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	weights := decodeWeights(weightsBlob)
	m := &Model{Weights: weights, Bias: bias, PlattA: a, PlattB: b}
	metrics := decodeMetrics([]byte(metricsJSON))
	return &cachedArtifact{version: version, cacheKey: cacheKey, model: m, metrics: metrics}, true, nil
}

func (s *Store) putCache(ns, name, embedding, cacheKey string, version int, m *Model, metrics Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO model_cache (namespace, name, embedding, cache_key, version, weights, bias, platt_a, platt_b, metrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, name, embedding) DO UPDATE SET
			cache_key = excluded.cache_key, version = excluded.version, weights = excluded.weights,
			bias = excluded.bias, platt_a = excluded.platt_a, platt_b = excluded.platt_b,
			metrics = excluded.metrics, created_at = excluded.created_at`,
		ns, name, embedding, cacheKey, version, encodeWeights(m.Weights), m.Bias, m.PlattA, m.PlattB, encodeMetrics(metrics), time.Now().Unix())
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
