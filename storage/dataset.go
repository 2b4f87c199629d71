package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	curatepath "github.com/aqua777/curator/path"
)

// Dataset is {namespace, name, manifest, shards} on disk under a
// project directory, per spec section 3.2.
type Dataset struct {
	Namespace string
	Name      string

	dir      string
	manifest *Manifest
	lock     *WriterLock

	statsMu sync.Mutex
	stats   map[string]*Stats
}

// Stats is the lazily computed, cached column summary of spec section
// 4.B: stats(path) -> {approx_distinct, min, max, avg_len?}.
type Stats struct {
	ApproxDistinct int
	Min            any
	Max            any
	AvgLen         *float64
}

// Create initializes a brand-new dataset directory: stores the
// immutable source schema in the manifest, then writes the first
// ("source") shard. Source shards are written once and are never rewritten
// (spec section 3.2 lifecycle).
func Create(projectDir, namespace, name string, sourceSchema *curatepath.Field, columns []ShardColumn, rows []ShardRow) (*Dataset, error) {
	dir := filepath.Join(projectDir, namespace, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr(ManifestCorrupt, err)
	}

	lock, err := AcquireWriterLock(filepath.Join(dir, ".lock"))
	if err != nil {
		return nil, err
	}

	manifest, err := OpenManifest(filepath.Join(dir, "manifest.db"), namespace, name)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	if err := manifest.PutSourceSchema(sourceSchema); err != nil {
		_ = lock.Release()
		return nil, err
	}

	shardPath := filepath.Join(dir, "source.arrow")
	if err := WriteShard(shardPath, columns, rows); err != nil {
		_ = lock.Release()
		return nil, err
	}

	return &Dataset{
		Namespace: namespace,
		Name:      name,
		dir:       dir,
		manifest:  manifest,
		lock:      lock,
		stats:     map[string]*Stats{},
	}, nil
}

// Open reattaches to an already-created dataset directory.
func Open(projectDir, namespace, name string) (*Dataset, error) {
	dir := filepath.Join(projectDir, namespace, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, wrapErr(ManifestCorrupt, err)
	}
	lock, err := AcquireWriterLock(filepath.Join(dir, ".lock"))
	if err != nil {
		return nil, err
	}
	manifest, err := OpenManifest(filepath.Join(dir, "manifest.db"), namespace, name)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	return &Dataset{
		Namespace: namespace,
		Name:      name,
		dir:       dir,
		manifest:  manifest,
		lock:      lock,
		stats:     map[string]*Stats{},
	}, nil
}

// Close releases the dataset's manifest handle and writer lock.
func (d *Dataset) Close() error {
	err1 := d.manifest.Close()
	err2 := d.lock.Release()
	if err1 != nil {
		return err1
	}
	return err2
}

// Manifest exposes the dataset's manifest for read-only inspection by
// the query and pipeline packages.
func (d *Dataset) Manifest() *Manifest { return d.manifest }

// SourceShardPath is the on-disk path of the dataset's immutable source
// shard.
func (d *Dataset) SourceShardPath() string { return filepath.Join(d.dir, "source.arrow") }

// shardPathFor derives a deterministic on-disk shard filename for an
// enrichment output path, so AppendShard and Open agree without needing
// a separate path registry.
func (d *Dataset) shardPathFor(outputPath string) string {
	safe := filepath.Clean(outputPath)
	for _, r := range []string{"/", "\\", "*"} {
		safe = replaceAll(safe, r, "_")
	}
	return filepath.Join(d.dir, "enrich_"+safe+".arrow")
}

func replaceAll(s, old, new string) string {
	out := ""
	for _, r := range s {
		if string(r) == old {
			out += new
		} else {
			out += string(r)
		}
	}
	return out
}

// ShardPathForRef resolves a manifest-stored shard_ref (a base file
// name) to its absolute path on disk, for callers — the query engine —
// that read an enrichment's shard directly.
func (d *Dataset) ShardPathForRef(ref string) string {
	return filepath.Join(d.dir, ref)
}

// IterShard reads rows from a shard file, optionally limited to rowIDs.
func (d *Dataset) IterShard(shardPath string, columns []ShardColumn, rowIDs map[string]bool) ([]ShardRow, error) {
	return ReadShard(shardPath, columns, rowIDs)
}

// AppendShard performs the atomic three-step enrichment write of spec
// section 4.B/4.D: shard file first, then the completed bitmap (folded
// into the same durable blob), then the manifest commit that makes the
// shard visible. On crash mid-write the partial shard is reclaimable
// via the bitmap the next time the pipeline resumes this output path.
func (d *Dataset) AppendShard(outputPath, sourcePath string, descriptor curatepath.SignalDescriptor, outputSchema *curatepath.Field, columns []ShardColumn, rows []ShardRow, bitmap *CompletedBitmap) error {
	shardPath := d.shardPathFor(outputPath)
	if err := WriteShard(shardPath, columns, rows); err != nil {
		return err
	}

	entry := EnrichmentEntry{
		OutputPath:   outputPath,
		SourcePath:   sourcePath,
		Signal:       descriptor,
		ShardRef:     filepath.Base(shardPath),
		NumItems:     len(rows),
		CreatedAt:    time.Now().UTC(),
		OutputSchema: outputSchema,
	}
	if err := d.manifest.CommitBitmapAndEnrichment(entry, bitmap); err != nil {
		return err
	}
	d.invalidateStats(outputPath)
	return nil
}

// DeleteEnrichment removes an enrichment's shard file and manifest
// entry; the source dataset is untouched.
func (d *Dataset) DeleteEnrichment(outputPath string) error {
	entry, _, err := d.manifest.Enrichment(outputPath)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if err := d.manifest.DeleteEnrichment(outputPath); err != nil {
		return err
	}
	_ = os.Remove(filepath.Join(d.dir, entry.ShardRef))
	d.invalidateStats(outputPath)
	return nil
}

func (d *Dataset) invalidateStats(path string) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	delete(d.stats, path)
}

// Stats computes (and caches) column statistics for path, over the
// given column values. Real production datasets would stream this over
// a shard; callers provide the materialized values they already
// iterated, and Stats does the cheap aggregation + caching (spec
// section 4.B: "computed lazily and cached").
func (d *Dataset) Stats(path string, values []any) *Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	if cached, ok := d.stats[path]; ok {
		return cached
	}

	distinct := map[string]bool{}
	var min, max any
	var lenSum float64
	var lenCount int
	for _, v := range values {
		key := fmt.Sprintf("%v", v)
		distinct[key] = true
		if s, ok := v.(string); ok {
			lenSum += float64(len(s))
			lenCount++
		}
		if min == nil || lessThan(v, min) {
			min = v
		}
		if max == nil || lessThan(max, v) {
			max = v
		}
	}
	st := &Stats{ApproxDistinct: len(distinct), Min: min, Max: max}
	if lenCount > 0 {
		avg := lenSum / float64(lenCount)
		st.AvgLen = &avg
	}
	d.stats[path] = st
	return st
}

func lessThan(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case int:
		bv, ok := b.(int)
		return ok && av < bv
	case int64:
		bv, ok := b.(int64)
		return ok && av < bv
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	default:
		return false
	}
}
