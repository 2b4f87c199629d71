package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	curatepath "github.com/aqua777/curator/path"
	"github.com/aqua777/curator/search"
	"github.com/aqua777/curator/storage"
)

// ConceptScorer is supplied by the concept package at call sites that
// need concept{} searches; query stays decoupled from concept's
// training machinery. embedding names which (concept-version,
// embedding-name) model to score against (spec section 3.3), since a
// concept may be trained against more than one embedding.
type ConceptScorer interface {
	Score(namespace, name, embedding string, vectors [][]float32) ([]float64, error)
}

// LabelLookup resolves a row id's label set, supplied by the label
// package so query stays decoupled from the label store's SQLite
// backing.
type LabelLookup func(rowID string) map[string]bool

// EmbeddingResolver resolves free-text query to the named embedding's
// vector, supplied by the signal package's embedding registry so a
// semantic search's Query can be turned into a vector at plan time
// without query depending on signal directly (spec section 4.C:
// "rewrite searches into (span-producing signal invocation, score
// sort_by)"; section 4.G: "cosine similarity between the query's
// embedding (using the same named embedding) and each chunk vector").
type EmbeddingResolver func(embeddingName, text string) ([]float32, error)

// ColumnsFromStruct derives the flat ShardColumn list for a dataset's
// top-level source fields, the shape storage.WriteShard/ReadShard was
// built against.
func ColumnsFromStruct(schema *curatepath.Field) []storage.ShardColumn {
	cols := make([]storage.ShardColumn, 0, len(schema.Fields))
	for name, f := range schema.Fields {
		cols = append(cols, ColumnFor(name, f))
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols
}

func ColumnFor(name string, f *curatepath.Field) storage.ShardColumn {
	if f.IsLeaf() {
		return storage.ShardColumn{Name: name, DType: f.DType, Dim: f.Dim}
	}
	return storage.ShardColumn{Name: name, DType: curatepath.DTypeNone}
}

// EnrichmentColumn derives the single ShardColumn an enrichment shard
// holds for its output field, following the convention that a signal's
// output — scalar or structured — is always written under one column
// named by the output field.
func EnrichmentColumn(e storage.EnrichmentEntry) storage.ShardColumn {
	return ColumnFor(e.OutputSchema.Name, e.OutputSchema)
}

// AssembleRows reads the source shard and every committed enrichment
// shard, producing one flattened (dotted-path -> value) map per row id.
func AssembleRows(ds *storage.Dataset, sourceSchema *curatepath.Field, entries []storage.EnrichmentEntry) (map[string]map[string]any, []string, error) {
	sourceCols := ColumnsFromStruct(sourceSchema)
	sourceRows, err := storage.ReadShard(ds.SourceShardPath(), sourceCols, nil)
	if err != nil {
		return nil, nil, err
	}

	rows := make(map[string]map[string]any, len(sourceRows))
	order := make([]string, 0, len(sourceRows))
	for _, r := range sourceRows {
		flat := map[string]any{}
		for k, v := range r.Values {
			flat[k] = v
		}
		rows[r.RowID] = flat
		order = append(order, r.RowID)
	}

	for _, e := range entries {
		col := EnrichmentColumn(e)
		shardPath := ds.ShardPathForRef(e.ShardRef)
		eRows, err := storage.ReadShard(shardPath, []storage.ShardColumn{col}, nil)
		if err != nil {
			return nil, nil, err
		}
		for _, er := range eRows {
			parentID, index, chunked := SplitChunkRowID(er.RowID)
			row, ok := rows[parentID]
			if !ok {
				continue
			}
			val := er.Values[col.Name]
			if !chunked {
				row[e.OutputPath] = val
				continue
			}
			list, _ := row[e.OutputPath].([]any)
			for len(list) <= index {
				list = append(list, nil)
			}
			list[index] = val
			row[e.OutputPath] = list
		}
	}

	return rows, order, nil
}

func SplitChunkRowID(id string) (parent string, index int, chunked bool) {
	i := strings.LastIndexByte(id, '#')
	if i < 0 {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return id, 0, false
	}
	return id[:i], n, true
}

// SelectRowsSchema resolves and returns the dataset's full merged schema
// (source plus every committed enrichment). opts is not consulted:
// projected columns, UDF columns and searches neither narrow nor extend
// the returned schema.
func SelectRowsSchema(ds *storage.Dataset, opts SelectRowsOptions) (*curatepath.Field, error) {
	sourceSchema, err := ds.Manifest().SourceSchema()
	if err != nil {
		return nil, err
	}
	entries, err := ds.Manifest().ListEnrichments()
	if err != nil {
		return nil, err
	}
	return MergedSchema(sourceSchema, entries)
}

// SelectRows plans and executes a query (spec section 4.C). Planning —
// schema resolution, shard reads, filter/search/sort evaluation — runs
// synchronously before the first value is sent; the returned channel
// streams the already-ordered results and respects ctx cancellation.
func SelectRows(ctx context.Context, ds *storage.Dataset, labels LabelLookup, concepts ConceptScorer, embed EmbeddingResolver, opts SelectRowsOptions) (<-chan RowOrErr, error) {
	mergedSchema, err := SelectRowsSchema(ds, opts)
	if err != nil {
		return nil, err
	}
	entries, err := ds.Manifest().ListEnrichments()
	if err != nil {
		return nil, err
	}
	sourceSchema, err := ds.Manifest().SourceSchema()
	if err != nil {
		return nil, err
	}

	for _, col := range opts.Columns {
		if col.UDF != nil {
			continue // UDF columns run inline; no schema lookup required
		}
		if _, err := curatepath.GetField(&curatepath.Schema{Root: mergedSchema}, col.Path); err != nil {
			return nil, newErr(UnknownPath, col.Path.String(), "projected column not found")
		}
	}
	for _, f := range opts.Filters {
		if _, err := curatepath.GetField(&curatepath.Schema{Root: mergedSchema}, FilterPath(f)); err != nil {
			return nil, newErr(UnknownPath, FilterPath(f).String(), "filter path not found")
		}
	}

	rows, order, err := AssembleRows(ds, sourceSchema, entries)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, id := range order {
		row := rows[id]
		if !passesLabels(id, labels, opts) {
			continue
		}
		if !passesFilters(row, opts.Filters) {
			continue
		}
		candidates = append(candidates, id)
	}

	scores := map[string]float64{}
	matched := map[string]bool{}
	for _, id := range candidates {
		matched[id] = true
	}
	for _, srch := range opts.Searches {
		if err := applySearch(ctx, srch, rows, candidates, scores, matched, concepts, embed); err != nil {
			return nil, err
		}
	}
	if len(opts.Searches) > 0 {
		filtered := candidates[:0]
		for _, id := range candidates {
			if matched[id] {
				filtered = append(filtered, id)
			}
		}
		candidates = filtered
	}

	descending := make([]bool, 0, len(opts.SortBy)+1)
	if len(opts.Searches) > 0 {
		descending = append(descending, true)
	}
	for _, sk := range opts.SortBy {
		descending = append(descending, sk.Order == Descending)
	}

	k := 0
	if opts.Limit > 0 {
		k = opts.Limit + opts.Offset
	}
	th := newTopKHeap(k, descending)
	for _, id := range candidates {
		row := rows[id]
		sortBy := make([]float64, 0, len(descending))
		if len(opts.Searches) > 0 {
			sortBy = append(sortBy, scores[id])
		}
		for _, sk := range opts.SortBy {
			v, _ := LookupPath(row, sk.Path.String())
			f, _ := toFloat(v)
			sortBy = append(sortBy, f)
		}
		th.Offer(scoredRow{row: Row{RowID: id, Values: row, Score: scores[id]}, sortBy: sortBy, rowID: id})
	}

	sorted := th.Sorted()
	if opts.Offset > 0 {
		if opts.Offset >= len(sorted) {
			sorted = nil
		} else {
			sorted = sorted[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(sorted) > opts.Limit {
		sorted = sorted[:opts.Limit]
	}

	out := make(chan RowOrErr)
	go func() {
		defer close(out)
		for _, r := range sorted {
			select {
			case <-ctx.Done():
				out <- RowOrErr{Err: newErr(Cancelled, "", "select_rows cancelled")}
				return
			default:
			}
			projected, err := project(r, opts)
			if err != nil {
				out <- RowOrErr{Err: err}
				return
			}
			for _, pr := range projected {
				select {
				case out <- RowOrErr{Row: pr}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func passesLabels(rowID string, labels LabelLookup, opts SelectRowsOptions) bool {
	if labels == nil || (len(opts.IncludeLabels) == 0 && len(opts.ExcludeLabels) == 0) {
		return true
	}
	have := labels(rowID)
	for _, l := range opts.IncludeLabels {
		if !have[l] {
			return false
		}
	}
	for _, l := range opts.ExcludeLabels {
		if have[l] {
			return false
		}
	}
	return true
}

func passesFilters(row map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := LookupPath(row, FilterPath(f).String())
		pass, err := Apply(f, v, ok)
		if err != nil || !pass {
			return false
		}
	}
	return true
}

// LookupPath resolves a dotted path against a flat row map whose keys
// are enrichment output paths (e.g. "text.pii"); any remaining segments
// past the longest matching key descend into the value itself, which
// may be a nested map decoded from a shard's JSON fallback column.
func LookupPath(row map[string]any, path string) (any, bool) {
	if v, ok := row[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	for i := len(parts) - 1; i > 0; i-- {
		prefix := strings.Join(parts[:i], ".")
		base, ok := row[prefix]
		if !ok {
			continue
		}
		return descend(base, parts[i:])
	}
	return nil, false
}

func descend(v any, parts []string) (any, bool) {
	cur := v
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// applySearch ranks candidates per spec section 4.G, delegating the
// actual matcher/index math to the search package: keyword uses
// search.Keyword's span scan, semantic builds a search.SemanticIndex
// (chromem-go backed) over the candidate set's chunk vectors, and
// concept scores chunks via the supplied ConceptScorer and folds them
// with search.BestScore.
func applySearch(ctx context.Context, srch Search, rows map[string]map[string]any, candidates []string, scores map[string]float64, matched map[string]bool, concepts ConceptScorer, embed EmbeddingResolver) error {
	path := SearchPath(srch).String()
	switch s := srch.(type) {
	case KeywordSearch:
		for _, id := range candidates {
			v, _ := LookupPath(rows[id], path)
			text, _ := v.(string)
			spans := search.Keyword(text, s.Query)
			if len(spans) == 0 {
				matched[id] = false
				continue
			}
			scores[id] += float64(len(spans))
		}
	case SemanticSearch:
		if embed == nil {
			return newErr(TypeMismatch, path, "semantic search requires an EmbeddingResolver")
		}
		queryVec, err := embed(s.Embedding, s.Query)
		if err != nil {
			return newErr(TypeMismatch, path, err.Error())
		}
		idx, err := search.NewSemanticIndex()
		if err != nil {
			return newErr(TypeMismatch, path, err.Error())
		}
		indexed := make([]string, 0, len(candidates))
		for _, id := range candidates {
			v, _ := LookupPath(rows[id], path)
			if vec, ok := chunkVectors(v); ok {
				if err := idx.AddChunks(ctx, id, vec); err != nil {
					return newErr(TypeMismatch, path, err.Error())
				}
				indexed = append(indexed, id)
			}
		}
		top, err := idx.TopK(ctx, queryVec, len(indexed))
		if err != nil {
			return newErr(TypeMismatch, path, err.Error())
		}
		for _, t := range top {
			if t.Score > scores[t.RowID] {
				scores[t.RowID] = t.Score
			}
		}
	case ConceptSearch:
		if concepts == nil {
			return newErr(TypeMismatch, path, "concept search requires a ConceptScorer")
		}
		vectors := make([][]float32, 0, len(candidates))
		for _, id := range candidates {
			v, _ := LookupPath(rows[id], path)
			if vec, ok := chunkVectors(v); ok {
				vectors = append(vectors, vec...)
			}
		}
		out, err := concepts.Score(s.ConceptNS, s.ConceptName, s.Embedding, vectors)
		if err != nil {
			return err
		}
		i := 0
		for _, id := range candidates {
			v, _ := LookupPath(rows[id], path)
			vec, ok := chunkVectors(v)
			if !ok {
				continue
			}
			rowScores := make([]float64, 0, len(vec))
			for range vec {
				if i < len(out) {
					rowScores = append(rowScores, out[i])
				}
				i++
			}
			if best := search.BestScore(rowScores); best > scores[id] {
				scores[id] = best
			}
		}
	}
	return nil
}

// chunkVectors extracts a row's per-chunk embedding vectors, which may
// be stored either as a single vector or a list of vectors.
func chunkVectors(v any) ([][]float32, bool) {
	switch t := v.(type) {
	case []float32:
		return [][]float32{t}, true
	case [][]float32:
		return t, true
	case []any:
		var out [][]float32
		for _, e := range t {
			if vec, ok := e.([]float32); ok {
				out = append(out, vec)
			}
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

func project(r Row, opts SelectRowsOptions) ([]Row, error) {
	if len(opts.Columns) == 0 {
		if opts.CombineColumns {
			return []Row{{RowID: r.RowID, Values: nestRow(r.Values), Score: r.Score}}, nil
		}
		return []Row{r}, nil
	}

	flat := map[string]any{}
	for _, col := range opts.Columns {
		if col.UDF != nil {
			if val, ok := LookupPath(r.Values, col.Path.String()); ok {
				flat[col.OutputAlias()] = val
			} else if col.UDF.BestEffort {
				flat[col.OutputAlias()] = nil
			} else {
				return nil, newErr(TypeMismatch, col.Path.String(), "udf column not materialized and not best-effort")
			}
			continue
		}
		v, _ := LookupPath(r.Values, col.Path.String())
		flat[col.OutputAlias()] = v
	}

	if opts.CombineColumns {
		return []Row{{RowID: r.RowID, Values: nestRow(flat), Score: r.Score}}, nil
	}

	out := make([]Row, 0, len(flat))
	for alias, v := range flat {
		out = append(out, Row{RowID: r.RowID, Values: map[string]any{alias: v}, Score: r.Score})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := "", ""
		for k := range out[i].Values {
			ai = k
		}
		for k := range out[j].Values {
			aj = k
		}
		return ai < aj
	})
	return out, nil
}
