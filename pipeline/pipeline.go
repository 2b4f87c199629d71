package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	curatepath "github.com/aqua777/curator/path"
	"github.com/aqua777/curator/query"
	"github.com/aqua777/curator/signal"
	"github.com/aqua777/curator/storage"
)

// workItem is one dispatched unit of Map's input stream: either a whole
// row (compoundID == rowID) or, when InputPath flattens a repeated
// field, one chunk of a row (compoundID == "rowID#index").
type workItem struct {
	compoundID string
	ordinal    uint32
	value      any
}

// Map runs fn over the dataset's value stream at opts.InputPath,
// writing its output as a new enrichment column, honoring spec section
// 4.D's execution contract: resumable, bounded-parallel, at-most-once
// per row, and a no-op when an identical signal descriptor already
// completed the same output path.
func Map(ctx context.Context, ds *storage.Dataset, fn MapFunc, opts MapOptions) (Result, error) {
	sourceSchema, err := ds.Manifest().SourceSchema()
	if err != nil {
		return Result{}, err
	}
	entries, err := ds.Manifest().ListEnrichments()
	if err != nil {
		return Result{}, err
	}
	rows, order, err := query.AssembleRows(ds, sourceSchema, entries)
	if err != nil {
		return Result{}, err
	}

	outputPath := opts.outputPath()
	descriptor := opts.descriptor()
	total := uint32(len(order))

	existing, bitmap, err := ds.Manifest().Enrichment(outputPath)
	if err != nil {
		return Result{}, err
	}

	if existing != nil && !opts.Overwrite && !existing.Signal.Equal(descriptor) {
		return Result{}, fmt.Errorf("pipeline: output path %q already holds signal %q; set Overwrite to replace it with %q", outputPath, existing.Signal.Name, descriptor.Name)
	}

	var carry []storage.ShardRow
	resuming := existing != nil && !opts.Overwrite && existing.Signal.Equal(descriptor)
	if resuming {
		if bitmap.IsComplete(total) {
			return Result{}, nil // identical descriptor already finished this output (spec section 4.D.8)
		}
		oldShardPath := ds.ShardPathForRef(existing.ShardRef)
		carry, err = ds.IterShard(oldShardPath, []storage.ShardColumn{query.EnrichmentColumn(*existing)}, nil)
		if err != nil {
			return Result{}, err
		}
	} else {
		bitmap = storage.NewCompletedBitmap()
	}

	items, remaining := buildWorkItems(rows, order, opts, bitmap, resuming)
	if len(items) == 0 {
		return Result{}, nil
	}

	batches := batchItems(items, opts.batchSize())

	var results []workResult
	if opts.Execution == Processes {
		results = runProcesses(ctx, opts.numJobs(), opts.ProcessCommand, batches)
	} else {
		results = runThreads(ctx, opts.numJobs(), fn, batches)
	}

	outColumnName := opts.OutputColumn
	outSchemaField := opts.outputFieldSchema()

	newRows := make(map[string]storage.ShardRow, len(items))
	var numWritten, numErrors int
	var errorRows []string

	for _, res := range results {
		if res.err != nil {
			for _, id := range res.batch.rowIDs {
				numErrors++
				errorRows = append(errorRows, id)
			}
			if opts.MaxErrors > 0 && numErrors > opts.MaxErrors {
				if writeErr := flush(ds, outputPath, opts.InputPath, descriptor, outSchemaField, outColumnName, carry, newRows, bitmap); writeErr != nil {
					return Result{NumWritten: numWritten, NumErrors: numErrors, ErrorRows: errorRows}, newErr(ShardWrite, writeErr)
				}
				return Result{NumWritten: numWritten, NumErrors: numErrors, ErrorRows: errorRows},
					newErr(RowErrorThresholdExceeded, nil, errorRows...)
			}
			continue
		}
		if len(res.outputs) != len(res.batch.rowIDs) {
			return Result{}, newErr(WorkerCrash, fmt.Errorf("worker returned %d outputs for %d inputs", len(res.outputs), len(res.batch.rowIDs)))
		}
		for i, id := range res.batch.rowIDs {
			newRows[id] = storage.ShardRow{RowID: id, Values: map[string]any{outColumnName: res.outputs[i]}}
			numWritten++
			ord := res.batch.ordinals[i]
			remaining[ord]--
			if remaining[ord] == 0 {
				bitmap.Mark(ord)
			}
		}
	}

	select {
	case <-ctx.Done():
		if writeErr := flush(ds, outputPath, opts.InputPath, descriptor, outSchemaField, outColumnName, carry, newRows, bitmap); writeErr != nil {
			return Result{NumWritten: numWritten, NumErrors: numErrors, ErrorRows: errorRows}, newErr(ShardWrite, writeErr)
		}
		return Result{NumWritten: numWritten, NumErrors: numErrors, ErrorRows: errorRows}, newErr(Cancelled, ctx.Err())
	default:
	}

	if err := flush(ds, outputPath, opts.InputPath, descriptor, outSchemaField, outColumnName, carry, newRows, bitmap); err != nil {
		return Result{NumWritten: numWritten, NumErrors: numErrors, ErrorRows: errorRows}, newErr(ShardWrite, err)
	}
	return Result{NumWritten: numWritten, NumErrors: numErrors, ErrorRows: errorRows}, nil
}

func flush(ds *storage.Dataset, outputPath, sourcePath string, descriptor curatepath.SignalDescriptor, outSchema *curatepath.Field, columnName string, carry []storage.ShardRow, newRows map[string]storage.ShardRow, bitmap *storage.CompletedBitmap) error {
	combined := make(map[string]storage.ShardRow, len(carry)+len(newRows))
	for _, r := range carry {
		combined[r.RowID] = r
	}
	for id, r := range newRows {
		combined[id] = r
	}
	ids := make([]string, 0, len(combined))
	for id := range combined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	allRows := make([]storage.ShardRow, 0, len(ids))
	for _, id := range ids {
		allRows = append(allRows, combined[id])
	}
	col := storage.ShardColumn{Name: columnName, DType: outSchema.DType, Dim: outSchema.Dim}
	return ds.AppendShard(outputPath, sourcePath, descriptor, outSchema, []storage.ShardColumn{col}, allRows, bitmap)
}

// buildWorkItems resolves opts.InputPath against every still-missing
// row, applying opts.Filters/opts.Limit, flattening a trailing "*" into
// one work item per repeated-field element (spec section 4.D.7). It
// returns the flat work list plus, per row ordinal, the count of work
// items still outstanding for that row — a row's ordinal is only
// marked complete once every one of its chunks has succeeded.
func buildWorkItems(rows map[string]map[string]any, order []string, opts MapOptions, bitmap *storage.CompletedBitmap, resuming bool) ([]workItem, map[uint32]int) {
	wildcard := strings.HasSuffix(opts.InputPath, ".*") || opts.InputPath == "*"
	parentPath := strings.TrimSuffix(strings.TrimSuffix(opts.InputPath, "*"), ".")

	var items []workItem
	remaining := map[uint32]int{}
	processedRows := 0

	for idx, rowID := range order {
		ordinal := uint32(idx)
		if resuming && bitmap.Has(ordinal) {
			continue
		}
		row := rows[rowID]
		if !passesFilters(row, opts.Filters) {
			continue
		}

		var values []any
		if wildcard {
			v, ok := query.LookupPath(row, parentPath)
			if !ok {
				continue
			}
			list, ok := v.([]any)
			if !ok || len(list) == 0 {
				continue
			}
			values = list
		} else if opts.InputPath == "" {
			values = []any{row}
		} else {
			v, ok := query.LookupPath(row, opts.InputPath)
			if !ok {
				continue
			}
			values = []any{v}
		}

		remaining[ordinal] = len(values)
		for i, v := range values {
			id := rowID
			if wildcard {
				id = rowID + "#" + strconv.Itoa(i)
			}
			items = append(items, workItem{compoundID: id, ordinal: ordinal, value: v})
		}

		processedRows++
		if opts.Limit > 0 && processedRows >= opts.Limit {
			break
		}
	}
	return items, remaining
}

func passesFilters(row map[string]any, filters []query.Filter) bool {
	for _, f := range filters {
		v, ok := query.LookupPath(row, query.FilterPath(f).String())
		pass, err := query.Apply(f, v, ok)
		if err != nil || !pass {
			return false
		}
	}
	return true
}

func batchItems(items []workItem, size int) []workBatch {
	var batches []workBatch
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[i:end]
		b := workBatch{
			rowIDs:   make([]string, len(chunk)),
			ordinals: make([]uint32, len(chunk)),
			values:   make([]any, len(chunk)),
		}
		for j, it := range chunk {
			b.rowIDs[j] = it.compoundID
			b.ordinals[j] = it.ordinal
			b.values[j] = it.value
		}
		batches = append(batches, b)
	}
	return batches
}

func (o MapOptions) outputPath() string {
	if o.NestUnder == "" {
		return o.OutputColumn
	}
	return o.NestUnder + "." + o.OutputColumn
}

func (o MapOptions) descriptor() curatepath.SignalDescriptor {
	if o.Descriptor.Name != "" {
		return o.Descriptor
	}
	return curatepath.SignalDescriptor{Name: o.OutputColumn}
}

// outputFieldSchema returns the per-enrichment schema field to record
// in the manifest: the caller's explicit hint if given, otherwise a
// plain string leaf (the scalar default for an untyped user fn).
func (o MapOptions) outputFieldSchema() *curatepath.Field {
	if o.OutputSchema != nil {
		clone := *o.OutputSchema
		clone.Name = o.OutputColumn
		return &clone
	}
	return &curatepath.Field{Name: o.OutputColumn, DType: curatepath.DTypeString}
}

// ComputeSignal runs a registered built-in signal over sourcePath,
// equivalent to Map with fn = signal.Compute and the output schema and
// lineage descriptor taken from the signal itself (spec section
// 4.D: "compute_signal(signal, path) — equivalent to map with
// fn = signal.compute").
func ComputeSignal(ctx context.Context, ds *storage.Dataset, sig signal.Signal, sourcePath string, opts MapOptions) (Result, error) {
	opts.InputPath = sourcePath
	opts.Descriptor = curatepath.SignalDescriptor{Name: sig.Name()}
	opts.OutputSchema = sig.OutputSchema()
	if opts.OutputColumn == "" {
		opts.OutputColumn = sig.Name()
	}
	fn := func(ctx context.Context, batch []any) ([]any, error) {
		return sig.Compute(ctx, batch)
	}
	return Map(ctx, ds, fn, opts)
}

// ComputeEmbedding runs an embedding signal over chunkPath, a repeated
// span field (spec section 4.D: embeddings always run under a
// repeated-span parent chosen by the embedding's declared chunker).
func ComputeEmbedding(ctx context.Context, ds *storage.Dataset, embedding signal.Signal, chunkPath string, opts MapOptions) (Result, error) {
	return ComputeSignal(ctx, ds, embedding, chunkPath, opts)
}

// ConceptScorer scores pre-computed embedding vectors against a trained
// concept, mirroring query.ConceptScorer's shape without importing the
// concept package directly (spec section 4.F/4.D). embedding names which
// (concept-version, embedding-name) model to score against, since a
// concept can be trained against more than one embedding (spec section
// 3.3).
type ConceptScorer interface {
	Score(namespace, name, embedding string, vectors [][]float32) ([]float64, error)
}

// ComputeConcept scores every embedding chunk at embeddingPath against
// the named concept's model for embedding, writing one float64 score per
// chunk alongside the embedding field, at "<parent of
// embeddingPath>.ns/name" (spec section 4.D/4.F: "compute_concept(ns,
// name, embedding, path)"; "write per-chunk ... score ... under
// path.ns/name").
func ComputeConcept(ctx context.Context, ds *storage.Dataset, scorer ConceptScorer, ns, name, embedding, embeddingPath string, opts MapOptions) (Result, error) {
	opts.InputPath = embeddingPath
	opts.Descriptor = curatepath.SignalDescriptor{Name: "concept:" + ns + "/" + name}
	if opts.OutputColumn == "" {
		opts.OutputColumn = ns + "/" + name
	}
	if opts.NestUnder == "" {
		if i := strings.LastIndexByte(embeddingPath, '.'); i >= 0 {
			opts.NestUnder = embeddingPath[:i]
		}
	}
	opts.OutputSchema = &curatepath.Field{DType: curatepath.DTypeFloat64}

	fn := func(ctx context.Context, batch []any) ([]any, error) {
		vectors := make([][]float32, len(batch))
		for i, v := range batch {
			vec, ok := v.([]float32)
			if !ok {
				return nil, fmt.Errorf("compute_concept: expected []float32 embedding at index %d, got %T", i, v)
			}
			vectors[i] = vec
		}
		scores, err := scorer.Score(ns, name, embedding, vectors)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(scores))
		for i, s := range scores {
			out[i] = s
		}
		return out, nil
	}
	return Map(ctx, ds, fn, opts)
}
