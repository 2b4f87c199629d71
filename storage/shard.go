package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	curatepath "github.com/aqua777/curator/path"
)

// rowIDColumn is the compound row-id join key column present in every
// shard, per spec section 3.1's "special per-row identifier path."
const rowIDColumn = "_rowid"

// ShardColumn describes one column a shard will hold: either a native
// scalar column (string/bool/numeric) or an embedding column, or — for
// anything structurally nested (spans, structs, repeated values) — a
// JSON-encoded string column, mirroring vectordb/v1/lancedb/lancedb.go's
// own "metadata" column, which serializes a map[string]any to a JSON
// string rather than modeling it as native Arrow struct columns.
type ShardColumn struct {
	Name  string
	DType curatepath.DType
	Dim   int // only meaningful when DType == DTypeEmbedding
}

// isNativeScalar reports whether c can be written as a plain Arrow
// scalar column instead of falling back to the JSON-string encoding.
func (c ShardColumn) isNativeScalar() bool {
	switch c.DType {
	case curatepath.DTypeString, curatepath.DTypeBoolean, curatepath.DTypeBinary,
		curatepath.DTypeInt8, curatepath.DTypeInt16, curatepath.DTypeInt32, curatepath.DTypeInt64,
		curatepath.DTypeUint8, curatepath.DTypeUint16, curatepath.DTypeUint32, curatepath.DTypeUint64,
		curatepath.DTypeFloat32, curatepath.DTypeFloat64:
		return true
	default:
		return false
	}
}

func (c ShardColumn) arrowField() (arrow.Field, error) {
	if c.DType == curatepath.DTypeEmbedding {
		if c.Dim <= 0 {
			return arrow.Field{}, fmt.Errorf("embedding column %q has no declared dimension", c.Name)
		}
		return arrow.Field{Name: c.Name, Type: arrow.FixedSizeListOf(int32(c.Dim), arrow.PrimitiveTypes.Float32)}, nil
	}
	if !c.isNativeScalar() {
		return arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String}, nil
	}
	switch c.DType {
	case curatepath.DTypeString, curatepath.DTypeDate, curatepath.DTypeTime, curatepath.DTypeTimestamp, curatepath.DTypeInterval:
		return arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String}, nil
	case curatepath.DTypeBoolean:
		return arrow.Field{Name: c.Name, Type: arrow.FixedWidthTypes.Boolean}, nil
	case curatepath.DTypeBinary:
		return arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.Binary}, nil
	case curatepath.DTypeInt8:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int8}, nil
	case curatepath.DTypeInt16:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int16}, nil
	case curatepath.DTypeInt32:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int32}, nil
	case curatepath.DTypeInt64:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int64}, nil
	case curatepath.DTypeUint8:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Uint8}, nil
	case curatepath.DTypeUint16:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Uint16}, nil
	case curatepath.DTypeUint32:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Uint32}, nil
	case curatepath.DTypeUint64:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Uint64}, nil
	case curatepath.DTypeFloat32:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float32}, nil
	case curatepath.DTypeFloat64:
		return arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64}, nil
	default:
		return arrow.Field{}, fmt.Errorf("unsupported dtype %s for shard column %q", c.DType, c.Name)
	}
}

// ShardRow is one row written into a shard: a stable row id plus the
// values for each declared ShardColumn.
type ShardRow struct {
	RowID  string
	Values map[string]any
}

// WriteShard encodes rows into an Arrow IPC file stream at path,
// following the builder-per-column pattern of
// vectordb/v1/lancedb/lancedb.go's LanceDBStore.Add: one
// array.NewRecordBuilder over the declared schema, one typed builder
// per field, a single record, one write.
func WriteShard(path string, columns []ShardColumn, rows []ShardRow) error {
	fields := make([]arrow.Field, 0, len(columns)+1)
	fields = append(fields, arrow.Field{Name: rowIDColumn, Type: arrow.BinaryTypes.String})
	for _, c := range columns {
		f, err := c.arrowField()
		if err != nil {
			return wrapErr(ShardCorrupt, err)
		}
		fields = append(fields, f)
	}
	schema := arrow.NewSchema(fields, nil)

	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.StringBuilder)
	for _, row := range rows {
		idBuilder.Append(row.RowID)
		for i, c := range columns {
			if err := appendValue(builder.Field(i+1), c, row.Values[c.Name]); err != nil {
				return wrapErr(ShardCorrupt, fmt.Errorf("row %s column %q: %w", row.RowID, c.Name, err))
			}
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	f, err := os.Create(path)
	if err != nil {
		return wrapErr(ShardCorrupt, err)
	}
	defer f.Close()

	writer, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return wrapErr(ShardCorrupt, err)
	}
	if err := writer.Write(record); err != nil {
		return wrapErr(ShardCorrupt, err)
	}
	return wrapErr(ShardCorrupt, writer.Close())
}

func appendValue(b array.Builder, c ShardColumn, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	if c.DType == curatepath.DTypeEmbedding {
		fb := b.(*array.FixedSizeListBuilder)
		vec, ok := v.([]float32)
		if !ok {
			if f64, ok2 := v.([]float64); ok2 {
				vec = make([]float32, len(f64))
				for i, x := range f64 {
					vec[i] = float32(x)
				}
			} else {
				return fmt.Errorf("expected []float32 embedding, got %T", v)
			}
		}
		if len(vec) != c.Dim {
			return fmt.Errorf("embedding has dimension %d, expected %d", len(vec), c.Dim)
		}
		fb.Append(true)
		vb := fb.ValueBuilder().(*array.Float32Builder)
		for _, x := range vec {
			vb.Append(x)
		}
		return nil
	}
	if !c.isNativeScalar() {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.(*array.StringBuilder).Append(string(data))
		return nil
	}
	switch tb := b.(type) {
	case *array.StringBuilder:
		s, _ := v.(string)
		tb.Append(s)
	case *array.BooleanBuilder:
		bv, _ := v.(bool)
		tb.Append(bv)
	case *array.BinaryBuilder:
		bs, _ := v.([]byte)
		tb.Append(bs)
	case *array.Int8Builder:
		tb.Append(int8(toInt64(v)))
	case *array.Int16Builder:
		tb.Append(int16(toInt64(v)))
	case *array.Int32Builder:
		tb.Append(int32(toInt64(v)))
	case *array.Int64Builder:
		tb.Append(toInt64(v))
	case *array.Uint8Builder:
		tb.Append(uint8(toInt64(v)))
	case *array.Uint16Builder:
		tb.Append(uint16(toInt64(v)))
	case *array.Uint32Builder:
		tb.Append(uint32(toInt64(v)))
	case *array.Uint64Builder:
		tb.Append(uint64(toInt64(v)))
	case *array.Float32Builder:
		tb.Append(float32(toFloat64(v)))
	case *array.Float64Builder:
		tb.Append(toFloat64(v))
	default:
		return fmt.Errorf("unsupported builder type %T", b)
	}
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// ReadShard opens an Arrow IPC file shard and returns every row in
// row-id (storage) order, optionally filtered to rowIDs when non-empty.
func ReadShard(path string, columns []ShardColumn, rowIDs map[string]bool) ([]ShardRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(ShardCorrupt, err)
	}
	defer f.Close()

	reader, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, wrapErr(ShardCorrupt, err)
	}
	defer reader.Close()

	var out []ShardRow
	for i := 0; i < reader.NumRecords(); i++ {
		rec, err := reader.RecordAt(i)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, wrapErr(ShardCorrupt, err)
		}
		idCol := rec.Column(0).(*array.String)
		for r := 0; r < int(rec.NumRows()); r++ {
			id := idCol.Value(r)
			if rowIDs != nil && !rowIDs[id] {
				continue
			}
			values := make(map[string]any, len(columns))
			for ci, c := range columns {
				col := rec.Column(ci + 1)
				values[c.Name] = readValue(col, c, r)
			}
			out = append(out, ShardRow{RowID: id, Values: values})
		}
	}
	return out, nil
}

func readValue(col arrow.Array, c ShardColumn, r int) any {
	if col.IsNull(r) {
		return nil
	}
	if c.DType == curatepath.DTypeEmbedding {
		list := col.(*array.FixedSizeList)
		values := list.ListValues().(*array.Float32)
		start := r * c.Dim
		vec := make([]float32, c.Dim)
		for i := 0; i < c.Dim; i++ {
			vec[i] = values.Value(start + i)
		}
		return vec
	}
	if !c.isNativeScalar() {
		var v any
		_ = json.Unmarshal([]byte(col.(*array.String).Value(r)), &v)
		return v
	}
	switch tc := col.(type) {
	case *array.String:
		return tc.Value(r)
	case *array.Boolean:
		return tc.Value(r)
	case *array.Binary:
		return tc.Value(r)
	case *array.Int8:
		return tc.Value(r)
	case *array.Int16:
		return tc.Value(r)
	case *array.Int32:
		return tc.Value(r)
	case *array.Int64:
		return tc.Value(r)
	case *array.Uint8:
		return tc.Value(r)
	case *array.Uint16:
		return tc.Value(r)
	case *array.Uint32:
		return tc.Value(r)
	case *array.Uint64:
		return tc.Value(r)
	case *array.Float32:
		return tc.Value(r)
	case *array.Float64:
		return tc.Value(r)
	default:
		return nil
	}
}
