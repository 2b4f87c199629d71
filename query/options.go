package query

import curatepath "github.com/aqua777/curator/path"

// SortOrder is the direction a sort_by path is compared in.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// UDFColumn marks a projected column that runs a signal inline rather
// than reading an already-materialized path (spec section 4.C: "may
// include UDF columns (path, signal_descriptor, alias) which run
// inline"). BestEffort governs the failure policy of spec section 4.C:
// abort the stream, or yield null for the affected row.
type UDFColumn struct {
	Signal     curatepath.SignalDescriptor
	BestEffort bool
}

// ColumnSpec is one projected output column.
type ColumnSpec struct {
	Path  curatepath.Path
	Alias string
	UDF   *UDFColumn
}

// OutputAlias returns the column's alias, defaulting to its path string.
func (c ColumnSpec) OutputAlias() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Path.String()
}

// SortKey is one sort_by path paired with its direction.
type SortKey struct {
	Path  curatepath.Path
	Order SortOrder
}

// SelectRowsOptions is the closed configuration of spec section 4.C.
type SelectRowsOptions struct {
	Columns        []ColumnSpec
	Filters        []Filter
	Searches       []Search
	SortBy         []SortKey
	Limit          int // 0 means unbounded
	Offset         int
	CombineColumns bool
	IncludeLabels  []string
	ExcludeLabels  []string
}
