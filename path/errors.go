package path

import "fmt"

// SchemaErrorKind enumerates the ways a schema fails to deserialize or a
// path lookup fails against one, per spec section 7.
type SchemaErrorKind int

const (
	InvalidDtype SchemaErrorKind = iota
	ChildrenConflict
	OrphanSpan
	UnknownPath
)

func (k SchemaErrorKind) String() string {
	switch k {
	case InvalidDtype:
		return "InvalidDtype"
	case ChildrenConflict:
		return "ChildrenConflict"
	case OrphanSpan:
		return "OrphanSpan"
	case UnknownPath:
		return "UnknownPath"
	default:
		return "Unknown"
	}
}

// SchemaError reports a malformed schema or an unresolvable path,
// wrapping the offending detail the way vectordb/v1/lancedb wraps
// arrow/lancedb failures.
type SchemaError struct {
	Kind SchemaErrorKind
	Path Path
	Msg  string
}

func (e *SchemaError) Error() string {
	if e.Path.Len() > 0 || !e.Path.Empty() {
		return fmt.Sprintf("schema error %s at %q: %s", e.Kind, e.Path.String(), e.Msg)
	}
	return fmt.Sprintf("schema error %s: %s", e.Kind, e.Msg)
}

func newSchemaErr(kind SchemaErrorKind, p Path, format string, args ...any) *SchemaError {
	return &SchemaError{Kind: kind, Path: p, Msg: fmt.Sprintf(format, args...)}
}
