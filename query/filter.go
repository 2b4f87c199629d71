package query

import (
	"fmt"
	"regexp"

	curatepath "github.com/aqua777/curator/path"
)

// BinaryOp enumerates the two-operand comparison filters of spec
// section 4.C.
type BinaryOp int

const (
	Equals BinaryOp = iota
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
	LengthGreater
	LengthLess
	RegexMatches
)

// UnaryOp enumerates the no-operand presence filters.
type UnaryOp int

const (
	Exists UnaryOp = iota
	NotExists
)

// ListOp enumerates filters that compare against a set of values.
type ListOp int

const (
	In ListOp = iota
)

// Filter is the tagged union the section 9 open question resolved on:
// BinaryFilter | UnaryFilter | ListFilter, replacing the legacy
// single-record {path, comparison, value} form. Each variant implements
// this marker so a switch on the concrete type dispatches cleanly.
type Filter interface {
	filterPath() curatepath.Path
	isFilter()
}

// BinaryFilter compares the value at Path against Value using Op.
type BinaryFilter struct {
	Path  curatepath.Path
	Op    BinaryOp
	Value any
}

func (f BinaryFilter) filterPath() curatepath.Path { return f.Path }
func (BinaryFilter) isFilter()                     {}

// UnaryFilter tests presence/absence of a value at Path.
type UnaryFilter struct {
	Path curatepath.Path
	Op   UnaryOp
}

func (f UnaryFilter) filterPath() curatepath.Path { return f.Path }
func (UnaryFilter) isFilter()                     {}

// ListFilter tests membership of the value at Path within Values.
type ListFilter struct {
	Path   curatepath.Path
	Op     ListOp
	Values []any
}

func (f ListFilter) filterPath() curatepath.Path { return f.Path }
func (ListFilter) isFilter()                     {}

// FilterPath returns the path a filter is evaluated against, for
// planning (resolving it in the merged schema).
func FilterPath(f Filter) curatepath.Path { return f.filterPath() }

// Apply evaluates f against a resolved scalar value, where ok reports
// whether the path was present in the row at all (false => treated as
// missing for Exists/NotExists).
func Apply(f Filter, value any, ok bool) (bool, error) {
	switch ft := f.(type) {
	case UnaryFilter:
		switch ft.Op {
		case Exists:
			return ok, nil
		case NotExists:
			return !ok, nil
		}
		return false, fmt.Errorf("unknown unary op %v", ft.Op)
	case ListFilter:
		if !ok {
			return false, nil
		}
		for _, v := range ft.Values {
			if equalValues(value, v) {
				return true, nil
			}
		}
		return false, nil
	case BinaryFilter:
		if !ok {
			return false, nil
		}
		return applyBinary(ft, value)
	default:
		return false, fmt.Errorf("unknown filter type %T", f)
	}
}

func applyBinary(f BinaryFilter, value any) (bool, error) {
	switch f.Op {
	case Equals:
		return equalValues(value, f.Value), nil
	case NotEqual:
		return !equalValues(value, f.Value), nil
	case Less, LessEqual, Greater, GreaterEqual:
		return compareNumeric(f.Op, value, f.Value)
	case LengthGreater, LengthLess:
		return compareLength(f.Op, value, f.Value)
	case RegexMatches:
		pattern, ok := f.Value.(string)
		if !ok {
			return false, &Error{Kind: TypeMismatch, Msg: "regex_matches requires a string pattern"}
		}
		s, ok := value.(string)
		if !ok {
			return false, &Error{Kind: TypeMismatch, Msg: "regex_matches requires a string field"}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, &Error{Kind: TypeMismatch, Msg: err.Error()}
		}
		return re.MatchString(s), nil
	default:
		return false, fmt.Errorf("unknown binary op %v", f.Op)
	}
}

func equalValues(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(op BinaryOp, a, b any) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false, &Error{Kind: TypeMismatch, Msg: "comparison op requires numeric operands"}
	}
	switch op {
	case Less:
		return af < bf, nil
	case LessEqual:
		return af <= bf, nil
	case Greater:
		return af > bf, nil
	case GreaterEqual:
		return af >= bf, nil
	default:
		return false, fmt.Errorf("not a comparison op: %v", op)
	}
}

func compareLength(op BinaryOp, value, want any) (bool, error) {
	n, ok := lengthOf(value)
	if !ok {
		return false, &Error{Kind: TypeMismatch, Msg: "length op requires a string or list field"}
	}
	wf, ok := toFloat(want)
	if !ok {
		return false, &Error{Kind: TypeMismatch, Msg: "length op requires a numeric comparand"}
	}
	switch op {
	case LengthGreater:
		return float64(n) > wf, nil
	case LengthLess:
		return float64(n) < wf, nil
	default:
		return false, fmt.Errorf("not a length op: %v", op)
	}
}

func lengthOf(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return len(t), true
	case []any:
		return len(t), true
	case []string:
		return len(t), true
	case []float32:
		return len(t), true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
