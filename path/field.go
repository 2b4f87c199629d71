package path

import "fmt"

// DType enumerates the scalar leaf types a Field may declare. The zero
// value, DTypeNone, marks an interior (struct or list) node.
type DType int

const (
	DTypeNone DType = iota
	DTypeString
	DTypeStringSpan
	DTypeBoolean
	DTypeBinary
	DTypeInt8
	DTypeInt16
	DTypeInt32
	DTypeInt64
	DTypeUint8
	DTypeUint16
	DTypeUint32
	DTypeUint64
	DTypeFloat16
	DTypeFloat32
	DTypeFloat64
	DTypeEmbedding
	DTypeDate
	DTypeTime
	DTypeTimestamp
	DTypeInterval
)

var dtypeNames = map[DType]string{
	DTypeNone:       "none",
	DTypeString:     "string",
	DTypeStringSpan: "string_span",
	DTypeBoolean:    "boolean",
	DTypeBinary:     "binary",
	DTypeInt8:       "int8",
	DTypeInt16:      "int16",
	DTypeInt32:      "int32",
	DTypeInt64:      "int64",
	DTypeUint8:      "uint8",
	DTypeUint16:     "uint16",
	DTypeUint32:     "uint32",
	DTypeUint64:     "uint64",
	DTypeFloat16:    "float16",
	DTypeFloat32:    "float32",
	DTypeFloat64:    "float64",
	DTypeEmbedding:  "embedding",
	DTypeDate:       "date",
	DTypeTime:       "time",
	DTypeTimestamp:  "timestamp",
	DTypeInterval:   "interval",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return "invalid"
}

// SpanBounds carries the byte-offset range of a string_span leaf,
// anchored onto a sibling or ancestor string field.
type SpanBounds struct {
	Start int
	End   int
}

// SignalDescriptor identifies the enrichment that produced a subtree:
// the registry name plus any parameters that distinguish runs of the
// same signal (e.g. which embedding a concept score was computed over).
type SignalDescriptor struct {
	Name   string
	Params map[string]string
}

// Equal reports whether two descriptors name the same signal
// invocation (spec section 4.D.8: identical descriptor => no-op rerun).
func (d SignalDescriptor) Equal(o SignalDescriptor) bool {
	if d.Name != o.Name || len(d.Params) != len(o.Params) {
		return false
	}
	for k, v := range d.Params {
		if ov, ok := o.Params[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Field describes one node of a Schema tree. Exactly one of Fields,
// RepeatedField, or DType (non-none) may be populated at an interior
// node; a leaf has DType and no children.
type Field struct {
	Name          string
	DType         DType
	Fields        map[string]*Field
	RepeatedField *Field
	Signal        *SignalDescriptor

	// AnchorPath, set only on string_span leaves, names the sibling or
	// ancestor string field the span's offsets are relative to.
	AnchorPath Path

	// Dim is the vector length for a DTypeEmbedding leaf.
	Dim int
}

// IsLeaf reports whether the field is a scalar leaf (a "petal"). A
// field that carries both a dtype and enrichment children (e.g. "text"
// after a signal nests "text.pii" beneath it) is still a petal: its own
// value is scalar even though the schema subtree has children.
func (f *Field) IsLeaf() bool {
	return f.DType != DTypeNone && f.RepeatedField == nil
}

// IsStruct reports whether the field is a pure struct (named children,
// no scalar value of its own) node.
func (f *Field) IsStruct() bool { return f.Fields != nil && f.DType == DTypeNone }

// Children reports any enrichment children nested under a leaf or
// struct field, regardless of whether the field itself is also a petal.
func (f *Field) Children() map[string]*Field { return f.Fields }

// IsList reports whether the field is a repeated-field (list) node.
func (f *Field) IsList() bool { return f.RepeatedField != nil }

// ChildFields returns the field's named children in the sense spec
// section 4.A names "child_fields": struct/enrichment children, or the
// single repeated child for a list node. A pure leaf has no children.
func ChildFields(f *Field) []*Field {
	switch {
	case f.IsList():
		return []*Field{f.RepeatedField}
	case f.Fields != nil:
		out := make([]*Field, 0, len(f.Fields))
		for _, c := range f.Fields {
			out = append(out, c)
		}
		return out
	default:
		return nil
	}
}

// validate checks the interior-node exclusivity and dtype/anchor
// invariants of section 3.1, recursively. RepeatedField is mutually
// exclusive with both DType and Fields; DType and Fields may coexist
// (a leaf with enrichment children nested beneath it).
func validate(f *Field, p Path) error {
	if f.RepeatedField != nil && (f.DType != DTypeNone || f.Fields != nil) {
		return newSchemaErr(ChildrenConflict, p, "repeated_field cannot be combined with dtype or fields")
	}
	if f.DType == DTypeNone && f.Fields == nil && f.RepeatedField == nil {
		return newSchemaErr(InvalidDtype, p, "interior field has neither dtype nor children")
	}
	if f.DType == DTypeStringSpan && f.AnchorPath.Empty() && p.Empty() {
		return newSchemaErr(OrphanSpan, p, "string_span field has no anchor path")
	}
	if f.DType == DTypeEmbedding {
		segs := p.Selectors()
		if len(segs) == 0 || segs[len(segs)-1].Kind() == Name {
			return newSchemaErr(InvalidDtype, p, "embedding dtype is only allowed as a leaf reached through a repeated parent")
		}
	}

	switch {
	case f.IsList():
		child := f.RepeatedField
		if err := validate(child, p.Child(NewWildcard())); err != nil {
			return err
		}
	case f.Fields != nil:
		for name, child := range f.Fields {
			if err := validate(child, p.Child(NewName(name))); err != nil {
				return err
			}
		}
	}
	return nil
}


// Schema is the root Field of a dataset or enrichment output subtree.
type Schema struct {
	Root *Field
}

// DeserializeSchema validates a raw Field tree (e.g. decoded from the
// manifest's stored JSON) and returns it as a Schema, or a *SchemaError.
func DeserializeSchema(raw *Field) (*Schema, error) {
	if raw == nil {
		return nil, newSchemaErr(InvalidDtype, Path{}, "nil root field")
	}
	if err := validate(raw, Path{}); err != nil {
		return nil, err
	}
	return &Schema{Root: raw}, nil
}

// GetField resolves p against the schema, returning the Field at that
// address. GetField is total on any path produced by ListValueNodes for
// a row conforming to this schema (spec section 4.A invariant 1).
func GetField(schema *Schema, p Path) (*Field, error) {
	cur := schema.Root
	for i, sel := range p.Selectors() {
		switch {
		case cur.IsList():
			if sel.Kind() == Name {
				return nil, newSchemaErr(UnknownPath, truncate(p, i+1), "expected an index or wildcard")
			}
			cur = cur.RepeatedField
		case cur.Fields != nil:
			if sel.Kind() != Name {
				return nil, newSchemaErr(UnknownPath, truncate(p, i+1), "expected a field name")
			}
			child, ok := cur.Fields[sel.Name()]
			if !ok {
				return nil, newSchemaErr(UnknownPath, truncate(p, i+1), fmt.Sprintf("no field %q", sel.Name()))
			}
			cur = child
		default:
			return nil, newSchemaErr(UnknownPath, truncate(p, i+1), "path continues past a leaf")
		}
	}
	return cur, nil
}

func truncate(p Path, n int) Path {
	segs := p.Selectors()
	if n > len(segs) {
		n = len(segs)
	}
	return New(segs[:n]...)
}

// Petals enumerates every scalar-dtype field reachable from f — exactly
// the fields a query can project as scalars (spec section 4.A).
func Petals(f *Field) []*Field {
	var out []*Field
	var walk func(*Field)
	walk = func(n *Field) {
		if n.IsLeaf() {
			out = append(out, n)
		}
		if n.IsList() {
			walk(n.RepeatedField)
		}
		if n.Fields != nil {
			for _, c := range n.Fields {
				walk(c)
			}
		}
	}
	walk(f)
	return out
}

// NearestSignal walks from the schema root toward p and returns the
// nearest signal-bearing ancestor's descriptor, identifying which
// enrichment produced the node at p (spec section 3.1).
func NearestSignal(schema *Schema, p Path) (*SignalDescriptor, Path, bool) {
	cur := schema.Root
	var lastSig *SignalDescriptor
	var lastPath Path
	if cur.Signal != nil {
		lastSig, lastPath = cur.Signal, Path{}
	}
	built := Path{}
	for _, sel := range p.Selectors() {
		switch {
		case cur.IsList():
			cur = cur.RepeatedField
		case cur.Fields != nil && sel.Kind() == Name:
			child, ok := cur.Fields[sel.Name()]
			if !ok {
				return lastSig, lastPath, lastSig != nil
			}
			cur = child
		default:
			return lastSig, lastPath, lastSig != nil
		}
		built = built.Child(sel)
		if cur.Signal != nil {
			lastSig, lastPath = cur.Signal, built
		}
	}
	return lastSig, lastPath, lastSig != nil
}

// NewEnrichmentSchema synthesizes the Schema for an enrichment's output
// subtree, joined at outputName under the source path it nests under
// (spec section 3.2: "its output field appears at text.S").
func NewEnrichmentSchema(outputName string, descriptor SignalDescriptor, output *Field) *Field {
	clone := *output
	clone.Name = outputName
	clone.Signal = &descriptor
	return &clone
}

// MergeField returns a copy of base with overlay attached as an
// additional named child, used to join an enrichment's synthesized
// schema under its source struct field (spec section 3.2: "Multiple
// enrichments under the same source path coexist as siblings").
func MergeField(base *Field, overlay *Field) (*Field, error) {
	if base.IsList() {
		return nil, newSchemaErr(ChildrenConflict, Path{}, "cannot attach an enrichment under a repeated field directly; nest under one of its children")
	}
	merged := &Field{
		Name:       base.Name,
		DType:      base.DType,
		Signal:     base.Signal,
		AnchorPath: base.AnchorPath,
		Fields:     map[string]*Field{},
	}
	for k, v := range base.Fields {
		merged.Fields[k] = v
	}
	if _, exists := merged.Fields[overlay.Name]; exists {
		return nil, newSchemaErr(ChildrenConflict, Path{}, fmt.Sprintf("field %q already has a child named %q", base.Name, overlay.Name))
	}
	merged.Fields[overlay.Name] = overlay
	return merged, nil
}
