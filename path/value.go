package path

// Value is the runtime payload carried by a ValueNode: a scalar for a
// leaf, nil for a pure interior node, []Value for a list, or
// map[string]Value for a struct.
type Value any

// ValueNode is the runtime tuple (value, path, field) of spec section
// 3.1: a leaf, list, or struct value together with its concrete path
// (wildcards resolved to indices) and a link back to the schema Field
// that describes it.
type ValueNode struct {
	Value Value
	Path  Path
	Field *Field
}

// ListValueNodes walks row (a nested map[string]any / []any / scalar
// tree conforming to schema) and returns every ValueNode in it,
// resolving wildcard selectors to concrete indices as it descends. The
// traversal order is depth-first, field-map order is undefined for
// struct children (Go maps), but list order always matches row order.
func ListValueNodes(row Value, schema *Field) []ValueNode {
	var out []ValueNode
	var walk func(v Value, p Path, f *Field)
	walk = func(v Value, p Path, f *Field) {
		out = append(out, ValueNode{Value: v, Path: p, Field: f})
		switch {
		case f.IsList():
			items, _ := v.([]Value)
			for i, item := range items {
				walk(item, p.Child(NewIndex(i)), f.RepeatedField)
			}
		case f.Fields != nil:
			m, _ := v.(map[string]Value)
			for name, child := range f.Fields {
				cv := m[name]
				walk(cv, p.Child(NewName(name)), child)
			}
		}
	}
	walk(row, Path{}, schema)
	return out
}

// ValueAt resolves a concrete (non-wildcard) path against row and
// returns the Value found there, or false if the path runs off the end
// of the structure (e.g. a short list).
func ValueAt(row Value, p Path) (Value, bool) {
	cur := row
	for _, sel := range p.Selectors() {
		switch sel.Kind() {
		case Name:
			m, ok := cur.(map[string]Value)
			if !ok {
				return nil, false
			}
			cur, ok = m[sel.Name()]
			if !ok {
				return nil, false
			}
		case Index:
			items, ok := cur.([]Value)
			if !ok || sel.Index() >= len(items) {
				return nil, false
			}
			cur = items[sel.Index()]
		case Wildcard:
			return nil, false
		}
	}
	return cur, true
}
