package query

import (
	curatepath "github.com/aqua777/curator/path"
	"github.com/aqua777/curator/storage"
)

// MergedSchema joins the dataset's immutable source schema with every
// committed enrichment's output schema, nested under its source path —
// the "merged schema" section 4.C's planner resolves every projected
// path against.
func MergedSchema(sourceSchema *curatepath.Field, entries []storage.EnrichmentEntry) (*curatepath.Field, error) {
	root := sourceSchema
	for _, e := range entries {
		sourceParts := curatepath.FromStrings(splitDots(e.SourcePath)...)
		outputParts := curatepath.FromStrings(splitDots(e.OutputPath)...)
		outputName := outputParts.Selectors()[len(outputParts.Selectors())-1].Name()

		enrichmentField := curatepath.NewEnrichmentSchema(outputName, e.Signal, e.OutputSchema)

		var err error
		root, err = attachAt(root, sourceParts, enrichmentField)
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}

// attachAt walks to the field named by path and merges child in as a
// named enrichment child, rebuilding ancestors immutably.
func attachAt(root *curatepath.Field, path curatepath.Path, child *curatepath.Field) (*curatepath.Field, error) {
	segs := path.Selectors()
	if len(segs) == 0 {
		merged, err := curatepath.MergeField(root, child)
		if err != nil {
			return nil, err
		}
		return merged, nil
	}
	name := segs[0].Name()
	target, ok := root.Fields[name]
	if !ok {
		return nil, newErr(UnknownPath, path.String(), "enrichment source path not found in schema")
	}
	rest := curatepath.New(segs[1:]...)
	mergedChild, err := attachAt(target, rest, child)
	if err != nil {
		return nil, err
	}
	newFields := map[string]*curatepath.Field{}
	for k, v := range root.Fields {
		newFields[k] = v
	}
	newFields[name] = mergedChild
	clone := *root
	clone.Fields = newFields
	return &clone, nil
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
