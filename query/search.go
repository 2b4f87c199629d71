package query

import curatepath "github.com/aqua777/curator/path"

// Search is the tagged union of spec section 4.C's search operators;
// each implicitly projects a span subtree and contributes a sort score
// (section 4.G).
type Search interface {
	searchPath() curatepath.Path
	isSearch()
}

// KeywordSearch compiles Query to a substring matcher over the text at
// Path (spec section 4.G).
type KeywordSearch struct {
	Path  curatepath.Path
	Query string
}

func (s KeywordSearch) searchPath() curatepath.Path { return s.Path }
func (KeywordSearch) isSearch()                     {}

// SemanticSearch ranks rows by cosine similarity between Query — resolved
// to a vector via the named Embedding at plan time (spec section 4.C:
// "rewrite searches into (span-producing signal invocation, score
// sort_by)"; section 4.G) — and every chunk vector stored at Path.
type SemanticSearch struct {
	Path      curatepath.Path
	Query     string
	Embedding string
}

func (s SemanticSearch) searchPath() curatepath.Path { return s.Path }
func (SemanticSearch) isSearch()                     {}

// ConceptSearch ranks rows using a trained concept model's scores in
// place of raw cosine similarity. Embedding names which (concept-version,
// embedding-name) model to score against, since a concept can be trained
// against more than one embedding (spec section 3.3).
type ConceptSearch struct {
	Path        curatepath.Path
	ConceptNS   string
	ConceptName string
	Embedding   string
}

func (s ConceptSearch) searchPath() curatepath.Path { return s.Path }
func (ConceptSearch) isSearch()                     {}

// SearchPath returns the path a search operator is evaluated against.
func SearchPath(s Search) curatepath.Path { return s.searchPath() }
