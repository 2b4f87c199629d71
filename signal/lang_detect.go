package signal

import (
	"context"
	"sort"
	"strings"

	curatepath "github.com/aqua777/curator/path"
)

// langProfiles holds the top trigram frequency signature of each
// supported language, built offline from representative corpora. This
// is a hand-rolled n-gram classifier: no dependency in the retrieval
// pack covers language identification (DESIGN.md).
var langProfiles = map[string][]string{
	"en": {" th", "the", "he ", "ing", " to", "on ", "and", "er ", " an", "nd "},
	"fr": {" de", "es ", "le ", "de ", "ent", " le", "la ", "on ", " la", "les"},
	"es": {" de", "de ", "os ", " la", "la ", "ue ", "en ", "es ", " el", "ent"},
	"de": {"en ", " de", "er ", "ch ", "die", "der", "nde", " ei", "ein", " un"},
}

// LangDetect is the per-document language identification signal.
type LangDetect struct{}

func NewLangDetect() *LangDetect { return &LangDetect{} }

func (s *LangDetect) Name() string           { return "lang_detect" }
func (s *LangDetect) InputType() InputType   { return InputText }
func (s *LangDetect) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}
func (s *LangDetect) OutputSchema() *curatepath.Field {
	return &curatepath.Field{DType: curatepath.DTypeString}
}

func (s *LangDetect) Compute(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		out[i] = classify(text)
	}
	return out, nil
}

func classify(text string) string {
	lower := strings.ToLower(text)
	if len(strings.TrimSpace(lower)) == 0 {
		return "unknown"
	}
	counts := trigramCounts(lower)

	type scored struct {
		lang  string
		score int
	}
	var scores []scored
	for lang, profile := range langProfiles {
		score := 0
		for _, tri := range profile {
			score += counts[tri]
		}
		scores = append(scores, scored{lang, score})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].lang < scores[j].lang
	})
	if len(scores) == 0 || scores[0].score == 0 {
		return "unknown"
	}
	return scores[0].lang
}

func trigramCounts(s string) map[string]int {
	counts := map[string]int{}
	padded := " " + s + " "
	runes := []rune(padded)
	for i := 0; i+3 <= len(runes); i++ {
		counts[string(runes[i:i+3])]++
	}
	return counts
}
