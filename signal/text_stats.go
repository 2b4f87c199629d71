package signal

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	curatepath "github.com/aqua777/curator/path"
)

// TextStats computes per-document length, character-class counts, a
// readability approximation, type-token ratio, non-ASCII ratio, and a
// model token count. Token counting reuses the teacher's
// textsplitter/tokenizer.go TikTokenTokenizer approach; the rest has no
// tokenizer-library equivalent in the retrieval pack and runs on
// stdlib unicode (DESIGN.md).
type TextStats struct {
	encoding *tiktoken.Tiktoken
}

func NewTextStats() *TextStats {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return &TextStats{encoding: enc}
}

func (s *TextStats) Name() string         { return "text_stats" }
func (s *TextStats) InputType() InputType { return InputText }
func (s *TextStats) ValidDTypes() []curatepath.DType {
	return []curatepath.DType{curatepath.DTypeString}
}

func (s *TextStats) OutputSchema() *curatepath.Field {
	return &curatepath.Field{Fields: map[string]*curatepath.Field{
		"length":             {Name: "length", DType: curatepath.DTypeInt64},
		"num_letters":        {Name: "num_letters", DType: curatepath.DTypeInt64},
		"num_digits":         {Name: "num_digits", DType: curatepath.DTypeInt64},
		"num_punctuation":    {Name: "num_punctuation", DType: curatepath.DTypeInt64},
		"num_whitespace":     {Name: "num_whitespace", DType: curatepath.DTypeInt64},
		"readability_score":  {Name: "readability_score", DType: curatepath.DTypeFloat64},
		"type_token_ratio":   {Name: "type_token_ratio", DType: curatepath.DTypeFloat64},
		"non_ascii_ratio":    {Name: "non_ascii_ratio", DType: curatepath.DTypeFloat64},
		"token_count":        {Name: "token_count", DType: curatepath.DTypeInt64},
	}}
}

func (s *TextStats) Compute(ctx context.Context, inputs []any) ([]any, error) {
	out := make([]any, len(inputs))
	for i, in := range inputs {
		text, _ := in.(string)
		stats := computeStats(text)
		if s.encoding != nil {
			stats["token_count"] = int64(len(s.encoding.Encode(text, nil, nil)))
		} else {
			stats["token_count"] = int64(0)
		}
		out[i] = stats
	}
	return out, nil
}

func computeStats(text string) map[string]any {
	var letters, digits, punct, whitespace, nonASCII int64
	runeCount := int64(utf8.RuneCountInString(text))

	words := map[string]int{}
	var curWord []rune
	var numWords, numSentences int64

	flush := func() {
		if len(curWord) > 0 {
			words[string(curWord)]++
			numWords++
			curWord = nil
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			letters++
			curWord = append(curWord, unicode.ToLower(r))
		case unicode.IsDigit(r):
			digits++
			curWord = append(curWord, r)
		case unicode.IsSpace(r):
			whitespace++
			flush()
		case unicode.IsPunct(r):
			punct++
			flush()
			if r == '.' || r == '!' || r == '?' {
				numSentences++
			}
		default:
			flush()
		}
		if r > 127 {
			nonASCII++
		}
	}
	flush()
	if numSentences == 0 && numWords > 0 {
		numSentences = 1
	}

	ttr := 0.0
	if numWords > 0 {
		ttr = float64(len(words)) / float64(numWords)
	}
	nonASCIIRatio := 0.0
	if runeCount > 0 {
		nonASCIIRatio = float64(nonASCII) / float64(runeCount)
	}

	// A simplified Flesch-style readability approximation: higher is
	// easier to read, based on average sentence/word length.
	readability := 0.0
	if numWords > 0 && numSentences > 0 {
		avgWordsPerSentence := float64(numWords) / float64(numSentences)
		avgLettersPerWord := float64(letters) / float64(numWords)
		readability = 206.835 - 1.015*avgWordsPerSentence - 84.6*(avgLettersPerWord/4.7)
	}

	return map[string]any{
		"length":            runeCount,
		"num_letters":       letters,
		"num_digits":        digits,
		"num_punctuation":   punct,
		"num_whitespace":    whitespace,
		"readability_score": readability,
		"type_token_ratio":  ttr,
		"non_ascii_ratio":   nonASCIIRatio,
	}
}
