package analyzer

import (
	"iter"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

// Standard applies NFKC normalization, UAX#29 word segmentation and
// lower-casing. Segments without a letter or digit (spaces, punctuation) are
// dropped.
type Standard struct{}

func NewStandard() *Standard {
	return &Standard{}
}

func (*Standard) Name() string { return "standard" }

func (*Standard) Analyze(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		segments := words.FromString(norm.NFKC.String(text))
		pos := 0
		for segments.Next() {
			word := segments.Value()
			if !isWord(word) {
				continue
			}
			if !yield(Token{Term: strings.ToLower(word), Position: pos}) {
				return
			}
			pos++
		}
	}
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
