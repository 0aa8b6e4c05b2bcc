package analyzer

import (
	"iter"

	"github.com/kljensen/snowball/english"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// English runs the Standard pipeline, removes stop words and applies the
// Snowball English stemmer. Positions count only the surviving tokens.
type English struct {
	base *Standard
}

func NewEnglish() *English {
	return &English{base: NewStandard()}
}

func (*English) Name() string { return "english" }

func (e *English) Analyze(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		for tok := range e.base.Analyze(text) {
			if _, isStop := stopWords[tok.Term]; isStop {
				continue
			}
			stemmed := english.Stem(tok.Term, false)
			if stemmed == "" {
				continue
			}
			if !yield(Token{Term: stemmed, Position: pos}) {
				return
			}
			pos++
		}
	}
}
