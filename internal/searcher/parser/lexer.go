package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

type lexer struct {
	src string
	pos int
}

func lex(src string) ([]term, error) {
	l := &lexer{src: src}
	var terms []term
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return terms, nil
		}
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
}

func (l *lexer) next() (term, error) {
	var t term
	switch l.src[l.pos] {
	case '+':
		t.op = opMust
		l.pos++
	case '-':
		t.op = opMustNot
		l.pos++
	}
	if l.pos >= len(l.src) || l.isSpaceAt(l.pos) {
		return term{}, apperrors.Newf(apperrors.ErrInvalidInput, "dangling operator at offset %d", l.pos-1)
	}

	if l.src[l.pos] == '"' {
		text, err := l.quoted()
		if err != nil {
			return term{}, err
		}
		t.text = text
		return t, nil
	}

	word := l.word()
	if field, value, ok := strings.Cut(word, ":"); ok && field != "" {
		t.field = field
		switch {
		case value == "" && l.pos < len(l.src) && l.src[l.pos] == '"':
			text, err := l.quoted()
			if err != nil {
				return term{}, err
			}
			t.text = text
		case value == "" && l.pos < len(l.src) && (l.src[l.pos] == '[' || l.src[l.pos] == '{'):
			if err := l.rangeBody(&t); err != nil {
				return term{}, err
			}
		case value == "":
			return term{}, apperrors.Newf(apperrors.ErrInvalidInput, "field %q has no value", field)
		default:
			t.text = value
		}
		return t, nil
	}

	if t.op == opDefault && (word == "AND" || word == "OR" || word == "NOT") {
		t.kind = kindKeyword
	}
	t.text = word
	return t, nil
}

// word reads up to whitespace, stopping after a "field:" prefix that is
// followed by a quote or range bracket.
func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.src) && !l.isSpaceAt(l.pos) {
		if l.src[l.pos] == ':' && l.pos+1 < len(l.src) && strings.IndexByte("\"[{", l.src[l.pos+1]) >= 0 {
			l.pos++
			break
		}
		l.pos++
	}
	return l.src[start:l.pos]
}

func (l *lexer) quoted() (string, error) {
	start := l.pos
	end := strings.IndexByte(l.src[start+1:], '"')
	if end < 0 {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "unterminated quote at offset %d", start)
	}
	l.pos = start + 1 + end + 1
	return l.src[start+1 : start+1+end], nil
}

func (l *lexer) rangeBody(t *term) error {
	start := l.pos
	t.kind = kindRange
	t.incLo = l.src[l.pos] == '['
	end := strings.IndexAny(l.src[start+1:], "]}")
	if end < 0 {
		return apperrors.Newf(apperrors.ErrInvalidInput, "unterminated range at offset %d", start)
	}
	closeAt := start + 1 + end
	t.incHi = l.src[closeAt] == ']'
	parts := strings.Fields(l.src[start+1 : closeAt])
	if len(parts) != 3 || parts[1] != "TO" {
		return apperrors.Newf(apperrors.ErrInvalidInput, "range must look like [a TO b], got %q", l.src[start:closeAt+1])
	}
	t.lo, t.hi = parts[0], parts[2]
	l.pos = closeAt + 1
	return nil
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && l.isSpaceAt(l.pos) {
		_, size := utf8.DecodeRuneInString(l.src[l.pos:])
		l.pos += size
	}
}

func (l *lexer) isSpaceAt(i int) bool {
	r, _ := utf8.DecodeRuneInString(l.src[i:])
	return unicode.IsSpace(r)
}
