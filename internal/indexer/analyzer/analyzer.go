// Package analyzer turns raw text into the normalized token stream stored in
// the inverted index. The same Analyzer must be used when indexing a
// tokenized field and when analyzing query text for it; a mismatch does not
// fail, it silently yields wrong matches.
package analyzer

import (
	"fmt"
	"iter"
	"slices"
	"sort"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer produces a lazy, finite token sequence. Ranging over the returned
// sequence twice re-analyzes the text from the start.
type Analyzer interface {
	Name() string
	Analyze(text string) iter.Seq[Token]
}

// Terms collects the terms of text in order.
func Terms(a Analyzer, text string) []string {
	var terms []string
	for tok := range a.Analyze(text) {
		terms = append(terms, tok.Term)
	}
	return terms
}

// UniqueTerms collects the distinct terms of text in first-seen order.
func UniqueTerms(a Analyzer, text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for tok := range a.Analyze(text) {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

var registry = map[string]func() Analyzer{
	"standard": func() Analyzer { return NewStandard() },
	"english":  func() Analyzer { return NewEnglish() },
}

// New returns the analyzer registered under name.
func New(name string) (Analyzer, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown analyzer %q (available: %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the registered analyzer names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return slices.Clip(names)
}
