// Package parser turns a user's search text into a query tree.
//
// Plain words search the default fields. The extended syntax supports
// field:value, field:"quoted value", numeric ranges field:[a TO b] with
// '{' '}' for exclusive ends and '*' for an open end, +term (required),
// -term or NOT term (excluded), and the AND / OR operators. Clauses are
// optional (OR) unless the text contains AND, which makes every unprefixed
// clause required.
package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

type operator int

const (
	opDefault operator = iota
	opMust
	opMustNot
)

type kind int

const (
	kindText kind = iota
	kindRange
	kindKeyword
)

type term struct {
	kind  kind
	op    operator
	field string
	text  string
	lo    string
	hi    string
	incLo bool
	incHi bool
}

// Parse parses text against s. Free text with no syntax becomes a single
// MultiFieldTextQuery over defaultFields.
func Parse(text string, defaultFields []string, s *schema.Schema, a analyzer.Analyzer) (query.Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "empty query")
	}
	terms, err := lex(text)
	if err != nil {
		return nil, err
	}
	if isFreeText(terms) {
		if len(defaultFields) == 0 {
			return nil, apperrors.New(apperrors.ErrInvalidInput, "no default fields to search")
		}
		return query.MultiField(text, defaultFields...), nil
	}

	useAnd := false
	for _, t := range terms {
		if t.kind == kindKeyword && t.text == "AND" {
			useAnd = true
		}
	}
	var clauses []query.Clause
	negateNext := false
	for _, t := range terms {
		if t.kind == kindKeyword {
			if t.text == "NOT" {
				negateNext = true
			}
			continue
		}
		q, err := build(t, defaultFields, s, a)
		if err != nil {
			return nil, err
		}
		if q == nil {
			negateNext = false
			continue
		}
		occur := query.OccurShould
		switch {
		case negateNext || t.op == opMustNot:
			occur = query.OccurMustNot
		case t.op == opMust || useAnd:
			occur = query.OccurMust
		}
		negateNext = false
		clauses = append(clauses, query.Clause{Occur: occur, Query: q})
	}
	if len(clauses) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "query %q has no searchable terms", text)
	}
	if len(clauses) == 1 && clauses[0].Occur != query.OccurMustNot {
		return clauses[0].Query, nil
	}
	return query.Bool(clauses...), nil
}

func isFreeText(terms []term) bool {
	for _, t := range terms {
		if t.kind != kindText || t.op != opDefault || t.field != "" {
			return false
		}
	}
	return true
}

// build returns nil when the term analyzes to nothing.
func build(t term, defaultFields []string, s *schema.Schema, a analyzer.Analyzer) (query.Query, error) {
	if t.field == "" {
		if len(defaultFields) == 0 {
			return nil, apperrors.New(apperrors.ErrInvalidInput, "no default fields to search")
		}
		if len(analyzer.Terms(a, t.text)) == 0 && !hasUntokenized(defaultFields, s) {
			return nil, nil
		}
		return query.MultiField(t.text, defaultFields...), nil
	}
	spec, ok := s.Field(t.field)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownField, "field %q is not declared", t.field)
	}
	if t.kind == kindRange {
		return buildRange(t)
	}
	switch {
	case spec.Numeric:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "field %q expects a number, got %q", t.field, t.text)
		}
		return query.Range(t.field, v, v, true, true), nil
	case spec.Tokenized:
		tokens := analyzer.UniqueTerms(a, t.text)
		switch len(tokens) {
		case 0:
			return nil, nil
		case 1:
			return query.Term(t.field, tokens[0]), nil
		default:
			return query.MultiField(t.text, t.field), nil
		}
	default:
		return query.Term(t.field, t.text), nil
	}
}

func hasUntokenized(fields []string, s *schema.Schema) bool {
	for _, name := range fields {
		if spec, ok := s.Field(name); ok && !spec.Tokenized && !spec.Numeric {
			return true
		}
	}
	return false
}

func buildRange(t term) (query.Query, error) {
	lo, err := parseBound(t.lo, math.Inf(-1))
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "bad lower bound %q for %s", t.lo, t.field)
	}
	hi, err := parseBound(t.hi, math.Inf(1))
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "bad upper bound %q for %s", t.hi, t.field)
	}
	switch {
	case t.hi == "*" && t.lo != "*" && t.incLo:
		return query.AtLeast(t.field, lo), nil
	case t.lo == "*" && t.hi != "*" && t.incHi:
		return query.AtMost(t.field, hi), nil
	}
	return query.Range(t.field, lo, hi, t.incLo, t.incHi), nil
}

func parseBound(s string, open float64) (float64, error) {
	if s == "*" {
		return open, nil
	}
	return strconv.ParseFloat(s, 64)
}
