// Package query defines the closed set of query shapes the executor
// evaluates. Every shape renders a canonical String used for logging and as
// a cache key.
package query

import (
	"math"
	"strconv"
	"strings"
)

// Query is one of TermQuery, NumericRangeQuery, BooleanQuery or
// MultiFieldTextQuery.
type Query interface {
	isQuery()
	String() string
}

// TermQuery matches documents whose field contains token exactly. The token
// is not analyzed.
type TermQuery struct {
	Field string
	Token string
}

// NumericRangeQuery matches documents whose numeric field lies in
// [Min, Max], each end inclusive or exclusive. Infinite ends are open.
type NumericRangeQuery struct {
	Field      string
	Min        float64
	Max        float64
	IncludeMin bool
	IncludeMax bool
}

type Occur int

const (
	OccurMust Occur = iota
	OccurShould
	OccurMustNot
)

func (o Occur) String() string {
	switch o {
	case OccurMust:
		return "MUST"
	case OccurShould:
		return "SHOULD"
	case OccurMustNot:
		return "MUST_NOT"
	default:
		return "Occur(" + strconv.Itoa(int(o)) + ")"
	}
}

type Clause struct {
	Occur Occur
	Query Query
}

// BooleanQuery combines clauses. With at least one MUST clause the match set
// is the MUST intersection and SHOULD clauses only add score; without MUST it
// is the SHOULD union. MUST_NOT clauses always subtract, and a query made only
// of MUST_NOT clauses matches nothing.
type BooleanQuery struct {
	Clauses []Clause
}

// MultiFieldTextQuery analyzes Text once and matches any resulting token in
// any of Fields.
type MultiFieldTextQuery struct {
	Fields []string
	Text   string
}

func (TermQuery) isQuery()           {}
func (NumericRangeQuery) isQuery()   {}
func (BooleanQuery) isQuery()        {}
func (MultiFieldTextQuery) isQuery() {}

func Term(field, token string) TermQuery {
	return TermQuery{Field: field, Token: token}
}

func Range(field string, min, max float64, includeMin, includeMax bool) NumericRangeQuery {
	return NumericRangeQuery{Field: field, Min: min, Max: max, IncludeMin: includeMin, IncludeMax: includeMax}
}

// AtLeast is an inclusive range open above.
func AtLeast(field string, min float64) NumericRangeQuery {
	return Range(field, min, math.Inf(1), true, true)
}

// AtMost is an inclusive range open below.
func AtMost(field string, max float64) NumericRangeQuery {
	return Range(field, math.Inf(-1), max, true, true)
}

func Bool(clauses ...Clause) BooleanQuery {
	return BooleanQuery{Clauses: clauses}
}

func Must(q Query) Clause    { return Clause{Occur: OccurMust, Query: q} }
func Should(q Query) Clause  { return Clause{Occur: OccurShould, Query: q} }
func MustNot(q Query) Clause { return Clause{Occur: OccurMustNot, Query: q} }

func MultiField(text string, fields ...string) MultiFieldTextQuery {
	return MultiFieldTextQuery{Fields: fields, Text: text}
}

func (q TermQuery) String() string {
	return q.Field + ":" + quote(q.Token)
}

func (q NumericRangeQuery) String() string {
	var sb strings.Builder
	sb.WriteString(q.Field)
	sb.WriteByte(':')
	if q.IncludeMin {
		sb.WriteByte('[')
	} else {
		sb.WriteByte('{')
	}
	sb.WriteString(formatBound(q.Min))
	sb.WriteString(" TO ")
	sb.WriteString(formatBound(q.Max))
	if q.IncludeMax {
		sb.WriteByte(']')
	} else {
		sb.WriteByte('}')
	}
	return sb.String()
}

func (q BooleanQuery) String() string {
	parts := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		var prefix string
		switch c.Occur {
		case OccurMust:
			prefix = "+"
		case OccurMustNot:
			prefix = "-"
		}
		inner := "<nil>"
		if c.Query != nil {
			inner = c.Query.String()
		}
		parts = append(parts, prefix+inner)
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (q MultiFieldTextQuery) String() string {
	return "{" + strings.Join(q.Fields, ",") + "}:" + strconv.Quote(q.Text)
}

func formatBound(v float64) string {
	if math.IsInf(v, 0) {
		return "*"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"():[]{}+-\\") {
		return strconv.Quote(s)
	}
	return s
}
