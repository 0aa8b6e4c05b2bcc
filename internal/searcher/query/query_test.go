package query

import (
	"math"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{"term", Term("description", "java"), "description:java"},
		{"term with space", Term("id", "a b"), `id:"a b"`},
		{"inclusive range", Range("price", 50, 70, true, true), "price:[50 TO 70]"},
		{"exclusive range", Range("price", 50, 70, false, false), "price:{50 TO 70}"},
		{"open range", AtLeast("price", 1.5), "price:[1.5 TO *]"},
		{"at most", AtMost("price", 3), "price:[* TO 3]"},
		{
			"boolean",
			Bool(Must(Term("a", "x")), Should(Term("b", "y")), MustNot(Term("c", "z"))),
			"(+a:x b:y -c:z)",
		},
		{"multi field", MultiField("Lucene in Action", "name", "description"), `{name,description}:"Lucene in Action"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAtLeastIsOpenAbove(t *testing.T) {
	q := AtLeast("price", 10)
	if !math.IsInf(q.Max, 1) || !q.IncludeMin || !q.IncludeMax {
		t.Errorf("unexpected range %+v", q)
	}
}

func TestOccurString(t *testing.T) {
	if OccurMust.String() != "MUST" || OccurShould.String() != "SHOULD" || OccurMustNot.String() != "MUST_NOT" {
		t.Error("unexpected occur names")
	}
}
