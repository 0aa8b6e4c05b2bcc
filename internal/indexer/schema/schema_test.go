package schema

import (
	"errors"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

func bookSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(
		FieldSpec{Name: "id", Indexed: true, Stored: true},
		FieldSpec{Name: "name", Tokenized: true, Indexed: true, Stored: true},
		FieldSpec{Name: "price", Numeric: true, Indexed: true, Stored: true},
		FieldSpec{Name: "pic", Stored: true},
		FieldSpec{Name: "description", Tokenized: true, Indexed: true},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsInvalidSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []FieldSpec
	}{
		{"no fields", nil},
		{"empty name", []FieldSpec{{Name: " ", Indexed: true}}},
		{"duplicate", []FieldSpec{{Name: "a", Indexed: true}, {Name: "a", Stored: true}}},
		{"numeric tokenized", []FieldSpec{{Name: "p", Numeric: true, Tokenized: true, Indexed: true}}},
		{"useless", []FieldSpec{{Name: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.specs...); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s := bookSchema(t)
	tests := []struct {
		name    string
		doc     *Document
		wantErr bool
	}{
		{"valid", NewDocument().Add("id", Text("1")).Add("price", Number(59.9)), false},
		{"empty", NewDocument(), true},
		{"unknown field", NewDocument().Add("author", Text("Bloch")), true},
		{"text into numeric", NewDocument().Add("price", Text("cheap")), true},
		{"number into text", NewDocument().Add("name", Number(3)), true},
		{"duplicate field", NewDocument().Add("id", Text("1")).Add("id", Text("2")), true},
		{"nan", NewDocument().Add("price", Number(math.NaN())), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.doc)
			if tt.wantErr && !errors.Is(err, apperrors.ErrSchemaViolation) {
				t.Errorf("err = %v, want ErrSchemaViolation", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFromConfigAndEqual(t *testing.T) {
	fromCfg, err := FromConfig([]config.FieldConfig{
		{Name: "id", Indexed: true, Stored: true},
		{Name: "name", Tokenized: true, Indexed: true, Stored: true},
		{Name: "price", Numeric: true, Indexed: true, Stored: true},
		{Name: "pic", Stored: true},
		{Name: "description", Tokenized: true, Indexed: true},
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if !fromCfg.Equal(bookSchema(t)) {
		t.Errorf("schemas differ:\n%s\n%s", fromCfg, bookSchema(t))
	}
	other := MustNew(FieldSpec{Name: "id", Indexed: true})
	if fromCfg.Equal(other) {
		t.Error("expected schemas to differ")
	}
}

func TestValueText(t *testing.T) {
	if got := Number(45).Text(); got != "45" {
		t.Errorf("Number(45).Text() = %q", got)
	}
	if got := Number(59.9).Text(); got != "59.9" {
		t.Errorf("Number(59.9).Text() = %q", got)
	}
	doc := NewDocument().Add("name", Text("Clean Code"))
	if v, ok := doc.Get("name"); !ok || v.Text() != "Clean Code" {
		t.Errorf("Get(name) = %v, %v", v, ok)
	}
}
