// Package schema declares the per-field indexing policy and the document
// model that writers validate against it.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

// FieldSpec is the policy for one field.
//
//   - Tokenized: text is run through the analyzer; otherwise the whole value
//     is a single exact term.
//   - Indexed: the field is searchable.
//   - Stored: the field is returned by document lookups.
//   - Numeric: values are numbers, indexed in the numeric range structure.
type FieldSpec struct {
	Name      string `json:"name"`
	Tokenized bool   `json:"tokenized"`
	Indexed   bool   `json:"indexed"`
	Stored    bool   `json:"stored"`
	Numeric   bool   `json:"numeric"`
}

// Schema is an immutable, ordered set of field specs.
type Schema struct {
	fields []FieldSpec
	byName map[string]int
}

// New validates specs and builds a Schema. Field order is preserved.
func New(specs ...FieldSpec) (*Schema, error) {
	if len(specs) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "schema declares no fields")
	}
	s := &Schema{
		fields: make([]FieldSpec, 0, len(specs)),
		byName: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, apperrors.New(apperrors.ErrInvalidInput, "field name must not be empty")
		}
		if _, dup := s.byName[spec.Name]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "field %q declared twice", spec.Name)
		}
		if spec.Numeric && spec.Tokenized {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "numeric field %q cannot be tokenized", spec.Name)
		}
		if !spec.Indexed && !spec.Stored {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "field %q is neither indexed nor stored", spec.Name)
		}
		s.byName[spec.Name] = len(s.fields)
		s.fields = append(s.fields, spec)
	}
	return s, nil
}

// MustNew is New for statically known schemas.
func MustNew(specs ...FieldSpec) *Schema {
	s, err := New(specs...)
	if err != nil {
		panic(err)
	}
	return s
}

// FromConfig builds a Schema from the YAML field list.
func FromConfig(fields []config.FieldConfig) (*Schema, error) {
	specs := make([]FieldSpec, 0, len(fields))
	for _, f := range fields {
		specs = append(specs, FieldSpec{
			Name:      f.Name,
			Tokenized: f.Tokenized,
			Indexed:   f.Indexed,
			Stored:    f.Stored,
			Numeric:   f.Numeric,
		})
	}
	return New(specs...)
}

// Field returns the spec for name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// Fields returns a copy of the specs in declaration order.
func (s *Schema) Fields() []FieldSpec {
	return slices.Clone(s.fields)
}

// Equal reports whether both schemas declare the same fields with the same
// policy, in the same order.
func (s *Schema) Equal(other *Schema) bool {
	if other == nil {
		return false
	}
	return slices.Equal(s.fields, other.fields)
}

// Validate checks a document against the schema and reports the first
// problem as ErrSchemaViolation.
func (s *Schema) Validate(doc *Document) error {
	if doc == nil || len(doc.Fields) == 0 {
		return apperrors.New(apperrors.ErrSchemaViolation, "document has no fields")
	}
	seen := make(map[string]struct{}, len(doc.Fields))
	for _, f := range doc.Fields {
		spec, ok := s.Field(f.Name)
		if !ok {
			return apperrors.Newf(apperrors.ErrSchemaViolation, "unknown field %q", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return apperrors.Newf(apperrors.ErrSchemaViolation, "field %q appears more than once", f.Name)
		}
		seen[f.Name] = struct{}{}
		if spec.Numeric != f.Value.IsNumeric() {
			return apperrors.Newf(apperrors.ErrSchemaViolation,
				"field %q expects %s value, got %s", f.Name, kindName(spec.Numeric), kindName(f.Value.IsNumeric()))
		}
		if f.Value.IsNumeric() && f.Value.isNaN() {
			return apperrors.Newf(apperrors.ErrSchemaViolation, "field %q is NaN", f.Name)
		}
	}
	return nil
}

func kindName(numeric bool) string {
	if numeric {
		return "numeric"
	}
	return "text"
}

func (s *Schema) String() string {
	parts := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		parts = append(parts, fmt.Sprintf("%s{tok=%t idx=%t sto=%t num=%t}",
			f.Name, f.Tokenized, f.Indexed, f.Stored, f.Numeric))
	}
	return strings.Join(parts, " ")
}
