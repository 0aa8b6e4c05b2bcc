package ingestion

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-index/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-index/pkg/errors"
)

// Mapper converts records into documents. Columns the schema does not
// declare are ignored, NULL columns are omitted, and values are coerced to
// the field's kind.
type Mapper struct {
	schema *schema.Schema
}

func NewMapper(s *schema.Schema) *Mapper {
	return &Mapper{schema: s}
}

// Map builds a document with fields in schema order.
func (m *Mapper) Map(rec Record) (*schema.Document, error) {
	byName := make(map[string]any, len(rec))
	for col, v := range rec {
		byName[strings.ToLower(col)] = v
	}
	doc := schema.NewDocument()
	var problems []string
	for _, spec := range m.schema.Fields() {
		raw, ok := byName[strings.ToLower(spec.Name)]
		if !ok || raw == nil {
			continue
		}
		var (
			v   schema.Value
			err error
		)
		if spec.Numeric {
			v, err = toNumber(raw)
		} else {
			v, err = toText(raw)
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", spec.Name, err))
			continue
		}
		doc.Add(spec.Name, v)
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, apperrors.Newf(apperrors.ErrSchemaViolation, "record does not fit schema: %s", strings.Join(problems, "; "))
	}
	if len(doc.Fields) == 0 {
		return nil, apperrors.New(apperrors.ErrSchemaViolation, "record has no schema columns")
	}
	return doc, nil
}

func toNumber(raw any) (schema.Value, error) {
	switch v := raw.(type) {
	case int:
		return schema.Number(float64(v)), nil
	case int32:
		return schema.Number(float64(v)), nil
	case int64:
		return schema.Number(float64(v)), nil
	case float32:
		return schema.Number(float64(v)), nil
	case float64:
		return schema.Number(v), nil
	case []byte:
		return parseNumber(string(v))
	case string:
		return parseNumber(v)
	default:
		return schema.Value{}, fmt.Errorf("cannot use %T as a number", raw)
	}
}

func parseNumber(s string) (schema.Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return schema.Value{}, fmt.Errorf("not a number: %q", s)
	}
	return schema.Number(f), nil
}

func toText(raw any) (schema.Value, error) {
	switch v := raw.(type) {
	case string:
		return schema.Text(v), nil
	case []byte:
		return schema.Text(string(v)), nil
	case int:
		return schema.Text(strconv.Itoa(v)), nil
	case int32:
		return schema.Text(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return schema.Text(strconv.FormatInt(v, 10)), nil
	case float32:
		return schema.Text(strconv.FormatFloat(float64(v), 'f', -1, 32)), nil
	case float64:
		return schema.Text(strconv.FormatFloat(v, 'f', -1, 64)), nil
	case bool:
		return schema.Text(strconv.FormatBool(v)), nil
	case time.Time:
		return schema.Text(v.UTC().Format(time.RFC3339)), nil
	case fmt.Stringer:
		return schema.Text(v.String()), nil
	default:
		return schema.Value{}, fmt.Errorf("cannot use %T as text", raw)
	}
}
