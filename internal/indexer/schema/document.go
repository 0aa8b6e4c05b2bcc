package schema

import (
	"math"
	"strconv"
)

// Value is a field value: either text or a number.
type Value struct {
	text    string
	num     float64
	numeric bool
}

func Text(s string) Value { return Value{text: s} }

func Number(f float64) Value { return Value{num: f, numeric: true} }

func (v Value) IsNumeric() bool { return v.numeric }

// Text returns the text value, or the formatted number for numeric values.
func (v Value) Text() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.text
}

// Number returns the numeric value; zero for text values.
func (v Value) Number() float64 { return v.num }

func (v Value) isNaN() bool { return math.IsNaN(v.num) }

func (v Value) String() string { return v.Text() }

// Field is one named value of a document.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered list of fields.
type Document struct {
	Fields []Field
}

// NewDocument builds a document from fields in order.
func NewDocument(fields ...Field) *Document {
	return &Document{Fields: fields}
}

// Add appends a field and returns the document for chaining.
func (d *Document) Add(name string, v Value) *Document {
	d.Fields = append(d.Fields, Field{Name: name, Value: v})
	return d
}

// Get returns the value of the named field.
func (d *Document) Get(name string) (Value, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}
