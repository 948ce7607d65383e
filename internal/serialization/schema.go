package serialization

import (
	"bytes"
	"reflect"

	"github.com/goccy/go-json"
)

// Schema is the JSON-Schema fragment describing a codec's wire form.
// Schemas handed out by codecs are shared and must not be modified.
type Schema struct {
	Type                 string
	Format               string
	Enum                 []string
	Items                *Schema
	AdditionalProperties *Schema
	Properties           []Property
	Required             []string
}

// Property is one named entry of an object schema.
type Property struct {
	Name   string
	Schema *Schema
}

// Scalar returns a schema with only type and format set.
func Scalar(typ, format string) *Schema {
	return &Schema{Type: typ, Format: format}
}

// ArrayOf returns an array schema with the given items schema.
func ArrayOf(items *Schema) *Schema {
	return &Schema{Type: "array", Items: items}
}

// MapOf returns an object schema whose values all follow values.
func MapOf(values *Schema) *Schema {
	return &Schema{Type: "object", AdditionalProperties: values}
}

// Property returns the schema of the named property, or nil.
func (s *Schema) Property(name string) *Schema {
	if s == nil {
		return nil
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// IsRequired reports whether name is listed as required.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Equal compares two schemas structurally, including property order.
func (s *Schema) Equal(other *Schema) bool {
	return reflect.DeepEqual(s.normalized(), other.normalized())
}

func (s *Schema) normalized() *Schema {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = s.Items.normalized()
	out.AdditionalProperties = s.AdditionalProperties.normalized()
	if s.isObject() {
		out.Properties = make([]Property, len(s.Properties))
		for i, p := range s.Properties {
			out.Properties[i] = Property{Name: p.Name, Schema: p.Schema.normalized()}
		}
		out.Required = append([]string{}, s.Required...)
	}
	if len(s.Enum) == 0 {
		out.Enum = nil
	}
	return &out
}

func (s *Schema) isObject() bool {
	return s.Properties != nil || s.Required != nil
}

// MarshalJSON renders properties in declaration order. Object schemas
// always carry a required list.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Schema) write(buf *bytes.Buffer) error {
	if s == nil {
		buf.WriteString("{}")
		return nil
	}
	w := objectWriter{buf: buf}
	buf.WriteByte('{')
	if s.Type != "" {
		w.value("type", s.Type)
	}
	if s.Format != "" {
		w.value("format", s.Format)
	}
	if len(s.Enum) > 0 {
		w.value("enum", s.Enum)
	}
	if s.Items != nil {
		w.key("items")
		if err := s.Items.write(buf); err != nil {
			return err
		}
	}
	if s.AdditionalProperties != nil {
		w.key("additionalProperties")
		if err := s.AdditionalProperties.write(buf); err != nil {
			return err
		}
	}
	if s.isObject() {
		w.key("properties")
		buf.WriteByte('{')
		inner := objectWriter{buf: buf}
		for _, p := range s.Properties {
			inner.key(p.Name)
			if err := p.Schema.write(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		required := s.Required
		if required == nil {
			required = []string{}
		}
		w.value("required", required)
	}
	buf.WriteByte('}')
	return w.err
}

type objectWriter struct {
	buf   *bytes.Buffer
	count int
	err   error
}

func (w *objectWriter) key(name string) {
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	w.count++
	b, err := json.Marshal(name)
	if err != nil && w.err == nil {
		w.err = err
	}
	w.buf.Write(b)
	w.buf.WriteByte(':')
}

func (w *objectWriter) value(name string, v any) {
	w.key(name)
	b, err := json.Marshal(v)
	if err != nil && w.err == nil {
		w.err = err
	}
	w.buf.Write(b)
}

// ObjectBuilder assembles an object schema from property schemas in
// declaration order.
type ObjectBuilder struct {
	schema Schema
}

// NewObjectSchema starts an object schema with no properties.
func NewObjectSchema() *ObjectBuilder {
	return &ObjectBuilder{schema: Schema{Type: "object", Properties: []Property{}, Required: []string{}}}
}

// Property appends a property; required ones are also appended to the
// required list.
func (b *ObjectBuilder) Property(name string, s *Schema, required bool) *ObjectBuilder {
	b.schema.Properties = append(b.schema.Properties, Property{Name: name, Schema: s})
	if required {
		b.schema.Required = append(b.schema.Required, name)
	}
	return b
}

func (b *ObjectBuilder) Build() *Schema {
	out := b.schema
	out.Properties = append([]Property{}, b.schema.Properties...)
	out.Required = append([]string{}, b.schema.Required...)
	return &out
}
