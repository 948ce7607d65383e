package serialization

import (
	"fmt"
	"reflect"
)

type compositeField struct {
	PropertyDescriptor
	codec       Codec
	defaultTree any
}

// compositeCodec encodes a struct as a JSON object, one entry per
// reflected property.
type compositeCodec struct {
	key    TypeKey
	fields []compositeField
	schema *Schema
}

// buildComposite resolves a codec for every property of key and assembles
// the object codec and its schema.
func buildComposite(key TypeKey, reflector *Reflector, res Resolver) (Codec, error) {
	props, err := reflector.Properties(key)
	if err != nil {
		return nil, err
	}

	fields := make([]compositeField, 0, len(props))
	schema := NewObjectSchema()
	for _, p := range props {
		codec, err := res.Resolve(p.Key)
		if err != nil {
			return nil, err
		}
		f := compositeField{PropertyDescriptor: p, codec: codec}
		if p.Default != "" {
			tree, err := ParseJSON([]byte(p.Default))
			if err == nil {
				_, err = codec.Decode(tree)
			}
			if err != nil {
				return nil, &ResolutionError{Key: key, Reason: fmt.Sprintf("invalid default for property %q", p.Name), Cause: err}
			}
			f.defaultTree = tree
		}
		fields = append(fields, f)
		schema.Property(p.Name, codec.Schema(), p.Required)
	}
	return &compositeCodec{key: key, fields: fields, schema: schema.Build()}, nil
}

func (c *compositeCodec) Key() TypeKey    { return c.key }
func (c *compositeCodec) Schema() *Schema { return c.schema }

func (c *compositeCodec) Encode(v any) (any, error) {
	rv, ok, err := valueOf(c.key, v)
	if err != nil || !ok {
		return nil, err
	}
	out := make(map[string]any, len(c.fields))
	for _, f := range c.fields {
		fv := rv.FieldByIndex(f.index)
		if !f.Required && absent(fv, f.omitZero) {
			continue
		}
		if f.nillable && fv.IsNil() {
			empty, ok := emptyContainer(fv.Type())
			if !ok {
				out[f.Name] = nil
				continue
			}
			fv = empty
		}
		enc, err := f.codec.Encode(fv.Interface())
		if err != nil {
			return nil, &SerializationError{Reason: ReasonUnencodable, Property: f.Name, Cause: err}
		}
		out[f.Name] = enc
	}
	return out, nil
}

func (c *compositeCodec) Decode(data any) (any, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, expected("object", data)
	}
	out := reflect.New(c.key.Raw()).Elem()
	for _, f := range c.fields {
		item, present := obj[f.Name]
		if !present {
			if f.Required {
				return nil, MissingField(f.Name)
			}
			if f.defaultTree == nil {
				continue
			}
			item = f.defaultTree
		}
		if err := decodeInto(f.codec, out.FieldByIndex(f.index), item); err != nil {
			if IsUnsupported(err) {
				return nil, err
			}
			return nil, TypeMismatch(f.Name, err)
		}
	}
	return out.Interface(), nil
}

// emptyContainer returns an empty slice or map of t, so a required nil
// collection still encodes as the array or object its schema names.
func emptyContainer(t reflect.Type) (reflect.Value, bool) {
	switch t.Kind() {
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0), true
	case reflect.Map:
		return reflect.MakeMap(t), true
	}
	return reflect.Value{}, false
}

func absent(fv reflect.Value, omitZero bool) bool {
	if nillable(fv.Kind()) && fv.IsNil() {
		return true
	}
	return omitZero && fv.IsZero()
}
