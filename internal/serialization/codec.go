package serialization

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Codec converts between Go values of one TypeKey and JSON value trees.
//
// A JSON value tree is made of nil, bool, string, json.Number, []any and
// map[string]any. Decode also accepts float64 and Go integers in place of
// json.Number. Codecs are immutable once built and safe for concurrent use.
type Codec interface {
	Key() TypeKey
	Encode(v any) (any, error)
	Decode(data any) (any, error)
	Schema() *Schema
}

// Resolver resolves codecs for nested keys while a codec is being built.
type Resolver interface {
	Resolve(key TypeKey) (Codec, error)
}

// Factory builds the codec for a key its raw type was registered under.
// Nested codecs must be obtained through res.
type Factory func(key TypeKey, res Resolver) (Codec, error)

// Func is a Codec assembled from closures. A nil DecodeFunc makes the
// codec encode-only.
type Func struct {
	TypeKey    TypeKey
	EncodeFunc func(v any) (any, error)
	DecodeFunc func(data any) (any, error)
	JSONSchema *Schema
}

func (f *Func) Key() TypeKey    { return f.TypeKey }
func (f *Func) Schema() *Schema { return f.JSONSchema }

func (f *Func) Encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return f.EncodeFunc(v)
}

func (f *Func) Decode(data any) (any, error) {
	if f.DecodeFunc == nil {
		return nil, &UnsupportedOperationError{Key: f.TypeKey, Operation: "decode"}
	}
	return f.DecodeFunc(data)
}

// EncodeOnly returns a codec whose Decode always fails with
// UnsupportedOperationError.
func EncodeOnly(key TypeKey, schema *Schema, encode func(v any) (any, error)) *Func {
	return &Func{TypeKey: key, EncodeFunc: encode, JSONSchema: schema}
}

// StringCodec maps values of T to JSON strings through parse and format.
func StringCodec[T any](key TypeKey, format string, parse func(string) (T, error), render func(T) string) *Func {
	return &Func{
		TypeKey: key,
		EncodeFunc: func(v any) (any, error) {
			t, ok := As[T](v)
			if !ok {
				return nil, WrongType(key, v)
			}
			return render(t), nil
		},
		DecodeFunc: func(data any) (any, error) {
			s, ok := data.(string)
			if !ok {
				return nil, expected("string", data)
			}
			t, err := parse(s)
			if err != nil {
				return nil, &SerializationError{Reason: ReasonMalformed, Cause: err}
			}
			return t, nil
		},
		JSONSchema: Scalar("string", format),
	}
}

// As extracts a T from v, following a non-nil *T.
func As[T any](v any) (T, bool) {
	switch t := v.(type) {
	case T:
		return t, true
	case *T:
		if t != nil {
			return *t, true
		}
	}
	var zero T
	return zero, false
}

// Marshal encodes v with c and renders the tree as JSON bytes.
func Marshal(c Codec, v any) ([]byte, error) {
	tree, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// Unmarshal parses data and decodes it with c.
func Unmarshal(c Codec, data []byte) (any, error) {
	tree, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	return c.Decode(tree)
}

// DecodeInto decodes a tree with c and asserts the result to T.
func DecodeInto[T any](c Codec, data any) (T, error) {
	var zero T
	v, err := c.Decode(data)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := As[T](v)
	if !ok {
		return zero, &SerializationError{Reason: ReasonTypeMismatch, Cause: fmt.Errorf("codec %s produced %T", c.Key(), v)}
	}
	return t, nil
}

// ParseJSON parses a JSON document into a value tree, keeping numbers as
// json.Number.
func ParseJSON(data []byte) (any, error) {
	return ReadJSON(bytes.NewReader(data))
}

// ReadJSON reads one JSON document from r into a value tree.
func ReadJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, &SerializationError{Reason: "malformed json", Cause: err}
	}
	return tree, nil
}
