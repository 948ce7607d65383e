package serialization

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/goccy/go-json"
)

// Enumerated is implemented by string types with a closed set of values.
type Enumerated interface {
	EnumValues() []string
}

var enumeratedType = reflect.TypeOf((*Enumerated)(nil)).Elem()

// builtin returns the engine-owned codec for key's kind. handled is false
// for struct kinds, which go through the reflector.
func builtin(key TypeKey, res Resolver) (c Codec, handled bool, err error) {
	raw := key.Raw()
	switch raw.Kind() {
	case reflect.String:
		if raw.Implements(enumeratedType) {
			values := reflect.Zero(raw).Interface().(Enumerated).EnumValues()
			return newEnumCodec(key, values), true, nil
		}
		return newStringCodec(key), true, nil
	case reflect.Bool:
		return newBoolCodec(key), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return newIntCodec(key), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return newUintCodec(key), true, nil
	case reflect.Float32, reflect.Float64:
		return newFloatCodec(key), true, nil
	case reflect.Slice, reflect.Array:
		if raw.Kind() == reflect.Slice && raw.Elem().Kind() == reflect.Uint8 {
			return newBytesCodec(key), true, nil
		}
		elem, err := res.Resolve(KeyOf(raw.Elem(), key.args...))
		if err != nil {
			return nil, true, err
		}
		return newListCodec(key, elem), true, nil
	case reflect.Map:
		if raw.Key().Kind() != reflect.String {
			return nil, true, &ResolutionError{Key: key, Reason: "map keys must be strings"}
		}
		elem, err := res.Resolve(KeyOf(raw.Elem(), key.args...))
		if err != nil {
			return nil, true, err
		}
		return newMapCodec(key, elem), true, nil
	case reflect.Struct:
		return nil, false, nil
	case reflect.Interface:
		return nil, true, &ResolutionError{Key: key, Reason: "opaque interface type, register a custom codec"}
	default:
		return nil, true, &ResolutionError{Key: key, Reason: fmt.Sprintf("unsupported kind %s", raw.Kind())}
	}
}

// scalarCodec handles one reflect kind through a pair of functions.
type scalarCodec struct {
	key    TypeKey
	schema *Schema
	encode func(rv reflect.Value) (any, error)
	decode func(data any) (reflect.Value, error)
}

func (c *scalarCodec) Key() TypeKey    { return c.key }
func (c *scalarCodec) Schema() *Schema { return c.schema }

func (c *scalarCodec) Encode(v any) (any, error) {
	rv, ok, err := valueOf(c.key, v)
	if err != nil || !ok {
		return nil, err
	}
	return c.encode(rv)
}

func (c *scalarCodec) Decode(data any) (any, error) {
	rv, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	return rv.Convert(c.key.Raw()).Interface(), nil
}

func newStringCodec(key TypeKey) Codec {
	return &scalarCodec{
		key:    key,
		schema: Scalar("string", ""),
		encode: func(rv reflect.Value) (any, error) { return rv.String(), nil },
		decode: func(data any) (reflect.Value, error) {
			s, ok := data.(string)
			if !ok {
				return reflect.Value{}, expected("string", data)
			}
			return reflect.ValueOf(s), nil
		},
	}
}

func newEnumCodec(key TypeKey, values []string) Codec {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	check := func(s string) error {
		if _, ok := allowed[s]; !ok {
			return Malformed("%q is not one of %v", s, values)
		}
		return nil
	}
	return &scalarCodec{
		key:    key,
		schema: &Schema{Type: "string", Enum: append([]string(nil), values...)},
		encode: func(rv reflect.Value) (any, error) {
			if err := check(rv.String()); err != nil {
				return nil, &SerializationError{Reason: ReasonUnencodable, Cause: err}
			}
			return rv.String(), nil
		},
		decode: func(data any) (reflect.Value, error) {
			s, ok := data.(string)
			if !ok {
				return reflect.Value{}, expected("string", data)
			}
			if err := check(s); err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(s), nil
		},
	}
}

func newBoolCodec(key TypeKey) Codec {
	return &scalarCodec{
		key:    key,
		schema: Scalar("boolean", ""),
		encode: func(rv reflect.Value) (any, error) { return rv.Bool(), nil },
		decode: func(data any) (reflect.Value, error) {
			b, ok := data.(bool)
			if !ok {
				return reflect.Value{}, expected("boolean", data)
			}
			return reflect.ValueOf(b), nil
		},
	}
}

func newIntCodec(key TypeKey) Codec {
	raw := key.Raw()
	format := ""
	if raw.Kind() != reflect.Int {
		format = "int" + strconv.Itoa(raw.Bits())
	}
	zero := reflect.Zero(raw)
	return &scalarCodec{
		key:    key,
		schema: Scalar("number", format),
		encode: func(rv reflect.Value) (any, error) {
			return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
		},
		decode: func(data any) (reflect.Value, error) {
			n, err := toInt64(data)
			if err != nil {
				return reflect.Value{}, err
			}
			if zero.OverflowInt(n) {
				return reflect.Value{}, Malformed("%d overflows %s", n, raw)
			}
			return reflect.ValueOf(n), nil
		},
	}
}

func newUintCodec(key TypeKey) Codec {
	raw := key.Raw()
	format := ""
	if raw.Kind() != reflect.Uint {
		format = "uint" + strconv.Itoa(raw.Bits())
	}
	zero := reflect.Zero(raw)
	return &scalarCodec{
		key:    key,
		schema: Scalar("number", format),
		encode: func(rv reflect.Value) (any, error) {
			return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
		},
		decode: func(data any) (reflect.Value, error) {
			n, err := toUint64(data)
			if err != nil {
				return reflect.Value{}, err
			}
			if zero.OverflowUint(n) {
				return reflect.Value{}, Malformed("%d overflows %s", n, raw)
			}
			return reflect.ValueOf(n), nil
		},
	}
}

func newFloatCodec(key TypeKey) Codec {
	raw := key.Raw()
	bits := raw.Bits()
	format := "double"
	if bits == 32 {
		format = "float"
	}
	zero := reflect.Zero(raw)
	return &scalarCodec{
		key:    key,
		schema: Scalar("number", format),
		encode: func(rv reflect.Value) (any, error) {
			f := rv.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, &SerializationError{Reason: ReasonUnencodable, Cause: fmt.Errorf("%v has no JSON form", f)}
			}
			return json.Number(strconv.FormatFloat(f, 'g', -1, bits)), nil
		},
		decode: func(data any) (reflect.Value, error) {
			f, err := toFloat64(data)
			if err != nil {
				return reflect.Value{}, err
			}
			if zero.OverflowFloat(f) {
				return reflect.Value{}, Malformed("%v overflows %s", f, raw)
			}
			return reflect.ValueOf(f), nil
		},
	}
}

func newBytesCodec(key TypeKey) Codec {
	return &scalarCodec{
		key:    key,
		schema: Scalar("string", "byte"),
		encode: func(rv reflect.Value) (any, error) {
			if rv.IsNil() {
				return nil, nil
			}
			return base64.StdEncoding.EncodeToString(rv.Bytes()), nil
		},
		decode: func(data any) (reflect.Value, error) {
			if data == nil {
				return reflect.ValueOf([]byte(nil)), nil
			}
			s, ok := data.(string)
			if !ok {
				return reflect.Value{}, expected("base64 string", data)
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return reflect.Value{}, &SerializationError{Reason: ReasonMalformed, Cause: err}
			}
			return reflect.ValueOf(b), nil
		},
	}
}

// listCodec encodes slices and arrays element by element.
type listCodec struct {
	key    TypeKey
	elem   Codec
	schema *Schema
}

func newListCodec(key TypeKey, elem Codec) Codec {
	return &listCodec{key: key, elem: elem, schema: ArrayOf(elem.Schema())}
}

func (c *listCodec) Key() TypeKey    { return c.key }
func (c *listCodec) Schema() *Schema { return c.schema }

func (c *listCodec) Encode(v any) (any, error) {
	rv, ok, err := valueOf(c.key, v)
	if err != nil || !ok {
		return nil, err
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return nil, nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		item, err := c.elem.Encode(rv.Index(i).Interface())
		if err != nil {
			return nil, &SerializationError{Reason: ReasonUnencodable, Property: indexName(i), Cause: err}
		}
		out[i] = item
	}
	return out, nil
}

func (c *listCodec) Decode(data any) (any, error) {
	raw := c.key.Raw()
	if data == nil && raw.Kind() == reflect.Slice {
		return reflect.Zero(raw).Interface(), nil
	}
	items, ok := data.([]any)
	if !ok {
		return nil, expected("array", data)
	}
	var out reflect.Value
	if raw.Kind() == reflect.Array {
		if len(items) != raw.Len() {
			return nil, Malformed("expected %d elements, got %d", raw.Len(), len(items))
		}
		out = reflect.New(raw).Elem()
	} else {
		out = reflect.MakeSlice(raw, len(items), len(items))
	}
	for i, item := range items {
		if err := decodeInto(c.elem, out.Index(i), item); err != nil {
			return nil, TypeMismatch(indexName(i), err)
		}
	}
	return out.Interface(), nil
}

// mapCodec encodes string-keyed maps as JSON objects.
type mapCodec struct {
	key    TypeKey
	elem   Codec
	schema *Schema
}

func newMapCodec(key TypeKey, elem Codec) Codec {
	return &mapCodec{key: key, elem: elem, schema: MapOf(elem.Schema())}
}

func (c *mapCodec) Key() TypeKey    { return c.key }
func (c *mapCodec) Schema() *Schema { return c.schema }

func (c *mapCodec) Encode(v any) (any, error) {
	rv, ok, err := valueOf(c.key, v)
	if err != nil || !ok {
		return nil, err
	}
	if rv.IsNil() {
		return nil, nil
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		name := iter.Key().String()
		item, err := c.elem.Encode(iter.Value().Interface())
		if err != nil {
			return nil, &SerializationError{Reason: ReasonUnencodable, Property: name, Cause: err}
		}
		out[name] = item
	}
	return out, nil
}

func (c *mapCodec) Decode(data any) (any, error) {
	raw := c.key.Raw()
	if data == nil {
		return reflect.Zero(raw).Interface(), nil
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, expected("object", data)
	}
	out := reflect.MakeMapWithSize(raw, len(obj))
	for name, item := range obj {
		elem := reflect.New(raw.Elem()).Elem()
		if err := decodeInto(c.elem, elem, item); err != nil {
			return nil, TypeMismatch(name, err)
		}
		out.SetMapIndex(reflect.ValueOf(name).Convert(raw.Key()), elem)
	}
	return out.Interface(), nil
}

// decodeInto decodes item with c and stores the result in dst. JSON null
// leaves nillable destinations at their zero value.
func decodeInto(c Codec, dst reflect.Value, item any) error {
	if item == nil && nillable(dst.Kind()) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	v, err := c.Decode(item)
	if err != nil {
		return err
	}
	return assign(dst, v)
}

func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	rv := reflect.ValueOf(v)
	dt := dst.Type()
	switch {
	case rv.Type().AssignableTo(dt):
		dst.Set(rv)
	case dt.Kind() == reflect.Pointer && rv.Type().AssignableTo(dt.Elem()):
		p := reflect.New(dt.Elem())
		p.Elem().Set(rv)
		dst.Set(p)
	case rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type().AssignableTo(dt):
		dst.Set(rv.Elem())
	case rv.Kind() == dt.Kind() && rv.Type().ConvertibleTo(dt):
		dst.Set(rv.Convert(dt))
	default:
		return fmt.Errorf("cannot store %s in %s", rv.Type(), dt)
	}
	return nil
}

// valueOf unwraps v to a value of key's raw type. ok is false for nil.
func valueOf(key TypeKey, v any) (rv reflect.Value, ok bool, err error) {
	if v == nil {
		return reflect.Value{}, false, nil
	}
	rv = reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, false, nil
		}
		rv = rv.Elem()
	}
	if rv.Type() != key.Raw() {
		return reflect.Value{}, false, WrongType(key, v)
	}
	return rv, true, nil
}

func nillable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	}
	return false
}

func indexName(i int) string { return "[" + strconv.Itoa(i) + "]" }

func toInt64(data any) (int64, error) {
	switch n := data.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, Malformed("%q is not a number", string(n))
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case float32:
		return floatToInt(float64(n))
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(n).Uint()
		if u > math.MaxInt64 {
			return 0, Malformed("%d overflows int64", u)
		}
		return int64(u), nil
	}
	return 0, expected("integer", data)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, Malformed("%v is not an integer", f)
	}
	return int64(f), nil
}

func toUint64(data any) (uint64, error) {
	if n, ok := data.(json.Number); ok {
		if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
			return u, nil
		}
	}
	if u, ok := data.(uint64); ok {
		return u, nil
	}
	i, err := toInt64(data)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, Malformed("%d is negative", i)
	}
	return uint64(i), nil
}

func toFloat64(data any) (float64, error) {
	switch n := data.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, Malformed("%q is not a number", string(n))
		}
		return f, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(n).Int()), nil
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(n).Uint()), nil
	}
	return 0, expected("number", data)
}
