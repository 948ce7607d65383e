package serialization

import (
	"reflect"
	"strconv"
	"strings"
)

// TypeKey identifies a type for codec resolution: a raw reflect.Type plus
// an ordered list of type arguments. The zero TypeKey is invalid.
type TypeKey struct {
	raw  reflect.Type
	args []TypeKey
	id   string
}

// KeyOf builds a key for raw with the given type arguments. Pointer types
// are reduced to their element type.
func KeyOf(raw reflect.Type, args ...TypeKey) TypeKey {
	for raw != nil && raw.Kind() == reflect.Pointer {
		raw = raw.Elem()
	}
	k := TypeKey{raw: raw}
	if len(args) > 0 {
		k.args = append([]TypeKey(nil), args...)
	}
	k.id = k.canonical()
	return k
}

// KeyFor is the generic form of KeyOf.
func KeyFor[T any](args ...TypeKey) TypeKey {
	return KeyOf(reflect.TypeOf((*T)(nil)).Elem(), args...)
}

func (k TypeKey) Raw() reflect.Type { return k.raw }

// Args returns a copy of the type arguments.
func (k TypeKey) Args() []TypeKey {
	if len(k.args) == 0 {
		return nil
	}
	return append([]TypeKey(nil), k.args...)
}

func (k TypeKey) NumArgs() int { return len(k.args) }

// Arg returns the i-th type argument.
func (k TypeKey) Arg(i int) (TypeKey, bool) {
	if i < 0 || i >= len(k.args) {
		return TypeKey{}, false
	}
	return k.args[i], true
}

// ID is the canonical structural identity of the key. Keys built at
// different call sites for the same type and arguments share an ID.
func (k TypeKey) ID() string { return k.id }

func (k TypeKey) IsZero() bool { return k.raw == nil }

func (k TypeKey) Equal(other TypeKey) bool { return k.id == other.id }

// String renders the key with short package names, for logs and errors.
func (k TypeKey) String() string {
	if k.raw == nil {
		return "<invalid>"
	}
	if len(k.args) == 0 {
		return k.raw.String()
	}
	parts := make([]string, len(k.args))
	for i, a := range k.args {
		parts[i] = a.String()
	}
	return k.raw.String() + "<" + strings.Join(parts, ", ") + ">"
}

func (k TypeKey) canonical() string {
	if k.raw == nil {
		return ""
	}
	name := qualifiedName(k.raw)
	if len(k.args) == 0 {
		return name
	}
	parts := make([]string, len(k.args))
	for i, a := range k.args {
		parts[i] = a.id
	}
	return name + "<" + strings.Join(parts, ",") + ">"
}

func qualifiedName(t reflect.Type) string {
	if t.Name() != "" {
		if pkg := t.PkgPath(); pkg != "" {
			return pkg + "." + t.Name()
		}
		return t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + qualifiedName(t.Elem())
	case reflect.Slice:
		return "[]" + qualifiedName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + qualifiedName(t.Elem())
	case reflect.Map:
		return "map[" + qualifiedName(t.Key()) + "]" + qualifiedName(t.Elem())
	default:
		return t.String()
	}
}
