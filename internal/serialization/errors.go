package serialization

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Sentinel errors matched through errors.Is.
var (
	ErrResolution    = errors.New("codec resolution failed")
	ErrCyclicType    = errors.New("cyclic type")
	ErrSerialization = errors.New("serialization failed")
	ErrUnsupported   = errors.New("unsupported operation")
)

// Reasons carried by SerializationError.
const (
	ReasonMissingField = "missing required field"
	ReasonTypeMismatch = "type mismatch"
	ReasonMalformed    = "malformed value"
	ReasonUnencodable  = "unrepresentable value"
)

// ResolutionError reports that no codec could be built for a key.
type ResolutionError struct {
	Key    TypeKey
	Reason string
	Cause  error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %s: %s", e.Key, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func (e *ResolutionError) Unwrap() error { return e.Cause }

// CyclicTypeError reports a key that is reachable from its own build.
type CyclicTypeError struct {
	Key   TypeKey
	Chain []TypeKey
}

func (e *CyclicTypeError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, k := range e.Chain {
		parts[i] = k.String()
	}
	return fmt.Sprintf("cyclic type %s: %s", e.Key, strings.Join(parts, " -> "))
}

func (e *CyclicTypeError) Is(target error) bool { return target == ErrCyclicType }

// SerializationError reports a value or document that does not fit a codec.
type SerializationError struct {
	Reason   string
	Property string
	Cause    error
}

func (e *SerializationError) Error() string {
	msg := e.Reason
	if e.Property != "" {
		msg += " " + e.Property
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

func (e *SerializationError) Unwrap() error { return e.Cause }

// UnsupportedOperationError is returned by codecs that only work in one
// direction.
type UnsupportedOperationError struct {
	Key       TypeKey
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported for %s", e.Operation, e.Key)
}

func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupported }

// MissingField builds the error for an absent required property.
func MissingField(name string) error {
	return &SerializationError{Reason: ReasonMissingField, Property: name}
}

// TypeMismatch builds the error for a property whose value does not decode.
func TypeMismatch(name string, cause error) error {
	return &SerializationError{Reason: ReasonTypeMismatch, Property: name, Cause: cause}
}

// WrongType builds the error for a Go value a codec cannot encode.
func WrongType(key TypeKey, v any) error {
	return &SerializationError{Reason: ReasonTypeMismatch, Cause: fmt.Errorf("codec for %s cannot encode %T", key, v)}
}

// Malformed builds a SerializationError for a value a codec cannot parse.
func Malformed(format string, args ...any) error {
	return &SerializationError{Reason: ReasonMalformed, Cause: fmt.Errorf(format, args...)}
}

func IsResolution(err error) bool    { return errors.Is(err, ErrResolution) }
func IsCyclicType(err error) bool    { return errors.Is(err, ErrCyclicType) }
func IsSerialization(err error) bool { return errors.Is(err, ErrSerialization) }
func IsUnsupported(err error) bool   { return errors.Is(err, ErrUnsupported) }

func expected(want string, got any) error {
	return &SerializationError{Reason: ReasonTypeMismatch, Cause: fmt.Errorf("expected %s, got %s", want, jsonKind(got))}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case json.Number, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
