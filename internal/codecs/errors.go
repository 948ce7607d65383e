package codecs

import (
	"errors"
	"reflect"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

// errorFactory renders errors as {"errorType", "message"}. Decoding yields
// a *ledger.FlowError, which keeps the reported type name.
func errorFactory(key serialization.TypeKey, _ serialization.Resolver) (serialization.Codec, error) {
	schema := serialization.NewObjectSchema().
		Property("errorType", serialization.Scalar("string", ""), false).
		Property("message", serialization.Scalar("string", ""), true).
		Build()
	return &serialization.Func{
		TypeKey:    key,
		JSONSchema: schema,
		EncodeFunc: func(v any) (any, error) {
			err, ok := v.(error)
			if !ok {
				return nil, serialization.WrongType(key, v)
			}
			out := map[string]any{"message": err.Error()}
			var fe *ledger.FlowError
			if errors.As(err, &fe) {
				out["message"] = fe.Message
				if fe.Type != "" {
					out["errorType"] = fe.Type
				}
				return out, nil
			}
			out["errorType"] = reflect.TypeOf(err).String()
			return out, nil
		},
		DecodeFunc: func(data any) (any, error) {
			obj, ok := data.(map[string]any)
			if !ok {
				return nil, serialization.Malformed("error must be an object")
			}
			msg, ok := obj["message"]
			if !ok {
				return nil, serialization.MissingField("message")
			}
			fe := &ledger.FlowError{}
			if fe.Message, ok = msg.(string); !ok {
				return nil, serialization.TypeMismatch("message", serialization.Malformed("message must be a string"))
			}
			if typ, present := obj["errorType"]; present && typ != nil {
				if fe.Type, ok = typ.(string); !ok {
					return nil, serialization.TypeMismatch("errorType", serialization.Malformed("errorType must be a string"))
				}
			}
			return fe, nil
		},
	}, nil
}
