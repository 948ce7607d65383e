package codecs

import (
	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

// partyFactory encodes parties by name and decodes them through the
// identity service. A name must match exactly one well-known party.
func partyFactory(identities ledger.IdentityLookup) serialization.Factory {
	return func(key serialization.TypeKey, res serialization.Resolver) (serialization.Codec, error) {
		names, err := res.Resolve(serialization.KeyFor[ledger.X500Name]())
		if err != nil {
			return nil, err
		}
		schema := serialization.NewObjectSchema().Property("name", names.Schema(), true).Build()
		return &serialization.Func{
			TypeKey:    key,
			JSONSchema: schema,
			EncodeFunc: func(v any) (any, error) {
				p, ok := serialization.As[ledger.Party](v)
				if !ok {
					return nil, serialization.WrongType(key, v)
				}
				name, err := names.Encode(p.Name)
				if err != nil {
					return nil, err
				}
				return map[string]any{"name": name}, nil
			},
			DecodeFunc: func(data any) (any, error) {
				obj, ok := data.(map[string]any)
				if !ok {
					return nil, serialization.Malformed("party must be an object")
				}
				raw, ok := obj["name"]
				if !ok {
					return nil, serialization.MissingField("name")
				}
				decoded, err := names.Decode(raw)
				if err != nil {
					return nil, serialization.TypeMismatch("name", err)
				}
				name := decoded.(ledger.X500Name)
				if identities == nil {
					return nil, serialization.Malformed("no identity service to resolve %s", name)
				}
				candidates := identities.PartiesFromName(name)
				switch len(candidates) {
				case 0:
					return nil, serialization.Malformed("unknown party %s", name)
				case 1:
					return candidates[0], nil
				default:
					return nil, serialization.Malformed("party name %s is ambiguous: %d candidates", name, len(candidates))
				}
			},
		}, nil
	}
}

// partyAndCertificateFactory exposes only the party. Certificates are never
// accepted from clients, so decoding is not supported.
func partyAndCertificateFactory(key serialization.TypeKey, res serialization.Resolver) (serialization.Codec, error) {
	parties, err := res.Resolve(serialization.KeyFor[ledger.Party]())
	if err != nil {
		return nil, err
	}
	schema := serialization.NewObjectSchema().Property("party", parties.Schema(), false).Build()
	return serialization.EncodeOnly(key, schema, func(v any) (any, error) {
		pc, ok := serialization.As[ledger.PartyAndCertificate](v)
		if !ok {
			return nil, serialization.WrongType(key, v)
		}
		party, err := parties.Encode(pc.Party)
		if err != nil {
			return nil, err
		}
		return map[string]any{"party": party}, nil
	}), nil
}
