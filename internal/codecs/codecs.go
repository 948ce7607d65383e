// Package codecs provides the custom codecs for ledger types that the
// structural reflector cannot derive: identities, hashes, timestamps, errors
// and transactions.
package codecs

import (
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

// StateTypes maps contract names to the keys of their state types.
type StateTypes interface {
	StateKey(contract string) (serialization.TypeKey, bool)
}

// Deps are the collaborators some codecs need.
type Deps struct {
	// Identities resolves party names when decoding parties.
	Identities ledger.IdentityLookup
	// States types the output data of transactions. Without it output data
	// is carried as raw JSON.
	States StateTypes
}

// Register adds all ledger codecs to reg.
func Register(reg *serialization.Registry, deps Deps) {
	serialization.RegisterCustomFor[time.Time](reg, timeFactory)
	serialization.RegisterCustomFor[uuid.UUID](reg, uuidFactory)
	serialization.RegisterCustomFor[ledger.X500Name](reg, x500Factory)
	serialization.RegisterCustomFor[ledger.SecureHash](reg, secureHashFactory)
	serialization.RegisterCustomFor[ledger.Party](reg, partyFactory(deps.Identities))
	serialization.RegisterCustomFor[ledger.PartyAndCertificate](reg, partyAndCertificateFactory)
	serialization.RegisterCustomFor[error](reg, errorFactory)
	serialization.RegisterCustomFor[ledger.SignedTransaction](reg, signedTransactionFactory(deps.States))
}

func timeFactory(key serialization.TypeKey, _ serialization.Resolver) (serialization.Codec, error) {
	return serialization.StringCodec(key, "date-time",
		func(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) },
		func(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }), nil
}

func uuidFactory(key serialization.TypeKey, _ serialization.Resolver) (serialization.Codec, error) {
	return serialization.StringCodec(key, "uuid", uuid.Parse,
		func(u uuid.UUID) string { return u.String() }), nil
}

func x500Factory(key serialization.TypeKey, _ serialization.Resolver) (serialization.Codec, error) {
	return serialization.StringCodec(key, "", ledger.ParseX500Name, ledger.X500Name.String), nil
}

func secureHashFactory(key serialization.TypeKey, _ serialization.Resolver) (serialization.Codec, error) {
	return serialization.StringCodec(key, "", ledger.ParseSecureHash, ledger.SecureHash.String), nil
}
