package codecs

import (
	"reflect"

	"github.com/R3E-Network/ledger_gateway/internal/ledger"
	"github.com/R3E-Network/ledger_gateway/internal/serialization"
)

// signedTransactionFactory handles transactions whose output states are of
// arbitrary contract types. An output's data codec comes from the state type
// recorded for its contract; outputs of unknown contracts carry their data as
// a raw JSON tree in both directions.
func signedTransactionFactory(states StateTypes) serialization.Factory {
	return func(key serialization.TypeKey, res serialization.Resolver) (serialization.Codec, error) {
		hashes, err := res.Resolve(serialization.KeyFor[ledger.SecureHash]())
		if err != nil {
			return nil, err
		}
		refs, err := res.Resolve(serialization.KeyFor[[]ledger.StateRef]())
		if err != nil {
			return nil, err
		}
		parties, err := res.Resolve(serialization.KeyFor[ledger.Party]())
		if err != nil {
			return nil, err
		}
		sigs, err := res.Resolve(serialization.KeyFor[[][]byte]())
		if err != nil {
			return nil, err
		}

		output := serialization.NewObjectSchema().
			Property("data", &serialization.Schema{Type: "object"}, true).
			Property("contract", serialization.Scalar("string", ""), true).
			Property("notary", parties.Schema(), true).
			Build()
		schema := serialization.NewObjectSchema().
			Property("id", hashes.Schema(), true).
			Property("inputs", refs.Schema(), true).
			Property("outputs", serialization.ArrayOf(output), true).
			Property("notary", parties.Schema(), false).
			Property("sigs", sigs.Schema(), true).
			Build()

		t := &txCodec{states: states, res: res, hashes: hashes, refs: refs, parties: parties, sigs: sigs}
		return &serialization.Func{
			TypeKey:    key,
			JSONSchema: schema,
			EncodeFunc: func(v any) (any, error) {
				tx, ok := serialization.As[ledger.SignedTransaction](v)
				if !ok {
					return nil, serialization.WrongType(key, v)
				}
				return t.encode(tx)
			},
			DecodeFunc: t.decode,
		}, nil
	}
}

type txCodec struct {
	states  StateTypes
	res     serialization.Resolver
	hashes  serialization.Codec
	refs    serialization.Codec
	parties serialization.Codec
	sigs    serialization.Codec
}

// stateCodec returns the codec of the state type recorded for contract, or
// nil when the contract is unknown.
func (t *txCodec) stateCodec(contract string) (serialization.Codec, error) {
	if t.states == nil {
		return nil, nil
	}
	k, ok := t.states.StateKey(contract)
	if !ok {
		return nil, nil
	}
	return t.res.Resolve(k)
}

// dataCodec returns the codec used to encode an output's data, or nil when
// the data already is a raw JSON tree.
func (t *txCodec) dataCodec(contract string, data any) (serialization.Codec, error) {
	codec, err := t.stateCodec(contract)
	if err != nil || codec != nil {
		return codec, err
	}
	if data == nil || isJSONTree(data) {
		return nil, nil
	}
	return t.res.Resolve(serialization.KeyOf(reflect.TypeOf(data)))
}

func isJSONTree(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func (t *txCodec) encode(tx ledger.SignedTransaction) (any, error) {
	id, err := t.hashes.Encode(tx.ID)
	if err != nil {
		return nil, err
	}
	inputs, err := t.refs.Encode(tx.Inputs)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = []any{}
	}
	outputs := make([]any, len(tx.Outputs))
	for i, out := range tx.Outputs {
		if outputs[i], err = t.encodeOutput(out); err != nil {
			return nil, &serialization.SerializationError{Reason: serialization.ReasonUnencodable, Property: "outputs", Cause: err}
		}
	}
	sigList, err := t.sigs.Encode(tx.Signatures)
	if err != nil {
		return nil, err
	}
	if sigList == nil {
		sigList = []any{}
	}
	obj := map[string]any{"id": id, "inputs": inputs, "outputs": outputs, "sigs": sigList}
	if tx.Notary != nil {
		if obj["notary"], err = t.parties.Encode(*tx.Notary); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (t *txCodec) encodeOutput(out ledger.TransactionState) (any, error) {
	obj := map[string]any{"contract": out.Contract, "data": out.Data}
	codec, err := t.dataCodec(out.Contract, out.Data)
	if err != nil {
		return nil, &serialization.SerializationError{Reason: serialization.ReasonUnencodable, Property: "data", Cause: err}
	}
	if codec != nil && out.Data != nil {
		if obj["data"], err = codec.Encode(out.Data); err != nil {
			return nil, serialization.TypeMismatch("data", err)
		}
	}
	notary, err := t.parties.Encode(out.Notary)
	if err != nil {
		return nil, serialization.TypeMismatch("notary", err)
	}
	obj["notary"] = notary
	return obj, nil
}

func (t *txCodec) decode(data any) (any, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, serialization.Malformed("transaction must be an object")
	}
	var tx ledger.SignedTransaction

	raw, ok := obj["id"]
	if !ok {
		return nil, serialization.MissingField("id")
	}
	id, err := t.hashes.Decode(raw)
	if err != nil {
		return nil, serialization.TypeMismatch("id", err)
	}
	tx.ID = id.(ledger.SecureHash)

	if raw, ok = obj["inputs"]; !ok {
		return nil, serialization.MissingField("inputs")
	}
	inputs, err := t.refs.Decode(raw)
	if err != nil {
		return nil, serialization.TypeMismatch("inputs", err)
	}
	tx.Inputs = inputs.([]ledger.StateRef)

	if raw, ok = obj["outputs"]; !ok {
		return nil, serialization.MissingField("outputs")
	}
	outputs, ok := raw.([]any)
	if !ok {
		return nil, serialization.TypeMismatch("outputs", serialization.Malformed("outputs must be an array"))
	}
	for _, item := range outputs {
		out, err := t.decodeOutput(item)
		if err != nil {
			return nil, serialization.TypeMismatch("outputs", err)
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	if raw, ok = obj["notary"]; ok && raw != nil {
		notary, err := t.parties.Decode(raw)
		if err != nil {
			return nil, serialization.TypeMismatch("notary", err)
		}
		p := notary.(ledger.Party)
		tx.Notary = &p
	}

	if raw, ok = obj["sigs"]; !ok {
		return nil, serialization.MissingField("sigs")
	}
	sigList, err := t.sigs.Decode(raw)
	if err != nil {
		return nil, serialization.TypeMismatch("sigs", err)
	}
	tx.Signatures = sigList.([][]byte)
	return tx, nil
}

func (t *txCodec) decodeOutput(item any) (ledger.TransactionState, error) {
	var out ledger.TransactionState
	obj, ok := item.(map[string]any)
	if !ok {
		return out, serialization.Malformed("output must be an object")
	}
	contract, ok := obj["contract"].(string)
	if !ok {
		return out, serialization.MissingField("contract")
	}
	out.Contract = contract

	raw, ok := obj["notary"]
	if !ok {
		return out, serialization.MissingField("notary")
	}
	notary, err := t.parties.Decode(raw)
	if err != nil {
		return out, serialization.TypeMismatch("notary", err)
	}
	out.Notary = notary.(ledger.Party)

	data, ok := obj["data"]
	if !ok {
		return out, serialization.MissingField("data")
	}
	codec, err := t.stateCodec(contract)
	if err != nil {
		return out, serialization.TypeMismatch("data", err)
	}
	if codec == nil || data == nil {
		out.Data = data
		return out, nil
	}
	if out.Data, err = codec.Decode(data); err != nil {
		return out, serialization.TypeMismatch("data", err)
	}
	return out, nil
}
