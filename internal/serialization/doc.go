// Package serialization maps Go types to JSON codecs and JSON-Schemas.
//
// A TypeKey names a type together with its type arguments. The Registry
// resolves a Codec for any key, in this order:
//
//   - the first custom Factory registered for the key's raw type
//   - an engine codec for scalar, slice, array and string-keyed map kinds
//   - a composite codec assembled from the struct's reflected properties
//
// Every codec's Schema describes exactly the documents its Decode accepts
// and its Encode produces. Codecs are memoized per key ID and shared.
//
// # Struct tags
//
//	json:"name,omitempty"      property name; omitempty makes it optional
//	default:"<json literal>"   value used when the property is absent
//	gateway:"optional"         optional without omitempty
//	gateway:"required"         required even if nillable
//	gateway:"param=0"          interface field typed by the key's argument 0
//	gateway:"args=0,1"         field type parameterized by arguments 0 and 1
package serialization
