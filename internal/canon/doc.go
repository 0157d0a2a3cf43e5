// Package canon defines the constrained value model and canonical JSON
// serialization used for content-addressed identity and durable storage.
//
// Two serializations exist and must not be confused:
//
//   - MarshalCanonical: RFC 8785 canonical JSON. The ONLY serialization that
//     may feed a fingerprint. Rejects null, NaN, and infinities.
//   - MarshalValue: storage JSON with sorted keys. Permits Null so persisted
//     tables can round-trip missing cells. Never used for hashing.
//
// Values are a sealed set: Null, String, Int, Float, Bool, Array, Object.
// Anything outside the set fails canonicalization with NonDeterministicError,
// which is the signal that an input cannot participate in a fingerprint.
package canon
