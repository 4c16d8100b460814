// Package store defines token persistence for goToken: the [Record] model, the
// [Store] contract implemented by the memory, redis, and postgres sub-packages, and the
// [Codec] that turns a signed token into a storable payload and back.
//
// # Payload format
//
// A payload is a JSON object with three members: headers, claims, and token. Temporal
// claims are stored as {date, timezone, offset} triples so that decoding restores the
// exact instant and location, which lets the codec re-sign the claims and reproduce the
// original compact string byte for byte.
//
// # What this package must NOT do
//
//   - Import goToken (no upward imports).
//   - Decide whether a token is valid; it only records and reports state.
package store
