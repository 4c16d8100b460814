// Package jwt builds, parses, and verifies the RS512 compact tokens issued by goToken.
//
// # Components
//
//   - [Manager] generates claim sets for a token pair, signs them, and decodes
//     presented compact strings without trusting their signature.
//   - [Claims] is the typed claim set (jti, sub, iss, iat, exp, nbf) with an open map
//     for custom claims such as typ and grp.
//   - [Constraint] implementations (IdentifiedBy, RelatedTo, LooseValidAt, SignedWith)
//     express the checks the validator runs against a persisted record.
//
// # Architecture boundaries
//
// This package owns key material and the compact wire format. It does NOT look up
// persisted records or revoke anything; those decisions belong to the Engine flows.
//
// # What this package must NOT do
//
//   - Import goToken or the store packages.
//   - Perform network or database I/O.
package jwt
