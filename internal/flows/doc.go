// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunValidate, RunRefresh, RunRevoke, RunRevokeGroup)
// accepts a typed dependency struct and returns a result carrying a failure kind
// instead of a root-package error. The root package maps failure kinds to
// AuthenticationError and AuthorizationError.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token store, the token codec, and the JWT
// manager. They do not own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goToken (to avoid import cycles).
//   - Emit audit events or metrics. The Engine does that from the returned result.
package flows
