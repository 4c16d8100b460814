// Package goToken issues, validates and revokes RS512 JSON Web Tokens that are
// persisted server side.
//
// Every token is stored as a record keyed by its jti. A token is accepted only when
// its record exists, the stored typ matches the endpoint, the record is not
// blacklisted, and the claims pass the identity, subject, time window and signature
// checks. Access and refresh tokens issued together share a grp claim so that logout
// and refresh can revoke the whole group.
//
// The engine is safe for concurrent use after [Builder.Build]:
//
//	engine, err := goToken.New().
//		WithConfig(cfg).
//		WithPostgres(pool).
//		WithUserDirectory(users).
//		Build()
//
// # Architecture boundaries
//
// goToken is the public surface: [Engine], [Builder], [Config], the typed errors and
// value types. Flow orchestration and audit dispatch live under internal/. Token
// storage lives in store/ with memory, PostgreSQL and Redis implementations. HTTP
// adapters live in middleware/.
//
// # What this package must NOT do
//
//   - Expose database pools or Redis clients through the Engine.
//   - Import middleware or any other package that imports goToken.
//   - Log or audit token strings.
//
// # Failures
//
// Validation failures are [*AuthenticationError] (401) or [*AuthorizationError] (403).
// Store failures are returned wrapped and map to 500 through [StatusCode].
package goToken
