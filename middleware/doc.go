// Package middleware adapts a goToken.Engine to net/http.
//
// # Middleware
//
//   - [RequireAccess] and [RequireRefresh] locate a token, validate it for the route's
//     token type and store the [goToken.ValidationResult] in the request context.
//   - [Guard] resolves the token's subject to a [goToken.Principal].
//   - [Protect] chains RequireAccess and Guard.
//
// Tokens are located by an [Extractor]: query parameter, then body field, then cookie,
// then the Authorization bearer header.
//
// Failures are written as {"message": "..."} with status 401, 403 or 500. Every
// decision is made by the engine; this package only translates HTTP.
package middleware
