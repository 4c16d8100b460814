package jwt

import "errors"

var (
	// ErrMalformedToken is returned when a compact string cannot be decoded into a token.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidKey is returned for unreadable or unsupported key material.
	ErrInvalidKey = errors.New("invalid rsa key")
	// ErrKeyMismatch is returned when the configured public key does not belong to the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")
	// ErrSignatureInvalid is returned when a token signature does not verify.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrUnsupportedAlgorithm is returned when a token header names an algorithm other than RS512.
	ErrUnsupportedAlgorithm = errors.New("unsupported token algorithm")
	// ErrInvalidLifetime is returned when a token type has no usable lifetime configuration.
	ErrInvalidLifetime = errors.New("invalid token lifetime")
)
