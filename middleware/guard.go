package middleware

import (
	"context"
	"net"
	"net/http"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/jwt"
)

type validationContextKey struct{}

// ValidationFromContext returns the result stored by [RequireAccess] or [RequireRefresh].
func ValidationFromContext(ctx context.Context) (*goToken.ValidationResult, bool) {
	res, ok := ctx.Value(validationContextKey{}).(*goToken.ValidationResult)
	return res, ok && res != nil
}

// TokenFromContext returns the validated token, if any.
func TokenFromContext(ctx context.Context) (*jwt.Token, bool) {
	res, ok := ValidationFromContext(ctx)
	if !ok || res.Token == nil {
		return nil, false
	}
	return res.Token, true
}

// RequireAccess rejects requests without a valid access token.
func RequireAccess(engine *goToken.Engine) func(http.Handler) http.Handler {
	return RequireToken(engine, jwt.TypeAccess)
}

// RequireRefresh rejects requests without a valid refresh token.
func RequireRefresh(engine *goToken.Engine) func(http.Handler) http.Handler {
	return RequireToken(engine, jwt.TypeRefresh)
}

// RequireToken locates the request token and validates it for typ.
func RequireToken(engine *goToken.Engine, typ jwt.TokenType) func(http.Handler) http.Handler {
	extractor := NewExtractor(engine)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = WithRequestMetadata(r)

			res, err := engine.Validate(r.Context(), extractor.Locate(r), typ)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), validationContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Guard resolves the token's subject and stores the principal in the request context.
//
// Guard does not validate. It reuses the token validated earlier in the chain and
// otherwise locates one itself.
func Guard(engine *goToken.Engine) func(http.Handler) http.Handler {
	extractor := NewExtractor(engine)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = WithRequestMetadata(r)

			tok, ok := TokenFromContext(r.Context())
			if !ok {
				tok = extractor.Locate(r)
			}

			p, err := engine.Authenticate(r.Context(), tok)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(goToken.WithPrincipal(r.Context(), p)))
		})
	}
}

// Protect validates an access token, then resolves its subject.
func Protect(engine *goToken.Engine) func(http.Handler) http.Handler {
	access := RequireAccess(engine)
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return access(guard(next))
	}
}

// WithRequestMetadata returns r with the client IP (RemoteAddr without the port) and
// User-Agent attached to its context. Guard does this for protected routes; call it
// directly on routes that issue tokens so audit events carry the same values.
func WithRequestMetadata(r *http.Request) *http.Request {
	ctx := r.Context()
	if ip := clientIP(r); ip != "" {
		ctx = goToken.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = goToken.WithUserAgent(ctx, ua)
	}
	return r.WithContext(ctx)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
