package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/jwt"
)

// Extractor finds the token presented by a request.
type Extractor struct {
	// InputKey names the query parameter, body field and cookie to check.
	InputKey string
	// MaxBodyBytes caps how much of the body is buffered while looking for InputKey.
	MaxBodyBytes int64
	// Parse decodes the compact string. Engine.Parse is the usual choice.
	Parse func(raw string) (*jwt.Token, error)
}

// NewExtractor returns an extractor configured from the engine.
func NewExtractor(engine *goToken.Engine) *Extractor {
	cfg := engine.Extraction()
	return &Extractor{
		InputKey:     cfg.InputKey,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Parse:        engine.Parse,
	}
}

// Locate returns the first non-empty candidate decoded into a token, or nil.
//
// A candidate that does not parse means no token: later sources are not consulted.
// The request body is restored so handlers can read it again.
func (x *Extractor) Locate(r *http.Request) *jwt.Token {
	raw := x.Raw(r)
	if raw == "" || x.Parse == nil {
		return nil
	}
	tok, err := x.Parse(raw)
	if err != nil {
		return nil
	}
	return tok
}

// Raw returns the first non-empty candidate string without decoding it.
func (x *Extractor) Raw(r *http.Request) string {
	key := x.InputKey
	if key == "" {
		key = "token"
	}

	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	if v := x.fromBody(r, key); v != "" {
		return v
	}
	if c, err := r.Cookie(key); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func (x *Extractor) fromBody(r *http.Request, key string) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	switch mediaType {
	case "application/json", "application/x-www-form-urlencoded", "multipart/form-data":
	default:
		return ""
	}

	limit := x.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if int64(len(data)) > limit {
		r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(data), r.Body), Closer: r.Body}
		return ""
	}
	r.Body = readCloser{Reader: bytes.NewReader(data), Closer: r.Body}
	if err != nil {
		return ""
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return ""
		}
		return values.Get(key)
	case "multipart/form-data":
		return multipartValue(data, params["boundary"], key, limit)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	var v string
	if err := json.Unmarshal(fields[key], &v); err != nil {
		return ""
	}
	return v
}

// multipartValue reads the first plain field named key. File parts are ignored and
// nothing spills to disk because the whole body is already within limit.
func multipartValue(data []byte, boundary, key string, limit int64) string {
	if boundary == "" {
		return ""
	}
	form, err := multipart.NewReader(bytes.NewReader(data), boundary).ReadForm(limit)
	if err != nil {
		return ""
	}
	defer func() { _ = form.RemoveAll() }()
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

type readCloser struct {
	io.Reader
	io.Closer
}

func bearerToken(value string) string {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(value[len(bearer):])
}
