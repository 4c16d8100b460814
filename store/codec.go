package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/goToken/jwt"
)

const dateLayout = "2006-01-02 15:04:05.000000"

// Signer rebuilds a signed token from its claims.
type Signer interface {
	Build(claims jwt.Claims) (*jwt.Token, error)
}

// Codec converts tokens to storable payloads and back.
type Codec struct {
	signer Signer
}

// NewCodec returns a codec that re-signs decoded claims with signer.
func NewCodec(signer Signer) *Codec {
	return &Codec{signer: signer}
}

type payload struct {
	Headers map[string]any             `json:"headers"`
	Claims  map[string]json.RawMessage `json:"claims"`
	Token   string                     `json:"token,omitempty"`
}

type dateValue struct {
	Date     string `json:"date"`
	Timezone string `json:"timezone"`
	Offset   int    `json:"offset"`
}

// Encode serializes t into a payload.
func (c *Codec) Encode(t *jwt.Token) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil token", ErrCorruptPayload)
	}

	claims := make(map[string]json.RawMessage, 6+len(t.Claims.Custom))
	put := func(name string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode claim %s: %w", name, err)
		}
		claims[name] = data
		return nil
	}

	for name, v := range map[string]string{"jti": t.Claims.ID, "sub": t.Claims.Subject, "iss": t.Claims.Issuer} {
		if v == "" {
			continue
		}
		if err := put(name, v); err != nil {
			return nil, err
		}
	}
	for name, at := range map[string]time.Time{"iat": t.Claims.IssuedAt, "exp": t.Claims.ExpiresAt, "nbf": t.Claims.NotBefore} {
		if at.IsZero() {
			continue
		}
		if err := put(name, encodeDate(at)); err != nil {
			return nil, err
		}
	}
	for name, v := range t.Claims.Custom {
		if jwt.IsRegisteredClaim(name) {
			continue
		}
		if err := put(name, v); err != nil {
			return nil, err
		}
	}

	return json.Marshal(payload{
		Headers: t.Header,
		Claims:  claims,
		Token:   t.String(),
	})
}

// Decode restores the claims stored in data and re-signs them.
//
// When the payload carries the originally issued compact string and the re-signed
// token differs from it, Decode returns [ErrSignatureDrift].
func (c *Codec) Decode(data []byte) (*jwt.Token, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}

	var claims jwt.Claims
	for name, raw := range p.Claims {
		var err error
		switch name {
		case "jti":
			err = json.Unmarshal(raw, &claims.ID)
		case "sub":
			err = json.Unmarshal(raw, &claims.Subject)
		case "iss":
			err = json.Unmarshal(raw, &claims.Issuer)
		case "iat":
			claims.IssuedAt, err = decodeDate(raw)
		case "exp":
			claims.ExpiresAt, err = decodeDate(raw)
		case "nbf":
			claims.NotBefore, err = decodeDate(raw)
		default:
			if jwt.IsRegisteredClaim(name) {
				continue
			}
			var v any
			if err = json.Unmarshal(raw, &v); err == nil {
				if claims.Custom == nil {
					claims.Custom = make(map[string]any, len(p.Claims))
				}
				claims.Custom[name] = v
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: claim %s: %v", ErrCorruptPayload, name, err)
		}
	}

	tok, err := c.signer.Build(claims)
	if err != nil {
		return nil, err
	}
	if p.Token != "" && p.Token != tok.String() {
		return nil, ErrSignatureDrift
	}
	return tok, nil
}

func encodeDate(t time.Time) dateValue {
	name, offset := t.Zone()
	if loc := t.Location().String(); loc != "" && loc != "Local" {
		name = loc
	}
	return dateValue{
		Date:     t.Format(dateLayout),
		Timezone: name,
		Offset:   offset,
	}
}

func decodeDate(raw json.RawMessage) (time.Time, error) {
	var v dateValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, err
	}

	loc, err := time.LoadLocation(v.Timezone)
	if err != nil || v.Timezone == "" {
		loc = time.FixedZone(v.Timezone, v.Offset)
	}
	t, err := time.ParseInLocation(dateLayout, v.Date, loc)
	if err != nil {
		return time.Time{}, err
	}

	// Wall clocks repeated by a DST transition resolve to the recorded offset.
	if _, off := t.Zone(); off != v.Offset {
		t = t.Add(time.Duration(off-v.Offset) * time.Second).In(loc)
	}
	return t, nil
}
