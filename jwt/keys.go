package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// KeyPair holds the RSA signing key and the public key used for verification.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// LoadKeyFiles reads PEM encoded key material from disk.
//
// An empty publicPath is allowed; the public key is then derived from the private key
// by [ParseKeyPair].
func LoadKeyFiles(privatePath, publicPath string) (privatePEM, publicPEM []byte, err error) {
	privatePath = strings.TrimSpace(privatePath)
	if privatePath == "" {
		return nil, nil, fmt.Errorf("%w: private key path is empty", ErrInvalidKey)
	}
	privatePEM, err = os.ReadFile(privatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key %s: %w", privatePath, err)
	}

	publicPath = strings.TrimSpace(publicPath)
	if publicPath == "" {
		return privatePEM, nil, nil
	}
	publicPEM, err = os.ReadFile(publicPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read public key %s: %w", publicPath, err)
	}
	return privatePEM, publicPEM, nil
}

// ParseKeyPair decodes PEM encoded RSA keys and checks that they belong together.
func ParseKeyPair(privatePEM, publicPEM []byte) (KeyPair, error) {
	if len(privatePEM) == 0 {
		return KeyPair{}, fmt.Errorf("%w: private key required", ErrInvalidKey)
	}
	private, err := gjwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if private.N.BitLen() < 2048 {
		return KeyPair{}, fmt.Errorf("%w: rsa key must be at least 2048 bits", ErrInvalidKey)
	}

	public := &private.PublicKey
	if len(publicPEM) > 0 {
		public, err = gjwt.ParseRSAPublicKeyFromPEM(publicPEM)
		if err != nil {
			return KeyPair{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if !private.PublicKey.Equal(public) {
			return KeyPair{}, ErrKeyMismatch
		}
	}

	return KeyPair{Private: private, Public: public}, nil
}

// GenerateKeyPEM creates a new RSA key of the given size and returns the private key
// as PKCS#1 PEM and the public key as PKIX PEM.
func GenerateKeyPEM(bits int) (privatePEM, publicPEM []byte, err error) {
	if bits < 2048 {
		return nil, nil, fmt.Errorf("%w: rsa key must be at least 2048 bits", ErrInvalidKey)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generate rsa key: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	return privatePEM, publicPEM, nil
}
