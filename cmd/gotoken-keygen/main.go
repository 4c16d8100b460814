// Command gotoken-keygen writes a fresh RSA key pair for signing tokens.
//
//	gotoken-keygen -dir ./keys
//
// The private key is written to <dir>/jwt_private.pem with mode 0600 and the public
// key to <dir>/jwt_public.pem. Point JWT_PRIVATE_KEY and JWT_PUBLIC_KEY at them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/jwt"
)

const (
	privateKeyFile = "jwt_private.pem"
	publicKeyFile  = "jwt_public.pem"
)

func main() {
	logger := goToken.NewLogger(goToken.LoggingConfig{Level: "info", AppName: "gotoken-keygen"})
	if err := run(os.Args[1:], os.Stderr, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.WithError(err).Fatal("key generation failed")
	}
}

func run(args []string, stderr io.Writer, logger logrus.FieldLogger) error {
	fs := flag.NewFlagSet("gotoken-keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", ".", "directory to write the PEM files to")
	bits := fs.Int("bits", 2048, "RSA key size")
	force := fs.Bool("force", false, "overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	privatePath := filepath.Join(*dir, privateKeyFile)
	publicPath := filepath.Join(*dir, publicKeyFile)
	if !*force {
		for _, p := range []string{privatePath, publicPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists; use -force to overwrite", p)
			}
		}
	}

	privatePEM, publicPEM, err := jwt.GenerateKeyPEM(*bits)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", *dir, err)
	}
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"private": privatePath,
		"public":  publicPath,
		"bits":    *bits,
	}).Info("RSA keys generated")
	return nil
}
