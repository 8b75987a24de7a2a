// Command keygen writes an RSA key pair for signing access tokens and,
// optionally, a random secret for legacy HS256 verification.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/ekrsw/microservice/internal/log"
)

const (
	privateKeyFile   = "private.pem"
	publicKeyFile    = "public.pem"
	legacySecretFile = "legacy_secret"
)

func main() {
	bits := pflag.Int("bits", 2048, "RSA modulus size")
	outDir := pflag.String("out-dir", "keys", "directory for the generated files")
	legacy := pflag.Bool("legacy-secret", false, "also write a random HS256 secret")
	force := pflag.Bool("force", false, "overwrite existing files")
	pflag.Parse()

	logger := log.New("keygen", "development", "info")

	if err := run(*outDir, *bits, *legacy, *force); err != nil {
		logger.Fatal().Err(err).Msg("key generation failed")
	}
	logger.Info().Str("dir", *outDir).Int("bits", *bits).Msg("keys written")
}

func run(dir string, bits int, legacy, force bool) error {
	if bits < 2048 {
		return fmt.Errorf("bits must be at least 2048, got %d", bits)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	if err := writeFile(filepath.Join(dir, privateKeyFile), privatePEM, 0o600, force); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, publicKeyFile), publicPEM, 0o644, force); err != nil {
		return err
	}

	if legacy {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		encoded := base64.RawURLEncoding.EncodeToString(secret) + "\n"
		if err := writeFile(filepath.Join(dir, legacySecretFile), []byte(encoded), 0o600, force); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte, mode os.FileMode, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
