package security

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekrsw/microservice/internal/config"
)

type VerificationMode string

const (
	ModeStrict VerificationMode = "strict"
	ModeDual   VerificationMode = "dual"
)

const (
	ClaimSubject = "sub"
	ClaimAdmin   = "adm"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrUnencodableClaims = errors.New("claims are not JSON encodable")
	ErrKeyMissing        = errors.New("key material missing")
)

// KeyConfig is built once at startup and shared read-only by Signer and Verifier.
type KeyConfig struct {
	PrivateKey   *rsa.PrivateKey
	PublicKey    *rsa.PublicKey
	LegacySecret []byte
	Mode         VerificationMode
	Leeway       time.Duration
}

// LoadKeyConfig reads the PEM files named in cfg. The private key is optional
// for services that only verify; the public key is derived from it when no
// public key path is set.
func LoadKeyConfig(cfg config.SecurityConfig) (KeyConfig, error) {
	var privatePEM, publicPEM []byte
	var err error

	if cfg.PrivateKeyPath != "" {
		if privatePEM, err = os.ReadFile(cfg.PrivateKeyPath); err != nil {
			return KeyConfig{}, fmt.Errorf("read private key: %w", err)
		}
	}
	if cfg.PublicKeyPath != "" {
		if publicPEM, err = os.ReadFile(cfg.PublicKeyPath); err != nil {
			return KeyConfig{}, fmt.Errorf("read public key: %w", err)
		}
	}

	return ParseKeyConfig(privatePEM, publicPEM, []byte(cfg.LegacySecret), VerificationMode(cfg.VerificationMode), cfg.ClockSkew)
}

func ParseKeyConfig(privatePEM, publicPEM, legacySecret []byte, mode VerificationMode, leeway time.Duration) (KeyConfig, error) {
	keys := KeyConfig{
		LegacySecret: legacySecret,
		Mode:         mode,
		Leeway:       leeway,
	}
	if keys.Mode == "" {
		keys.Mode = ModeStrict
	}

	if len(privatePEM) > 0 {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
		if err != nil {
			return KeyConfig{}, fmt.Errorf("parse private key: %w", err)
		}
		keys.PrivateKey = key
		keys.PublicKey = &key.PublicKey
	}
	if len(publicPEM) > 0 {
		key, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
		if err != nil {
			return KeyConfig{}, fmt.Errorf("parse public key: %w", err)
		}
		keys.PublicKey = key
	}

	if keys.PublicKey == nil {
		return KeyConfig{}, fmt.Errorf("%w: RSA public key", ErrKeyMissing)
	}
	if keys.Mode == ModeDual && len(keys.LegacySecret) == 0 {
		return KeyConfig{}, fmt.Errorf("%w: legacy secret required in dual mode", ErrKeyMissing)
	}
	return keys, nil
}

// Claims is a verified token payload.
type Claims map[string]any

func (c Claims) Subject() string {
	sub, _ := c[ClaimSubject].(string)
	return sub
}

func (c Claims) IsAdmin() bool {
	adm, _ := c[ClaimAdmin].(bool)
	return adm
}

type Signer struct {
	key *rsa.PrivateKey
	now func() time.Time
}

func NewSigner(keys KeyConfig, now func() time.Time) (*Signer, error) {
	if keys.PrivateKey == nil {
		return nil, fmt.Errorf("%w: RSA private key", ErrKeyMissing)
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{key: keys.PrivateKey, now: now}, nil
}

// Issue signs claims with RS256, setting iat and exp. Caller-supplied iat and
// exp are overwritten.
func (s *Signer) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	payload := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}

	now := s.now()
	payload["iat"] = jwt.NewNumericDate(now)
	payload["exp"] = jwt.NewNumericDate(now.Add(ttl))

	if _, err := json.Marshal(payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnencodableClaims, err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, payload).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func (s *Signer) IssueAccessToken(userID string, isAdmin bool, ttl time.Duration) (string, error) {
	return s.Issue(map[string]any{
		ClaimSubject: userID,
		ClaimAdmin:   isAdmin,
	}, ttl)
}

type Verifier struct {
	publicKey *rsa.PublicKey
	legacy    []byte
	mode      VerificationMode
	leeway    time.Duration
	now       func() time.Time
}

func NewVerifier(keys KeyConfig, now func() time.Time) (*Verifier, error) {
	if keys.PublicKey == nil {
		return nil, fmt.Errorf("%w: RSA public key", ErrKeyMissing)
	}
	mode := keys.Mode
	if mode == "" {
		mode = ModeStrict
	}
	if mode == ModeDual && len(keys.LegacySecret) == 0 {
		return nil, fmt.Errorf("%w: legacy secret required in dual mode", ErrKeyMissing)
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		publicKey: keys.PublicKey,
		legacy:    keys.LegacySecret,
		mode:      mode,
		leeway:    keys.Leeway,
		now:       now,
	}, nil
}

// Verify accepts RS256 tokens and, in dual mode, HS256 tokens signed with the
// legacy secret. Every failure is reported as ErrInvalidToken.
func (v *Verifier) Verify(tokenStr string) (Claims, error) {
	claims, err := v.parse(tokenStr, jwt.SigningMethodRS256.Alg(), v.publicKey)
	if err == nil {
		return claims, nil
	}

	if v.mode == ModeDual {
		legacyClaims, legacyErr := v.parse(tokenStr, jwt.SigningMethodHS256.Alg(), v.legacy)
		if legacyErr == nil {
			return legacyClaims, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func (v *Verifier) parse(tokenStr, alg string, key any) (Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	return Claims(claims), nil
}
