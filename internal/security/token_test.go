package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newPair(t *testing.T, keys KeyConfig, signAt, verifyAt time.Time) (*Signer, *Verifier) {
	t.Helper()
	signer, err := NewSigner(keys, fixedClock(signAt))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	verifier, err := NewVerifier(keys, fixedClock(verifyAt))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return signer, verifier
}

func strictKeys(t *testing.T) KeyConfig {
	key := rsaKey(t)
	return KeyConfig{PrivateKey: key, PublicKey: &key.PublicKey, Mode: ModeStrict}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	signer, verifier := newPair(t, strictKeys(t), now, now.Add(time.Minute))

	token, err := signer.IssueAccessToken("user-1", true, 30*time.Minute)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject() != "user-1" || !claims.IsAdmin() {
		t.Fatalf("unexpected claims: %v", claims)
	}
	if exp, _ := claims["exp"].(float64); int64(exp) != now.Add(30*time.Minute).Unix() {
		t.Fatalf("exp = %v", claims["exp"])
	}
}

func TestVerifyExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	keys := strictKeys(t)

	signer, verifier := newPair(t, keys, now, now.Add(31*time.Minute))
	token, err := signer.Issue(map[string]any{"sub": "user-1"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}

	keys.Leeway = 2 * time.Minute
	_, lenient := newPair(t, keys, now, now.Add(31*time.Minute))
	if _, err := lenient.Verify(token); err != nil {
		t.Fatalf("expected leeway to accept token: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	now := time.Now()
	signer, verifier := newPair(t, strictKeys(t), now, now)

	token, err := signer.IssueAccessToken("user-1", false, time.Minute)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	parts := strings.Split(token, ".")
	forged := jwt.MapClaims{"sub": "user-1", "adm": true, "exp": now.Add(time.Hour).Unix()}
	body, _ := jwt.NewWithClaims(jwt.SigningMethodRS256, forged).SigningString()
	tampered := strings.Split(body, ".")[1]

	for name, tok := range map[string]string{
		"garbage":        "not-a-jwt",
		"empty":          "",
		"swapped claims": parts[0] + "." + tampered + "." + parts[2],
	} {
		if _, err := verifier.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestVerifyRequiresExpiration(t *testing.T) {
	key := rsaKey(t)
	_, verifier := newPair(t, strictKeys(t), time.Now(), time.Now())

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user-1"}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken without exp, got %v", err)
	}
}

func TestDualModeAcceptsLegacyTokens(t *testing.T) {
	now := time.Now()
	secret := []byte("legacy-shared-secret")
	legacy, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-legacy",
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign legacy: %v", err)
	}

	strict := strictKeys(t)
	strict.LegacySecret = secret
	_, strictVerifier := newPair(t, strict, now, now)
	if _, err := strictVerifier.Verify(legacy); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("strict mode accepted HS256 token: %v", err)
	}

	dual := strict
	dual.Mode = ModeDual
	signer, dualVerifier := newPair(t, dual, now, now)
	claims, err := dualVerifier.Verify(legacy)
	if err != nil {
		t.Fatalf("dual mode rejected legacy token: %v", err)
	}
	if claims.Subject() != "user-legacy" {
		t.Fatalf("subject = %q", claims.Subject())
	}

	current, err := signer.IssueAccessToken("user-new", false, time.Minute)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := dualVerifier.Verify(current); err != nil {
		t.Fatalf("dual mode rejected RS256 token: %v", err)
	}

	wrongSecret, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-legacy",
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("other"))
	if _, err := dualVerifier.Verify(wrongSecret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("dual mode accepted wrong secret: %v", err)
	}
}

func TestIssueUnencodableClaims(t *testing.T) {
	signer, err := NewSigner(strictKeys(t), nil)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	_, err = signer.Issue(map[string]any{"sub": "user-1", "callback": func() {}}, time.Minute)
	if !errors.Is(err, ErrUnencodableClaims) {
		t.Fatalf("expected ErrUnencodableClaims, got %v", err)
	}
}

func TestConstructorsRequireKeys(t *testing.T) {
	key := rsaKey(t)

	if _, err := NewSigner(KeyConfig{PublicKey: &key.PublicKey}, nil); !errors.Is(err, ErrKeyMissing) {
		t.Errorf("NewSigner without private key: %v", err)
	}
	if _, err := NewVerifier(KeyConfig{}, nil); !errors.Is(err, ErrKeyMissing) {
		t.Errorf("NewVerifier without public key: %v", err)
	}
	if _, err := NewVerifier(KeyConfig{PublicKey: &key.PublicKey, Mode: ModeDual}, nil); !errors.Is(err, ErrKeyMissing) {
		t.Errorf("NewVerifier dual without secret: %v", err)
	}
}

func TestParseKeyConfigFromPEM(t *testing.T) {
	key := rsaKey(t)
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	signing, err := ParseKeyConfig(privatePEM, nil, nil, "", 0)
	if err != nil {
		t.Fatalf("ParseKeyConfig(private): %v", err)
	}
	if signing.Mode != ModeStrict || signing.PublicKey == nil {
		t.Fatalf("unexpected key config: %+v", signing)
	}

	verifyOnly, err := ParseKeyConfig(nil, publicPEM, nil, ModeStrict, 0)
	if err != nil {
		t.Fatalf("ParseKeyConfig(public): %v", err)
	}
	if verifyOnly.PrivateKey != nil || verifyOnly.PublicKey.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatal("public key mismatch")
	}

	if _, err := ParseKeyConfig(nil, nil, nil, ModeStrict, 0); !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing, got %v", err)
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, err := GenerateRefreshToken()
		if err != nil {
			t.Fatalf("GenerateRefreshToken: %v", err)
		}
		if len(tok) != 43 {
			t.Fatalf("token length = %d, want 43", len(tok))
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("duplicate refresh token")
		}
		seen[tok] = struct{}{}
	}
}
