package security

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

var (
	ErrMalformedDigest = errors.New("malformed password digest")
	ErrPasswordTooLong = fmt.Errorf("password longer than %d bytes", MaxPasswordBytes)
	ErrEmptyPassword   = errors.New("password is empty")
)

const argon2Prefix = "$argon2id$"

// Argon2Params describes digests written before the switch to bcrypt. They are
// still accepted by Verify and flagged by NeedsRehash.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var legacyArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

// Hasher bounds the number of concurrent hash computations.
type Hasher struct {
	cost  int
	slots chan struct{}
}

func NewHasher(cost, concurrency int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Hasher{
		cost:  cost,
		slots: make(chan struct{}, concurrency),
	}
}

func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.release()

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. A mismatch is (false, nil);
// an unrecognized or corrupt digest is ErrMalformedDigest.
func (h *Hasher) Verify(ctx context.Context, password, digest string) (bool, error) {
	switch {
	case isBcrypt(digest):
		if _, err := bcrypt.Cost([]byte(digest)); err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
		}
		if len(password) > MaxPasswordBytes {
			return false, nil
		}
		if err := h.acquire(ctx); err != nil {
			return false, err
		}
		defer h.release()

		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
		}
	case strings.HasPrefix(digest, argon2Prefix):
		params, salt, hash, err := decodeArgon2(digest)
		if err != nil {
			return false, err
		}
		if err := h.acquire(ctx); err != nil {
			return false, err
		}
		defer h.release()

		computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
		return subtle.ConstantTimeCompare(hash, computed) == 1, nil
	default:
		return false, ErrMalformedDigest
	}
}

// NeedsRehash is true for legacy argon2id digests and bcrypt digests with a
// different cost than the one configured.
func (h *Hasher) NeedsRehash(digest string) bool {
	if !isBcrypt(digest) {
		return strings.HasPrefix(digest, argon2Prefix)
	}
	cost, err := bcrypt.Cost([]byte(digest))
	return err == nil && cost != h.cost
}

func (h *Hasher) acquire(ctx context.Context) error {
	select {
	case h.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hasher) release() { <-h.slots }

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

// $argon2id$v=19$t=3,m=65536,p=2$<salt>$<hash>
func decodeArgon2(digest string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return params, nil, nil, fmt.Errorf("%w: expected 6 segments, got %d", ErrMalformedDigest, len(parts))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, fmt.Errorf("%w: unsupported argon2 version %q", ErrMalformedDigest, parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "t=%d,m=%d,p=%d", &params.Time, &params.Memory, &params.Threads); err != nil {
		return params, nil, nil, fmt.Errorf("%w: parameters: %v", ErrMalformedDigest, err)
	}
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return params, nil, nil, fmt.Errorf("%w: zero argon2 parameter", ErrMalformedDigest)
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedDigest, err)
	}
	hash, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return params, nil, nil, fmt.Errorf("%w: hash: %v", ErrMalformedDigest, err)
	}

	params.KeyLen = uint32(len(hash))
	params.SaltLen = uint32(len(salt))
	return params, salt, hash, nil
}
