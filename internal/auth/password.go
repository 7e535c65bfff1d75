package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	defaultHashTime        = 8
	defaultHashMemoryKiB   = 64 * 1024
	defaultHashParallelism = 2
	defaultHashKeyLength   = 32
	defaultHashSaltLength  = 16
)

// ErrMalformedHash indicates a stored password hash that cannot be decoded.
// It is a data-integrity failure, distinct from a password mismatch.
var ErrMalformedHash = errors.New("auth: malformed password hash")

// PasswordHasherConfig sets the argon2id work factors.
type PasswordHasherConfig struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// PasswordHasher hashes and verifies passwords with argon2id. It holds no
// mutable state and is safe for concurrent use.
type PasswordHasher struct {
	config PasswordHasherConfig
}

// NewPasswordHasher constructs a hasher, filling in default work factors for
// any zero-valued parameter.
func NewPasswordHasher(cfg PasswordHasherConfig) *PasswordHasher {
	if cfg.Time == 0 {
		cfg.Time = defaultHashTime
	}
	if cfg.MemoryKiB == 0 {
		cfg.MemoryKiB = defaultHashMemoryKiB
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = defaultHashParallelism
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = defaultHashKeyLength
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = defaultHashSaltLength
	}
	return &PasswordHasher{config: cfg}
}

// Hash derives an argon2id digest of the password under a fresh random salt
// and returns it in the self-describing PHC string format, so Verify can
// recover the salt and work factors from the stored value alone.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.MemoryKiB, h.config.Parallelism, h.config.KeyLength)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.config.MemoryKiB,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify recomputes the digest using the parameters embedded in the stored
// hash and compares in constant time. A mismatch returns (false, nil); only a
// hash that cannot be decoded returns ErrMalformedHash.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	params, salt, key, err := decodePasswordHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

func decodePasswordHash(encoded string) (PasswordHasherConfig, []byte, []byte, error) {
	segments := strings.Split(encoded, "$")
	if len(segments) != 6 || segments[0] != "" || segments[1] != "argon2id" {
		return PasswordHasherConfig{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(segments[2], "v=%d", &version); err != nil || version != argon2.Version {
		return PasswordHasherConfig{}, nil, nil, ErrMalformedHash
	}

	var params PasswordHasherConfig
	if _, err := fmt.Sscanf(segments[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Time, &params.Parallelism); err != nil {
		return PasswordHasherConfig{}, nil, nil, ErrMalformedHash
	}
	if params.MemoryKiB == 0 || params.Time == 0 || params.Parallelism == 0 {
		return PasswordHasherConfig{}, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(segments[4])
	if err != nil || len(salt) == 0 {
		return PasswordHasherConfig{}, nil, nil, ErrMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(segments[5])
	if err != nil || len(key) == 0 {
		return PasswordHasherConfig{}, nil, nil, ErrMalformedHash
	}

	return params, salt, key, nil
}
