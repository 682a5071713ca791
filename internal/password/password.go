// Package password hashes and verifies identity credentials.
//
// The sync protocol stores an unsalted SHA-256 hex digest of the key the
// client sends. That format stays the default so existing data directories
// keep working. Argon2id is available as a stronger alternative; Verify
// recognises both encodings, so a store may contain a mix of them.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned for malformed or unsupported encoded hashes.
var ErrInvalidHash = errors.New("invalid password hash")

// Hasher produces an encoded hash for a password.
type Hasher interface {
	Hash(password string) (string, error)
}

// SHA256 is the protocol-compatible hasher: lowercase hex of SHA-256 over the
// raw password bytes, no salt.
type SHA256 struct{}

// Hash implements Hasher.
func (SHA256) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Argon2id hashes with a random salt and encodes the result as
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>.
type Argon2id struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2id returns interactive-login parameters.
func DefaultArgon2id() Argon2id {
	return Argon2id{
		MemoryKiB:   64 * 1024,
		Iterations:  1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hash implements Hasher.
func (a Argon2id) Hash(password string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, a.Iterations, a.MemoryKiB, a.Parallelism, a.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.MemoryKiB, a.Iterations, a.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// NewHasher returns the hasher registered under name ("sha256" or "argon2id").
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256":
		return SHA256{}, nil
	case "argon2id":
		return DefaultArgon2id(), nil
	default:
		return nil, fmt.Errorf("unknown password hash %q", name)
	}
}

// Verify reports whether password matches encoded. Both digests are compared
// in constant time. A malformed argon2id encoding yields ErrInvalidHash.
func Verify(encoded, password string) (bool, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "$argon2id$") {
		return verifyArgon2id(encoded, password)
	}

	want, err := hex.DecodeString(encoded)
	if err != nil || len(want) != sha256.Size {
		return false, ErrInvalidHash
	}
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(got[:], want) == 1, nil
}

func verifyArgon2id(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return false, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return false, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return false, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidHash
	}
	want, err := b64.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(password), salt, it, mem, uint8(par), uint32(len(want))) // #nosec G115 -- bounded above
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
