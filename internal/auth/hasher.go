// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes

	// argon2MaxMemory caps the memory cost accepted from stored digests, in KiB.
	argon2MaxMemory = 256 * 1024
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

const argon2idPrefix = "$argon2id$"

// bcryptPrefixes identify digests written before the switch to argon2id.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an argon2id hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be upgraded to argon2id.
	NeedsUpgrade(hash string) bool

	// IsAlreadyHashed reports whether value is a digest this hasher understands.
	IsAlreadyHashed(value string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// Legacy bcrypt digests still verify so they can be upgraded on login.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	// Generate random salt
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	// Compute hash
	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// Encode as PHC string format
	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return verifyBcrypt(password, encodedHash)
	}

	d, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	computedHash := argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.threads, uint32(len(d.key))) //nolint:gosec // key length bounded by parseArgon2id

	// Constant-time comparison
	if subtle.ConstantTimeCompare(computedHash, d.key) == 1 {
		return true, nil
	}

	return false, nil
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, argon2idPrefix)
}

// IsAlreadyHashed accepts argon2id digests whose parameters Verify would
// run, and bcrypt digests with a valid cost.
func (h *Argon2idHasher) IsAlreadyHashed(value string) bool {
	if strings.HasPrefix(value, argon2idPrefix) {
		_, err := parseArgon2id(value)
		return err == nil
	}
	if isBcrypt(value) {
		_, err := bcrypt.Cost([]byte(value))
		return err == nil
	}
	return false
}

// argon2Digest is a decoded PHC argon2id string.
type argon2Digest struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// parseArgon2id decodes a PHC argon2id string and bounds its cost so a
// stored digest cannot make Verify panic or exhaust memory.
func parseArgon2id(encoded string) (argon2Digest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if time < 1 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("iterations must be at least 1")
	}
	if threads < 1 || threads > 255 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("parallelism %d outside 1..255", threads)
	}
	if memory > argon2MaxMemory {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").
			With("memory_kib", memory).
			Errorf("memory cost exceeds %d KiB", argon2MaxMemory)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return argon2Digest{}, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return argon2Digest{
		memory:  memory,
		time:    time,
		threads: uint8(threads), //nolint:gosec // bounded above
		salt:    salt,
		key:     key,
	}, nil
}

func isBcrypt(hash string) bool {
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(hash, prefix) {
			return true
		}
	}
	return false
}

// verifyBcrypt delegates to bcrypt's constant-time comparison.
func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
	}
}
