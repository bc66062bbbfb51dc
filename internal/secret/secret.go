// Package secret handles list write secrets.
//
// Clients never send a plaintext secret over the wire: they send Digest,
// an argon2id derivation salted with the list id. The server keeps only a
// bcrypt hash of that digest.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argonTime    = 1
	argonMemory  = 8 * 1024
	argonThreads = 1
	argonKeyLen  = 32

	generatedBytes = 24
)

// ErrMismatch is returned by Verify when a digest does not match the stored hash.
var ErrMismatch = errors.New("write secret does not match")

// Generate returns a new random plaintext write secret.
func Generate() (string, error) {
	b := make([]byte, generatedBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Digest derives the value sent to the server for write-authenticated calls.
// It is deterministic for a given list id and secret.
func Digest(listID, plaintext string) string {
	key := argon2.IDKey([]byte(plaintext), []byte("blsync:"+listID), argonTime, argonMemory, argonThreads, argonKeyLen)
	return hex.EncodeToString(key)
}

// Hash returns the bcrypt hash stored server-side for a digest.
func Hash(digest string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(digest), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(h), nil
}

// Verify checks a client digest against a stored hash.
func Verify(hash, digest string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(digest)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("failed to verify secret: %w", err)
	}
	return nil
}
