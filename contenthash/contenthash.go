package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Prefix is the conventional prefix applied to every content hash.
const Prefix = "0x"

// HexLength is the length of the digest portion (without prefix).
const HexLength = sha256.Size * 2

// ErrInvalidInput is returned when the input buffer is absent. A zero-length
// buffer is valid input and produces the canonical empty digest.
var ErrInvalidInput = errors.New("invalid input: nil buffer")

// Compute returns the canonical content identity of the raw bytes: the
// SHA-256 digest as a lowercase hex string with the 0x prefix.
func Compute(buf []byte) (string, error) {
	if buf == nil {
		return "", ErrInvalidInput
	}

	sum := sha256.Sum256(buf)
	return Prefix + hex.EncodeToString(sum[:]), nil
}

// Bytes decodes a content hash string back into its 32 raw digest bytes.
func Bytes(hash string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(hash), Prefix)
	if len(trimmed) != HexLength {
		return nil, errors.New("content hash has wrong length")
	}
	return hex.DecodeString(trimmed)
}

// Normalize lowercases a content hash and ensures the 0x prefix, so hashes
// from different callers compare equal in lookups.
func Normalize(hash string) string {
	lower := strings.ToLower(strings.TrimSpace(hash))
	if lower == "" {
		return ""
	}
	if !strings.HasPrefix(lower, Prefix) {
		lower = Prefix + lower
	}
	return lower
}

// IsValid reports whether the string is a well-formed content hash.
func IsValid(hash string) bool {
	_, err := Bytes(hash)
	return err == nil
}
