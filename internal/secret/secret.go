// Package secret provides password hashing, per-session signing secrets
// and the compact duration format used by policy values.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// HashCost is the bcrypt work factor for stored passwords.
	HashCost = 10

	// sessionSecretBytes is the amount of entropy behind each session
	// signing secret.
	sessionSecretBytes = 256

	// FallbackDuration is returned by ParseDuration for unparseable input.
	FallbackDuration int64 = 300

	// MaxDuration is the largest value ParseDuration returns, so that the
	// result still fits a time.Duration once scaled to nanoseconds.
	MaxDuration = math.MaxInt64 / int64(time.Second)
)

// HashPassword returns a salted bcrypt hash of plaintext.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), HashCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// GenerateSessionSecret returns a fresh base64-encoded random value used
// as the HMAC key of exactly one session token.
func GenerateSessionSecret() (string, error) {
	b := make([]byte, sessionSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// ParseDuration converts "30", "30m", "2h" or "1d" to seconds. Anything
// else, including values above MaxDuration, yields FallbackDuration.
func ParseDuration(value string) int64 {
	if value == "" {
		return FallbackDuration
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n < 0 || n > MaxDuration {
			return FallbackDuration
		}

		return n
	}

	var unit int64

	switch value[len(value)-1] {
	case 'm':
		unit = 60
	case 'h':
		unit = 60 * 60
	case 'd':
		unit = 24 * 60 * 60
	default:
		return FallbackDuration
	}

	n, err := strconv.ParseInt(value[:len(value)-1], 10, 64)
	if err != nil || n < 0 || n > MaxDuration/unit {
		return FallbackDuration
	}

	return n * unit
}
