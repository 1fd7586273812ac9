// Package credentials generates and evaluates installation secrets.
// This is part of the Functional Core: randomness is injected as an io.Reader
// and nothing here touches the filesystem.
//
// Secrets are drawn from an alphanumeric alphabet so they survive env files,
// YAML and shell quoting unchanged.
package credentials

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"
	"unicode"

	"github.com/artpar/flowstack/internal/core/domain"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrWeakSecret is returned when no generated secret met the strength floor.
	ErrWeakSecret = fmt.Errorf("%w: generated secret below strength floor", domain.ErrValidation)

	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password is empty")
)

// =============================================================================
// Keys
// =============================================================================

// Credential keys as they appear in the env file.
const (
	KeyEncryptionKey     = "N8N_ENCRYPTION_KEY"
	KeyN8NAdminPassword  = "N8N_ADMIN_PASSWORD"
	KeyQdrantAPIKey      = "QDRANT_API_KEY"
	KeyPortainerPassword = "PORTAINER_ADMIN_PASSWORD"
	KeyDozzlePassword    = "DOZZLE_ADMIN_PASSWORD"
)

const (
	// MinLength is the shortest secret that is ever accepted.
	MinLength = 24

	// MinEntropyBits is the strength floor for a generated secret.
	MinEntropyBits = 128

	// maxGenerateAttempts bounds how often a weak draw is retried.
	maxGenerateAttempts = 3
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Set maps credential keys to their values.
type Set map[string]string

// Keys returns the keys of the set in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// =============================================================================
// Generator
// =============================================================================

// Generator produces random secrets.
type Generator struct {
	rand   io.Reader
	length int
}

// NewGenerator creates a generator reading from r. A nil reader uses
// crypto/rand. Lengths below MinLength are raised to MinLength.
func NewGenerator(r io.Reader, length int) *Generator {
	if r == nil {
		r = rand.Reader
	}
	if length < MinLength {
		length = MinLength
	}
	return &Generator{rand: r, length: length}
}

// Secret draws one secret that meets the strength floor. A draw below the
// floor is discarded and redrawn; after maxGenerateAttempts weak draws the
// result is ErrWeakSecret.
func (g *Generator) Secret() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		buf := make([]byte, g.length)
		for i := range buf {
			n, err := rand.Int(g.rand, max)
			if err != nil {
				return "", fmt.Errorf("read random source: %w", err)
			}
			buf[i] = alphabet[n.Int64()]
		}
		secret := string(buf)
		if Strong(secret) {
			return secret, nil
		}
	}
	return "", ErrWeakSecret
}

// Ensure returns a set holding a value for every key in required. Values
// already present in existing are kept as they are; only missing or empty
// keys are generated. The second return value lists the generated keys.
func (g *Generator) Ensure(existing Set, required []string) (Set, []string, error) {
	out := make(Set, len(required))
	var generated []string

	keys := append([]string(nil), required...)
	sort.Strings(keys)
	for _, key := range keys {
		if v, ok := existing[key]; ok && v != "" {
			out[key] = v
			continue
		}
		secret, err := g.Secret()
		if err != nil {
			return nil, nil, fmt.Errorf("generate %s: %w", key, err)
		}
		out[key] = secret
		generated = append(generated, key)
	}
	return out, generated, nil
}

// =============================================================================
// Strength
// =============================================================================

// EntropyBits estimates the entropy of s from its length and the character
// classes it draws from.
func EntropyBits(s string) float64 {
	var lower, upper, digit, other bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}

	pool := 0
	if lower {
		pool += 26
	}
	if upper {
		pool += 26
	}
	if digit {
		pool += 10
	}
	if other {
		pool += 32
	}
	if pool == 0 {
		return 0
	}
	return float64(len([]rune(s))) * math.Log2(float64(pool))
}

// Strong reports whether s meets both the length and the entropy floor.
func Strong(s string) bool {
	return len(s) >= MinLength && EntropyBits(s) >= MinEntropyBits
}

// =============================================================================
// Password Hashing
// =============================================================================

// HashPassword returns the bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches a bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
