package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
)

const (
	// MinSecretLength is the shortest webhook secret accepted.
	MinSecretLength = 32

	// MinEntropy is the Shannon entropy, in bits per character, that
	// ValidateSecret requires.
	MinEntropy = 3.5

	// weakEntropy is the threshold below which SecretWeakness complains.
	weakEntropy = 2.5

	// generatedSecretBytes encode to 48 URL-safe base64 characters.
	generatedSecretBytes = 36
)

// Values copied verbatim from documentation and sample configs.
var placeholderSecrets = map[string]bool{
	"replace-with-secret":                   true,
	"github-webhook-password":               true,
	"topsecret":                             true,
	"secret":                                true,
	"password":                              true,
	"changeme":                              true,
	"your-webhook-secret-min-32-chars-long": true,
}

var placeholderWords = []string{"replace", "changeme", "topsecret", "password", "example"}

// SecretWeakness returns a short reason when secret is obviously weak,
// or "" when nothing stands out. Weak secrets only produce warnings at
// startup; ValidateSecret is the strict check.
func SecretWeakness(secret string) string {
	switch {
	case len(secret) < MinSecretLength:
		return fmt.Sprintf("shorter than %d characters", MinSecretLength)
	case placeholderSecrets[strings.ToLower(secret)]:
		return "a known placeholder value"
	case strings.Count(secret, secret[:1]) == len(secret):
		return "a single repeated character"
	case isSequential(secret):
		return "mostly sequential characters"
	case shannonEntropy(secret) < weakEntropy:
		return "low entropy"
	}
	return ""
}

// ValidateSecret rejects secrets that are weak, look like placeholders or
// are not random enough.
func ValidateSecret(secret string) error {
	if weakness := SecretWeakness(secret); weakness != "" {
		return fmt.Errorf("secret is %s", weakness)
	}

	lower := strings.ToLower(secret)
	if word, found := lo.Find(placeholderWords, func(w string) bool { return strings.Contains(lower, w) }); found {
		return fmt.Errorf("secret contains the placeholder word %q", word)
	}

	if entropy := shannonEntropy(secret); entropy < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f bits per character), use 'pushdeploy secret'", entropy, MinEntropy)
	}

	return nil
}

// GenerateSecret returns a random 48-character URL-safe secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// shannonEntropy returns the entropy of s in bits per character.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	counts := lo.CountValues([]rune(s))
	total := float64(len([]rune(s)))

	var entropy float64
	for _, n := range counts {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// isSequential reports whether more than 70% of neighbouring bytes differ
// by exactly one, as in "123456" or "abcdef".
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	steps := 0
	for i := 1; i < len(s); i++ {
		if d := int(s[i]) - int(s[i-1]); d == 1 || d == -1 {
			steps++
		}
	}
	return float64(steps) > float64(len(s))*0.7
}
