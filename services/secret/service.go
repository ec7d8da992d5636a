package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/tech-arch1tect/walletauth/services/logging"
	"go.uber.org/zap"
)

var ErrWeakSecret = errors.New("signing secret is too weak")

type Strength string

const (
	VeryStrong Strength = "very-strong"
	Strong     Strength = "strong"
	Medium     Strength = "medium"
	Weak       Strength = "weak"
)

const (
	MinLength          = 32
	RecommendedLength  = 64
	MinEntropy         = 3.0
	RecommendedEntropy = 4.0

	DefaultGenerateBytes = 64

	maxRepeatRun = 6
)

var weakPrefixes = []string{
	"test", "secret", "password", "changeme", "default", "example", "sample", "demo",
}

var weakWords = []string{
	"password", "secret", "admin", "qwerty", "letmein", "123456", "changeme",
}

type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Entropy  float64  `json:"entropy"`
	Strength Strength `json:"strength"`
}

// Validate judges a token signing secret. Errors block startup, warnings do not.
func Validate(secret string) Result {
	result := Result{Errors: []string{}, Warnings: []string{}}

	if secret == "" {
		result.Errors = append(result.Errors, "secret is required")
		result.Strength = Weak
		return result
	}

	length := len([]rune(secret))
	result.Entropy = ShannonEntropy(secret)
	classes := characterClasses(secret)

	if length < MinLength {
		result.Errors = append(result.Errors,
			fmt.Sprintf("secret must be at least %d characters (got %d)", MinLength, length))
	}
	if result.Entropy < MinEntropy {
		result.Errors = append(result.Errors,
			fmt.Sprintf("secret entropy %.2f bits/char is below %.1f", result.Entropy, MinEntropy))
	}
	for _, pattern := range weakPatterns(secret) {
		result.Errors = append(result.Errors, "secret matches weak pattern: "+pattern)
	}

	if length < RecommendedLength {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("secret is shorter than the recommended %d characters", RecommendedLength))
	}
	if result.Entropy < RecommendedEntropy {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("secret entropy %.2f bits/char is below the recommended %.1f", result.Entropy, RecommendedEntropy))
	}
	if 4-classes > 2 {
		result.Warnings = append(result.Warnings,
			"secret should mix digits, lowercase, uppercase and symbols")
	}

	result.Valid = len(result.Errors) == 0
	result.Strength = classify(length, result.Entropy, classes)
	return result
}

// ShannonEntropy returns bits per character.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}

	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func classify(length int, entropy float64, classes int) Strength {
	switch {
	case length >= 64 && entropy >= 4.0 && classes >= 3:
		return VeryStrong
	case length >= 48 && entropy >= 3.0 && classes >= 2:
		return Strong
	case length >= 32 && entropy >= 3.0:
		return Medium
	default:
		return Weak
	}
}

func characterClasses(s string) int {
	var hasDigit, hasLower, hasUpper, hasSymbol bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		default:
			hasSymbol = true
		}
	}

	n := 0
	for _, has := range []bool{hasDigit, hasLower, hasUpper, hasSymbol} {
		if has {
			n++
		}
	}
	return n
}

func weakPatterns(secret string) []string {
	var matched []string
	lower := strings.ToLower(secret)

	for _, prefix := range weakPrefixes {
		if strings.HasPrefix(lower, prefix) {
			matched = append(matched, "common prefix "+prefix)
			break
		}
	}

	if run := longestRun(secret); run >= maxRepeatRun {
		matched = append(matched, fmt.Sprintf("repeated character run of %d", run))
	}

	switch {
	case allRunes(secret, unicode.IsLower):
		matched = append(matched, "lowercase letters only")
	case allRunes(secret, unicode.IsUpper):
		matched = append(matched, "uppercase letters only")
	case allRunes(secret, unicode.IsDigit):
		matched = append(matched, "digits only")
	}

	for _, word := range weakWords {
		if strings.Contains(lower, word) {
			matched = append(matched, "common word "+word)
			break
		}
	}

	return matched
}

func longestRun(s string) int {
	longest, current := 0, 0
	var prev rune
	for i, r := range []rune(s) {
		if i > 0 && r == prev {
			current++
		} else {
			current = 1
		}
		prev = r
		if current > longest {
			longest = current
		}
	}
	return longest
}

func allRunes(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// Generate returns a URL-safe random secret built from n random bytes.
func Generate(n int) (string, error) {
	if n <= 0 {
		n = DefaultGenerateBytes
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Enforce validates the secret and returns ErrWeakSecret if it must not be
// used. Every finding is logged together with remediation for the operator.
func Enforce(secret string, logger *logging.Service) error {
	result := Validate(secret)

	for _, w := range result.Warnings {
		logger.Warn("signing secret warning", zap.String("warning", w))
	}

	if !result.Valid {
		for _, e := range result.Errors {
			logger.Error("signing secret rejected", zap.String("reason", e))
		}
		logger.Error("refusing to start with a weak JWT_SECRET_KEY",
			zap.String("remediation", "run `walletauth secret generate` and set JWT_SECRET_KEY to its output"))
		return fmt.Errorf("%w: %s", ErrWeakSecret, strings.Join(result.Errors, "; "))
	}

	logger.Info("signing secret accepted",
		zap.String("strength", string(result.Strength)),
		zap.Float64("entropy", result.Entropy))
	return nil
}
