package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/testutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidate_HardFailures(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		wantError string
	}{
		{"empty", testutils.TestSecrets.Empty, "secret is required"},
		{"too short", testutils.TestSecrets.TooShort, "at least 32 characters"},
		{"all lowercase", testutils.TestSecrets.AllLowercase, "lowercase letters only"},
		{"weak prefix", testutils.TestSecrets.WeakPrefix, "common prefix changeme"},
		{"repeated run", testutils.TestSecrets.RepeatedChars, "repeated character run"},
		{"low entropy", strings.Repeat("ab", 20), "entropy"},
		{"digits only", "12345678901234567890123456789012345", "digits only"},
		{"uppercase only", "QWMNBVCXZLKJHGFDSAPOIUYTREWQAZXSWE", "uppercase letters only"},
		{"weak word", "Xk9mP2vLadminQ7rT4wY8zB3nC6hJ1fG5s", "common word admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.secret)

			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, strings.Join(result.Errors, "\n"), tt.wantError)
		})
	}
}

func TestValidate_Password(t *testing.T) {
	result := Validate("password")

	assert.False(t, result.Valid)
	assert.Equal(t, Weak, result.Strength)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "weak pattern")
	assert.Contains(t, joined, "at least 32 characters")
}

func TestValidate_GeneratedSecret(t *testing.T) {
	secret, err := Generate(64)
	require.NoError(t, err)

	result := Validate(secret)

	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, VeryStrong, result.Strength)
	assert.GreaterOrEqual(t, result.Entropy, RecommendedEntropy)
}

func TestValidate_Warnings(t *testing.T) {
	t.Run("short but valid secret warns about length", func(t *testing.T) {
		result := Validate("Zq3vN8wLr5Tj2XkP9mHc4Ya7Ub1Ge6Sd0Fo3Ri8")

		assert.True(t, result.Valid)
		assert.Contains(t, strings.Join(result.Warnings, "\n"), "recommended 64 characters")
		assert.Equal(t, Medium, result.Strength)
	})

	t.Run("single class of characters warns about composition", func(t *testing.T) {
		result := Validate("qwmnbvcxzlkjhgfdsapoiuytrewqazxsw")

		assert.Contains(t, strings.Join(result.Warnings, "\n"), "should mix")
	})

	t.Run("strong secret has no warnings", func(t *testing.T) {
		result := Validate(testutils.StrongSecret)

		assert.True(t, result.Valid)
		assert.Empty(t, result.Warnings)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		entropy float64
		classes int
		want    Strength
	}{
		{"very strong", 64, 4.5, 3, VeryStrong},
		{"long but two classes", 64, 4.5, 2, Strong},
		{"strong", 48, 3.5, 2, Strong},
		{"medium", 32, 3.0, 1, Medium},
		{"low entropy", 64, 2.9, 4, Weak},
		{"short", 31, 5.0, 4, Weak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.length, tt.entropy, tt.classes))
		})
	}
}

func TestShannonEntropy(t *testing.T) {
	assert.Equal(t, 0.0, ShannonEntropy(""))
	assert.Equal(t, 0.0, ShannonEntropy("aaaa"))
	assert.InDelta(t, 1.0, ShannonEntropy("abab"), 1e-9)
	assert.InDelta(t, 2.0, ShannonEntropy("abcd"), 1e-9)
}

func TestLongestRun(t *testing.T) {
	assert.Equal(t, 0, longestRun(""))
	assert.Equal(t, 1, longestRun("abc"))
	assert.Equal(t, 4, longestRun("abbbbc"))
	assert.Equal(t, 3, longestRun("zzz"))
}

func TestGenerate(t *testing.T) {
	t.Run("default length", func(t *testing.T) {
		secret, err := Generate(0)
		require.NoError(t, err)

		// 64 bytes of base64url without padding
		assert.Len(t, secret, 86)
		assert.NotContains(t, secret, "+")
		assert.NotContains(t, secret, "/")
		assert.NotContains(t, secret, "=")
	})

	t.Run("custom length", func(t *testing.T) {
		secret, err := Generate(48)
		require.NoError(t, err)
		assert.Len(t, secret, 64)
	})

	t.Run("unique", func(t *testing.T) {
		a, err := Generate(32)
		require.NoError(t, err)
		b, err := Generate(32)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestEnforce(t *testing.T) {
	t.Run("weak secret is rejected with remediation", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		logger := logging.NewFromZap(zap.New(core))

		err := Enforce("password", logger)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWeakSecret)

		remediation := recorded.FilterField(zap.String("remediation",
			"run `walletauth secret generate` and set JWT_SECRET_KEY to its output"))
		assert.Equal(t, 1, remediation.Len())
	})

	t.Run("strong secret is accepted", func(t *testing.T) {
		core, recorded := observer.New(zapcore.DebugLevel)
		logger := logging.NewFromZap(zap.New(core))

		err := Enforce(testutils.StrongSecret, logger)

		require.NoError(t, err)
		assert.Equal(t, 1, recorded.FilterMessage("signing secret accepted").Len())
	})

	t.Run("nil logger", func(t *testing.T) {
		assert.ErrorIs(t, Enforce("", nil), ErrWeakSecret)
	})
}
