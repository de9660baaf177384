package util

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // G505: sha1 for cache keys, not security
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"aiboost/internal/core"

	"github.com/bytedance/sonic"
)

// MarshalJSON wraps Sonic for performance
func MarshalJSON(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// UnmarshalJSON wraps Sonic for performance
func UnmarshalJSON(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// GenerateRandomID generates a prefixed random ID (crypto-secure)
func GenerateRandomID(prefix string) string {
	b := make([]byte, 10)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s%s", prefix, hex.EncodeToString(b))
}

// GenerateTimestampedID generates IDs like conv_20250821_153000_ab12cd34.
// The timestamp keeps IDs sortable; the random suffix keeps them unique.
func GenerateTimestampedID(prefix string) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s_%s_%s", prefix, time.Now().UTC().Format(core.TimeFormatCompact), hex.EncodeToString(b))
}

// GenerateSessionToken generates a crypto-secure opaque session token.
func GenerateSessionToken() string {
	b := make([]byte, core.SessionTokenBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Sha1Hex returns the hex SHA-1 of the input, for cache key derivation.
func Sha1Hex(s string) string {
	h := sha1.Sum([]byte(s)) //nolint:gosec // G401: cache keys, not security
	return hex.EncodeToString(h[:])
}

// EstimateTokenCount provides a rough token count estimation.
// Uses rune count for better accuracy with multi-byte characters.
func EstimateTokenCount(text string) int {
	runeCount := utf8.RuneCountInString(text)
	if runeCount == 0 {
		return 0
	}
	// Rough estimation: ~0.6 tokens per rune for mixed CJK/Latin text,
	// rounded up so short messages never undercount.
	return (runeCount*3 + 4) / 5
}

// FirstRunes returns at most n leading runes of s.
func FirstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// TruncateRunes shortens s to n runes, appending an ellipsis when truncated.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return FirstRunes(s, n) + "..."
}

// ParseEnvList parses comma-separated env var to trimmed slice
func ParseEnvList(envVar string) []string {
	if envVar == "" {
		return nil
	}
	parts := strings.Split(envVar, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// GetEnvWithDefault gets env var with default value
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvIntWithDefault gets an integer env var, falling back on the default
// when unset, unparsable or non-positive.
func GetEnvIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
