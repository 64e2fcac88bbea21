package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// apiKeyPrefix marks cvfolio-issued keys so they are recognizable in logs
// and support tickets without revealing the secret part.
const apiKeyPrefix = "cvf_"

// GenerateAPIKey creates a new random portfolio API key.
func GenerateAPIKey() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return apiKeyPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return apiKeyPrefix + hex.EncodeToString(b)
}

// MaskAPIKey returns a preview form of a key safe for display: the prefix,
// the first four secret characters, and the length-preserving remainder
// replaced by asterisks. Empty input stays empty.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	visible := len(apiKeyPrefix) + 4
	if len(key) <= visible {
		return key
	}
	return key[:visible] + strings.Repeat("*", len(key)-visible)
}
