package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Logical cache types. They label metrics and durable rows; they never
// influence routing.
const (
	TypeGeneric   = "generic"
	TypeEmbedding = "embedding"
	TypeResponse  = "response"
	TypeAnalysis  = "analysis"
)

// Keys longer than this are collapsed into prefix:sha256. The prefix is kept
// verbatim so pattern invalidation by prefix keeps working.
const maxKeyLength = 200

// BuildKey derives a deterministic cache key from a logical prefix and the
// ordered arguments that determine the cached value. Identical inputs always
// produce identical keys. Strings are embedded verbatim; everything else is
// JSON-encoded, which sorts map keys and therefore stays deterministic.
func BuildKey(prefix string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, prefix)

	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			parts = append(parts, v)
		case nil:
			parts = append(parts, "")
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				// Unencodable arguments still need a stable representation.
				parts = append(parts, fmt.Sprintf("%v", v))
				continue
			}
			parts = append(parts, string(encoded))
		}
	}

	key := strings.Join(parts, ":")
	if len(key) > maxKeyLength {
		sum := sha256.Sum256([]byte(key))
		return prefix + ":" + hex.EncodeToString(sum[:])
	}
	return key
}

// EmbeddingKey returns the cache key for the embedding of text.
func EmbeddingKey(text string) string {
	return BuildKey(TypeEmbedding, text)
}

// ResponseKey returns the cache key for a generated-text response. All
// arguments that influence the response take part in the key.
func ResponseKey(userMessage string, history []string, systemPrompt string, temperature float64) string {
	return BuildKey(TypeResponse, userMessage, history, systemPrompt, temperature)
}

// ResponseKeyPrefix returns the key fragment shared by every response cached
// for userMessage, regardless of history, prompt, or temperature. Useful for
// grouped invalidation.
func ResponseKeyPrefix(userMessage string) string {
	return TypeResponse + ":" + userMessage
}

// AnalysisKey returns the cache key for a derived-analytics result.
func AnalysisKey(sessionID string, limit int) string {
	return BuildKey(TypeAnalysis, sessionID, limit)
}
