package cache

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ErrSerialization marks a value that could not be encoded or decoded.
// Values that fail to encode are never cached.
var ErrSerialization = errors.New("cache: serialization failure")

// SetEmbedding caches an embedding vector keyed by its source text.
func (e *Engine) SetEmbedding(ctx context.Context, text string, vector []float32) error {
	payload, err := json.Marshal(vector)
	if err != nil {
		return errors.Wrapf(ErrSerialization, "encode embedding: %v", err)
	}
	e.Set(ctx, EmbeddingKey(text), payload, 0, TypeEmbedding)
	return nil
}

// GetEmbedding returns the cached embedding vector for text, if present.
func (e *Engine) GetEmbedding(ctx context.Context, text string) ([]float32, bool, error) {
	payload, found := e.Get(ctx, EmbeddingKey(text), TypeEmbedding)
	if !found {
		return nil, false, nil
	}
	var vector []float32
	if err := json.Unmarshal(payload, &vector); err != nil {
		return nil, false, errors.Wrapf(ErrSerialization, "decode embedding: %v", err)
	}
	return vector, true, nil
}

// SetResponse caches a generated response under the full conversation
// fingerprint (message, history, system prompt, temperature).
func (e *Engine) SetResponse(ctx context.Context, userMessage string, history []string, systemPrompt string, temperature float64, response string) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return errors.Wrapf(ErrSerialization, "encode response: %v", err)
	}
	e.Set(ctx, ResponseKey(userMessage, history, systemPrompt, temperature), payload, 0, TypeResponse)
	return nil
}

// GetResponse returns the cached response for the given conversation
// fingerprint, if present.
func (e *Engine) GetResponse(ctx context.Context, userMessage string, history []string, systemPrompt string, temperature float64) (string, bool, error) {
	payload, found := e.Get(ctx, ResponseKey(userMessage, history, systemPrompt, temperature), TypeResponse)
	if !found {
		return "", false, nil
	}
	var response string
	if err := json.Unmarshal(payload, &response); err != nil {
		return "", false, errors.Wrapf(ErrSerialization, "decode response: %v", err)
	}
	return response, true, nil
}

// SetAnalysis caches a session analysis document.
func (e *Engine) SetAnalysis(ctx context.Context, sessionID string, limit int, analysis map[string]any) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return errors.Wrapf(ErrSerialization, "encode analysis: %v", err)
	}
	e.Set(ctx, AnalysisKey(sessionID, limit), payload, 0, TypeAnalysis)
	return nil
}

// GetAnalysis returns the cached analysis for a session, if present.
func (e *Engine) GetAnalysis(ctx context.Context, sessionID string, limit int) (map[string]any, bool, error) {
	payload, found := e.Get(ctx, AnalysisKey(sessionID, limit), TypeAnalysis)
	if !found {
		return nil, false, nil
	}
	var analysis map[string]any
	if err := json.Unmarshal(payload, &analysis); err != nil {
		return nil, false, errors.Wrapf(ErrSerialization, "decode analysis: %v", err)
	}
	return analysis, true, nil
}
