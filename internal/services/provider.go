package services

import (
	"context"
	"errors"
	"iter"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/stream"
)

// Provider streams an assistant response for a conversation. The returned
// sequence is lazy: no upstream call happens until it is ranged over, and
// breaking out of the loop or cancelling ctx stops generation.
type Provider interface {
	Stream(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error]
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error]

func (f ProviderFunc) Stream(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error] {
	return f(ctx, messages)
}

// ErrProviderNotConfigured is returned when no provider credential is set.
var ErrProviderNotConfigured = errors.New("Google Generative AI API key is not configured. Set GOOGLE_GENERATIVE_AI_API_KEY and restart the server.")

// ErrInvalidConversation is returned when a conversation cannot be sent
// upstream as-is.
var ErrInvalidConversation = errors.New("conversation must end with a user message")

// ProviderError carries the upstream HTTP status alongside the underlying error.
type ProviderError struct {
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	return e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusOf returns the upstream HTTP status attached to err, or 0.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}

// ValidateConversation checks the shape every provider relies on.
func ValidateConversation(messages []models.Message) error {
	if len(messages) == 0 {
		return ErrInvalidConversation
	}
	if messages[len(messages)-1].Role != models.RoleUser {
		return ErrInvalidConversation
	}
	return nil
}
