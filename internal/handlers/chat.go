package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/services"
	"toolchat-backend/internal/stream"
	"toolchat-backend/internal/telemetry"
)

const maxRequestBytes = 1 << 20

// errClientWrite marks a failure to deliver a chunk to the caller, which
// ends the turn without a classified error response.
var errClientWrite = errors.New("client write failed")

type ChatHandler struct {
	provider   services.Provider
	configured bool
	timeout    time.Duration
	metrics    *telemetry.ChatMetrics
}

// NewChatHandler builds the chat endpoint. When configured is false every
// request fails with config_missing before the provider is touched.
func NewChatHandler(provider services.Provider, configured bool, timeout time.Duration, metrics *telemetry.ChatMetrics) *ChatHandler {
	return &ChatHandler{
		provider:   provider,
		configured: configured && provider != nil,
		timeout:    timeout,
		metrics:    metrics,
	}
}

// Stream handles POST /api/v1/chat. On success the body is a data stream;
// failures before the first chunk are returned as a JSON error.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordRequest(r.Context())

	if !h.configured {
		h.fail(w, r, services.ErrProviderNotConfigured)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.fail(w, r, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := services.ValidateConversation(req.Messages); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	enc := stream.NewEncoder(w)
	begin := func() error {
		stream.SetHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		return enc.Start("msg-" + uuid.NewString())
	}

	started, err := h.turn(ctx, req.Messages, begin, enc.Encode)
	switch {
	case err == nil:
	case errors.Is(err, errClientWrite):
		slog.Debug("chat client went away", "error", err)
	case !started:
		h.fail(w, r, err)
	default:
		status, resp := ClassifyChatError(err)
		logChatError(r, err, status, resp)
		h.metrics.RecordError(r.Context(), resp.Type)
		enc.EncodeError(resp.Error)
	}
}

func (h *ChatHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	_, resp := ClassifyChatError(err)
	h.metrics.RecordError(r.Context(), resp.Type)
	handleChatError(w, r, err)
}

// turn streams one conversation turn. begin runs once, right before the first
// chunk is emitted (or at the end of an empty stream); started reports
// whether it ran.
func (h *ChatHandler) turn(ctx context.Context, messages []models.Message, begin func() error, emit func(stream.Chunk) error) (started bool, err error) {
	for c, err := range h.provider.Stream(ctx, messages) {
		if err != nil {
			return started, err
		}
		if !started {
			if err := begin(); err != nil {
				return false, fmt.Errorf("%w: %v", errClientWrite, err)
			}
			started = true
		}
		if c.Kind == stream.KindToolCall {
			h.metrics.RecordToolCall(ctx, c.ToolName)
		}
		if err := emit(c); err != nil {
			return true, fmt.Errorf("%w: %v", errClientWrite, err)
		}
	}
	if !started {
		if err := begin(); err != nil {
			return false, fmt.Errorf("%w: %v", errClientWrite, err)
		}
		started = true
	}
	return started, nil
}
