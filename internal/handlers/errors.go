package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/services"
)

const (
	msgQuotaExceeded = "API quota exceeded. Please check your plan and billing details, or try again later."
	msgRateLimit     = "Too many requests: rate limit reached. Please wait a moment before trying again."
	msgAuth          = "Authentication failed. Please check that your API key is valid."
	msgGeneric       = "An error occurred while processing your request."
)

// ClassifyChatError maps a chat failure to a status code and error body.
// Upstream errors are matched in order on their message text and status:
// quota, rate limit, authentication, then a generic fallback.
func ClassifyChatError(err error) (int, models.ChatErrorResponse) {
	if errors.Is(err, services.ErrProviderNotConfigured) {
		return http.StatusInternalServerError, models.ChatErrorResponse{
			Error: err.Error(),
			Type:  models.ErrConfigMissing,
		}
	}

	msg := err.Error()
	status := services.StatusOf(err)

	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "exceeded"):
		return http.StatusTooManyRequests, models.ChatErrorResponse{Error: msgQuotaExceeded, Type: models.ErrQuotaExceeded}
	case strings.Contains(msg, "rate limit") || status == http.StatusTooManyRequests:
		return http.StatusTooManyRequests, models.ChatErrorResponse{Error: msgRateLimit, Type: models.ErrRateLimit}
	case strings.Contains(msg, "authentication") || status == http.StatusUnauthorized:
		return http.StatusUnauthorized, models.ChatErrorResponse{Error: msgAuth, Type: models.ErrAuth}
	}

	details := msg
	if details == "" {
		details = "unknown error"
	}
	return http.StatusInternalServerError, models.ChatErrorResponse{
		Error:   msgGeneric,
		Type:    models.ErrGeneric,
		Details: details,
	}
}

// logChatError records a classified failure for operators.
func logChatError(r *http.Request, err error, status int, resp models.ChatErrorResponse) {
	slog.Error("chat request failed",
		"type", resp.Type,
		"status", status,
		"request_id", chimiddleware.GetReqID(r.Context()),
		"error", err,
	)
}

func handleChatError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ClassifyChatError(err)
	logChatError(r, err, status, resp)
	writeJSON(w, status, resp)
}
