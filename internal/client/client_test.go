package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/stream"
)

func TestClient_StreamDecodesChunks(t *testing.T) {
	var got models.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		stream.SetHeaders(w.Header())
		enc := stream.NewEncoder(w)
		enc.Start("msg-1")
		enc.Encode(stream.ToolCall("c1", "weather", map[string]any{"location": "Paris"}))
		enc.Encode(stream.ToolResult("c1", "weather", nil, map[string]any{"temperature": 60.0}))
		enc.Encode(stream.Text("Mild in Paris."))
		enc.Encode(stream.Finish("stop", nil))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	var chunks []stream.Chunk
	for chunk, err := range c.Stream(context.Background(), []models.Message{models.NewTextMessage(models.RoleUser, "weather?")}) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	require.Len(t, got.Messages, 1)
	assert.Equal(t, "weather?", got.Messages[0].Text())
	require.Len(t, chunks, 4)
	assert.Equal(t, stream.KindToolCall, chunks[0].Kind)
	assert.Equal(t, "weather", chunks[1].ToolName)
	assert.Equal(t, "Mild in Paris.", chunks[2].Text)
	assert.Equal(t, "stop", chunks[3].FinishReason)
}

func TestClient_StreamReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(models.ChatErrorResponse{Error: "API quota exceeded", Type: models.ErrQuotaExceeded})
	}))
	defer srv.Close()

	var gotErr error
	for _, err := range New(srv.URL).Stream(context.Background(), nil) {
		gotErr = err
	}

	var apiErr *APIError
	require.True(t, errors.As(gotErr, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, models.ErrQuotaExceeded, apiErr.Body.Type)
	assert.Equal(t, "API quota exceeded", apiErr.Error())
}

func TestClient_StreamReturnsPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	var gotErr error
	for _, err := range New(srv.URL).Stream(context.Background(), nil) {
		gotErr = err
	}
	require.Error(t, gotErr)
	assert.Equal(t, "bad gateway", gotErr.Error())
}

func TestClient_StreamSurfacesMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := stream.NewEncoder(w)
		enc.Start("msg-1")
		enc.Encode(stream.Text("partial"))
		enc.EncodeError("An error occurred")
	}))
	defer srv.Close()

	var texts []string
	var gotErr error
	for chunk, err := range New(srv.URL).Stream(context.Background(), nil) {
		if err != nil {
			gotErr = err
			break
		}
		texts = append(texts, chunk.Text)
	}

	assert.Equal(t, []string{"partial"}, texts)
	var se *stream.StreamError
	require.True(t, errors.As(gotErr, &se))
	assert.Equal(t, "An error occurred", se.Message)
}
