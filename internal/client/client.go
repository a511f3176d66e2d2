// Package client talks to the chat endpoint over HTTP and decodes the data
// stream it returns.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/stream"
)

// APIError is returned when the endpoint answers with a non-2xx status.
type APIError struct {
	Status int
	Body   models.ChatErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Error != "" {
		return e.Body.Error
	}
	return fmt.Sprintf("chat request failed with status %d", e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream posts the conversation and yields chunks as they arrive. Iteration
// ends after the first error.
func (c *Client) Stream(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		body, err := json.Marshal(models.ChatRequest{Messages: messages})
		if err != nil {
			yield(stream.Chunk{}, fmt.Errorf("failed to encode request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat", bytes.NewReader(body))
		if err != nil {
			yield(stream.Chunk{}, fmt.Errorf("failed to build request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			yield(stream.Chunk{}, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			yield(stream.Chunk{}, decodeAPIError(resp))
			return
		}

		for chunk, err := range stream.NewDecoder(resp.Body).Chunks() {
			if !yield(chunk, err) {
				return
			}
		}
	}
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &apiErr.Body); err != nil {
		apiErr.Body.Error = strings.TrimSpace(string(data))
	}
	return apiErr
}
