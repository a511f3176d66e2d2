package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/stream"
	"toolchat-backend/internal/tools"
)

type GeminiOptions struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	MaxSteps        int
	ConcurrentReqs  int
}

// responseIterator is the part of *genai.GenerateContentResponseIterator the
// tool loop consumes.
type responseIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

// chatSession sends one model turn and streams its responses. The session
// keeps the accumulated history between turns.
type chatSession interface {
	SendMessageStream(ctx context.Context, parts ...genai.Part) responseIterator
}

type genaiChat struct {
	cs *genai.ChatSession
}

func (c genaiChat) SendMessageStream(ctx context.Context, parts ...genai.Part) responseIterator {
	return c.cs.SendMessageStream(ctx, parts...)
}

type GeminiService struct {
	client    *genai.Client
	opts      GeminiOptions
	tools     *tools.Registry
	decls     []*genai.FunctionDeclaration
	rateChan  chan struct{} // Token bucket
	startChat func(system *genai.Content, history []*genai.Content) chatSession
}

func NewGeminiService(ctx context.Context, apiKey string, registry *tools.Registry, opts GeminiOptions) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	s := newGeminiService(registry, opts, nil)
	s.client = client
	s.startChat = func(system *genai.Content, history []*genai.Content) chatSession {
		cs := s.newModel(system).StartChat()
		cs.History = history
		return genaiChat{cs: cs}
	}
	return s, nil
}

func newGeminiService(registry *tools.Registry, opts GeminiOptions, startChat func(*genai.Content, []*genai.Content) chatSession) *GeminiService {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 1
	}
	if opts.ConcurrentReqs <= 0 {
		opts.ConcurrentReqs = 1
	}

	// Token bucket for upstream concurrency
	rateChan := make(chan struct{}, opts.ConcurrentReqs)
	for i := 0; i < opts.ConcurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		opts:      opts,
		tools:     registry,
		decls:     functionDeclarations(registry),
		rateChan:  rateChan,
		startChat: startChat,
	}
}

func (s *GeminiService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// newModel builds a per-request model so the system instruction never leaks
// between concurrent requests.
func (s *GeminiService) newModel(system *genai.Content) *genai.GenerativeModel {
	model := s.client.GenerativeModel(s.opts.Model)
	model.SetTemperature(float32(s.opts.Temperature))
	model.SetMaxOutputTokens(int32(s.opts.MaxOutputTokens))
	model.SystemInstruction = system
	if len(s.decls) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: s.decls}}
	}
	return model
}

// Stream runs the conversation through Gemini, executing requested tools
// between model round-trips, and yields text, tool and finish chunks.
func (s *GeminiService) Stream(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		system, history, last, err := toGeminiContents(messages)
		if err != nil {
			yield(stream.Chunk{}, err)
			return
		}

		if err := s.acquireRate(ctx); err != nil {
			yield(stream.Chunk{}, err)
			return
		}
		defer s.releaseRate()

		cs := s.startChat(system, history)

		var usage stream.Usage
		finishReason := "stop"
		parts := last

		for step := 0; step < s.opts.MaxSteps; step++ {
			it := cs.SendMessageStream(ctx, parts...)

			var calls []genai.FunctionCall
			var stepUsage *genai.UsageMetadata
			var reason genai.FinishReason

			for {
				resp, err := it.Next()
				if errors.Is(err, iterator.Done) {
					break
				}
				if err != nil {
					yield(stream.Chunk{}, wrapProviderError(err))
					return
				}
				if resp.UsageMetadata != nil {
					stepUsage = resp.UsageMetadata
				}
				for _, cand := range resp.Candidates {
					if cand.FinishReason != genai.FinishReasonUnspecified {
						reason = cand.FinishReason
					}
					if cand.Content == nil {
						continue
					}
					for _, part := range cand.Content.Parts {
						switch p := part.(type) {
						case genai.Text:
							if p == "" {
								continue
							}
							if !yield(stream.Text(string(p)), nil) {
								return
							}
						case genai.FunctionCall:
							calls = append(calls, p)
						}
					}
				}
			}

			if stepUsage != nil {
				usage.PromptTokens += int(stepUsage.PromptTokenCount)
				usage.CompletionTokens += int(stepUsage.CandidatesTokenCount)
			}

			if len(calls) == 0 {
				finishReason = mapFinishReason(reason)
				break
			}

			parts = parts[:0:0]
			for _, call := range calls {
				id := "call_" + uuid.NewString()
				if !yield(stream.ToolCall(id, call.Name, call.Args), nil) {
					return
				}
				result := s.tools.Execute(ctx, call.Name, call.Args)
				slog.Debug("tool executed", "tool", call.Name, "tool_call_id", id)
				if !yield(stream.ToolResult(id, call.Name, call.Args, result), nil) {
					return
				}
				parts = append(parts, genai.FunctionResponse{Name: call.Name, Response: result})
			}
			finishReason = "tool-calls"
		}

		yield(stream.Finish(finishReason, &usage), nil)
	}
}

// Helper functions

func functionDeclarations(registry *tools.Registry) []*genai.FunctionDeclaration {
	if registry == nil {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range registry.List() {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
		}
		if params := t.Parameters(); params != nil && len(params.Properties) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(params.Properties)),
				Required:   params.Required,
			}
			for name, prop := range params.Properties {
				schema.Properties[name] = &genai.Schema{
					Type:        schemaType(prop.Type),
					Description: prop.Description,
				}
			}
			decl.Parameters = schema
		}
		decls = append(decls, decl)
	}
	return decls
}

func schemaType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// toGeminiContents splits a conversation into the system instruction, the
// prior history and the parts of the final user turn.
func toGeminiContents(messages []models.Message) (*genai.Content, []*genai.Content, []genai.Part, error) {
	if err := ValidateConversation(messages); err != nil {
		return nil, nil, nil, err
	}

	var system []string
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			if text := m.Text(); strings.TrimSpace(text) != "" {
				system = append(system, text)
			}
		case models.RoleUser:
			if text := m.Text(); text != "" {
				contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(text)}})
			}
		case models.RoleAssistant:
			contents = append(contents, assistantContents(m)...)
		}
	}

	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return nil, nil, nil, ErrInvalidConversation
	}

	var systemContent *genai.Content
	if len(system) > 0 {
		systemContent = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}

	last := contents[len(contents)-1]
	return systemContent, contents[:len(contents)-1], last.Parts, nil
}

// assistantContents replays an assistant message as model turns, with every
// completed tool invocation followed by its function response.
func assistantContents(m models.Message) []*genai.Content {
	if len(m.Parts) == 0 {
		if m.Content == "" {
			return nil
		}
		return []*genai.Content{{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}}}
	}

	var out []*genai.Content
	cur := &genai.Content{Role: "model"}
	var responses []genai.Part

	flush := func() {
		if len(cur.Parts) > 0 {
			out = append(out, cur)
		}
		if len(responses) > 0 {
			out = append(out, &genai.Content{Role: "user", Parts: responses})
		}
		cur = &genai.Content{Role: "model"}
		responses = nil
	}

	for _, p := range m.Parts {
		switch p.Type {
		case models.PartText:
			if p.Text == "" {
				continue
			}
			if len(responses) > 0 {
				flush()
			}
			cur.Parts = append(cur.Parts, genai.Text(p.Text))
		case models.PartToolInvocation:
			inv := p.ToolInvocation
			if inv == nil || inv.State != models.ToolStateResult {
				continue
			}
			cur.Parts = append(cur.Parts, genai.FunctionCall{Name: inv.ToolName, Args: inv.Args})
			responses = append(responses, genai.FunctionResponse{Name: inv.ToolName, Response: resultMap(inv.Result)})
		}
	}
	flush()
	return out
}

func resultMap(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": result}
}

func mapFinishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "content-filter"
	default:
		return "other"
	}
}

// wrapProviderError attaches the upstream HTTP status, when one can be
// recovered from the SDK error, so callers never need SDK types.
func wrapProviderError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var aerr *apierror.APIError
	var gerr *googleapi.Error
	switch {
	case errors.As(err, &aerr):
		status = aerr.HTTPCode()
		if status <= 0 {
			status = grpcToHTTP(aerr.GRPCStatus().Code())
		}
	case errors.As(err, &gerr):
		status = gerr.Code
	}
	return &ProviderError{Status: status, Err: err}
}

func grpcToHTTP(code codes.Code) int {
	switch code {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return 0
	}
}
