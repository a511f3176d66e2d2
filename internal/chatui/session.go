// Package chatui holds the client-side state of a chat conversation: the
// draft, the message history, the submit cooldown and the error banner.
// Front ends render it and forward user actions to it.
package chatui

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/stream"
)

const (
	CooldownSeconds = 3
	TypingDuration  = time.Second

	refreshInterval = 100 * time.Millisecond
)

var ErrMessageNotFound = errors.New("message not found")

// Transport sends the conversation and streams back the assistant reply.
type Transport interface {
	Stream(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error]
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a transient notification, shown once.
type Notice struct {
	Level Level
	Text  string
}

type Notifier interface {
	Notify(Notice)
}

type Clipboard interface {
	WriteAll(text string) error
}

type Option func(*Session)

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithOnChange registers a callback fired after every state change. It runs
// without the session lock held.
func WithOnChange(fn func()) Option {
	return func(s *Session) { s.onChange = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type Session struct {
	transport Transport
	notifier  Notifier
	onChange  func()
	now       func() time.Time

	mu          sync.Mutex
	draft       string
	messages    []models.Message
	loading     bool
	cooldownEnd time.Time
	typingUntil time.Time
	err         *UIError
	gen         int
	cancel      context.CancelFunc
}

func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{transport: transport, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
	s.changed()
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Submit sends the draft as a new user message and blocks until the reply has
// streamed. It reports false without changing anything when the draft is
// blank, a cooldown is running, or a request is already in flight.
func (s *Session) Submit(ctx context.Context) bool {
	s.mu.Lock()
	if strings.TrimSpace(s.draft) == "" || s.cooldownLocked() > 0 || s.loading {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, models.NewTextMessage(models.RoleUser, s.draft))
	s.draft = ""
	s.cooldownEnd = s.now().Add(CooldownSeconds * time.Second)
	ctx, gen := s.beginLocked(ctx)
	history := cloneMessages(s.messages)
	s.mu.Unlock()

	s.changed()
	s.send(ctx, gen, history)
	return true
}

// Retry re-sends the conversation up to the last user message, dropping any
// assistant reply that followed it.
func (s *Session) Retry(ctx context.Context) bool {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return false
	}
	last := len(s.messages) - 1
	for last >= 0 && s.messages[last].Role != models.RoleUser {
		last--
	}
	if last < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = s.messages[:last+1]
	ctx, gen := s.beginLocked(ctx)
	history := cloneMessages(s.messages)
	s.mu.Unlock()

	s.changed()
	s.send(ctx, gen, history)
	return true
}

// Clear resets the session to its initial state and abandons any request in
// flight.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.draft = ""
	s.messages = nil
	s.loading = false
	s.cooldownEnd = time.Time{}
	s.typingUntil = time.Time{}
	s.err = nil
	s.mu.Unlock()
	s.changed()
}

// Copy writes the text of a message to the clipboard and reports the outcome
// through the notifier.
func (s *Session) Copy(messageID string, cb Clipboard) error {
	s.mu.Lock()
	var (
		text  string
		found bool
	)
	for _, m := range s.messages {
		if m.ID == messageID {
			text, found = m.Text(), true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		s.notify(Notice{Level: LevelError, Text: "Failed to copy"})
		return ErrMessageNotFound
	}
	if err := cb.WriteAll(text); err != nil {
		s.notify(Notice{Level: LevelError, Text: "Failed to copy"})
		return err
	}
	s.notify(Notice{Level: LevelSuccess, Text: "Copied to clipboard"})
	return nil
}

// Run fires the change callback each time the displayed cooldown drops by
// a second, until ctx is cancelled. The countdown itself is measured from
// the submit, so Run only affects rendering.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	last := s.Cooldown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cd := s.Cooldown(); cd != last {
				last = cd
				s.changed()
			}
		}
	}
}

func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.typingUntil)
}

// Cooldown returns the whole seconds left before another submit is
// accepted, rounded up. It reaches 0 exactly CooldownSeconds after a submit.
func (s *Session) Cooldown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldownLocked()
}

func (s *Session) cooldownLocked() int {
	left := s.cooldownEnd.Sub(s.now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Err() *UIError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

func (s *Session) beginLocked(parent context.Context) (context.Context, int) {
	ctx, cancel := context.WithCancel(parent)
	s.gen++
	s.cancel = cancel
	s.loading = true
	s.err = nil
	s.typingUntil = s.now().Add(TypingDuration)
	return ctx, s.gen
}

func (s *Session) send(ctx context.Context, gen int, history []models.Message) {
	var (
		started bool
		failure error
	)
	for chunk, err := range s.transport.Stream(ctx, history) {
		if err != nil {
			failure = err
			break
		}
		if chunk.Kind == stream.KindFinish {
			continue
		}
		if !s.apply(gen, &started, chunk) {
			return
		}
		s.changed()
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.loading = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if failure != nil {
		s.err = newUIError(failure)
	}
	uiErr := s.err
	s.mu.Unlock()

	if uiErr != nil {
		s.notify(Notice{Level: LevelError, Text: uiErr.Message})
	}
	s.changed()
}

// apply folds a chunk into the streaming assistant message. It reports false
// once the turn has been superseded.
func (s *Session) apply(gen int, started *bool, c stream.Chunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	if !*started {
		s.messages = append(s.messages, models.Message{ID: uuid.NewString(), Role: models.RoleAssistant})
		*started = true
	}
	msg := &s.messages[len(s.messages)-1]

	switch c.Kind {
	case stream.KindText:
		if n := len(msg.Parts); n > 0 && msg.Parts[n-1].Type == models.PartText {
			msg.Parts[n-1].Text += c.Text
		} else {
			msg.Parts = append(msg.Parts, models.Part{Type: models.PartText, Text: c.Text})
		}
		msg.Content += c.Text
	case stream.KindToolCall:
		msg.Parts = append(msg.Parts, models.Part{
			Type: models.PartToolInvocation,
			ToolInvocation: &models.ToolInvocation{
				State:      models.ToolStateCall,
				ToolCallID: c.ToolCallID,
				ToolName:   c.ToolName,
				Args:       c.Args,
			},
		})
	case stream.KindToolResult:
		for i := range msg.Parts {
			inv := msg.Parts[i].ToolInvocation
			if inv != nil && inv.ToolCallID == c.ToolCallID {
				inv.State = models.ToolStateResult
				inv.Result = c.Result
				return true
			}
		}
		msg.Parts = append(msg.Parts, models.Part{
			Type: models.PartToolInvocation,
			ToolInvocation: &models.ToolInvocation{
				State:      models.ToolStateResult,
				ToolCallID: c.ToolCallID,
				ToolName:   c.ToolName,
				Args:       c.Args,
				Result:     c.Result,
			},
		})
	}
	return true
}

func (s *Session) notify(n Notice) {
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func cloneMessages(in []models.Message) []models.Message {
	if in == nil {
		return nil
	}
	out := make([]models.Message, len(in))
	for i, m := range in {
		out[i] = m
		if m.Parts != nil {
			out[i].Parts = make([]models.Part, len(m.Parts))
			for j, p := range m.Parts {
				out[i].Parts[j] = p
				if p.ToolInvocation != nil {
					inv := *p.ToolInvocation
					out[i].Parts[j].ToolInvocation = &inv
				}
			}
		}
	}
	return out
}
