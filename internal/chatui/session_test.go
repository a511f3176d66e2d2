package chatui

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/stream"
)

type fakeTransport struct {
	mu      sync.Mutex
	chunks  []stream.Chunk
	err     error
	block   chan struct{}
	calls   int
	history [][]models.Message
}

func (f *fakeTransport) Stream(ctx context.Context, messages []models.Message) iter.Seq2[stream.Chunk, error] {
	f.mu.Lock()
	f.calls++
	f.history = append(f.history, messages)
	chunks, failure, block := f.chunks, f.err, f.block
	f.mu.Unlock()

	return func(yield func(stream.Chunk, error) bool) {
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				yield(stream.Chunk{}, ctx.Err())
				return
			}
		}
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if failure != nil {
			yield(stream.Chunk{}, failure)
		}
	}
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) WriteAll(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

func TestSession_SubmitStreamsReply(t *testing.T) {
	tr := &fakeTransport{chunks: []stream.Chunk{
		stream.ToolCall("c1", "calculator", map[string]any{"expression": "15 * 24"}),
		stream.ToolResult("c1", "calculator", nil, map[string]any{"result": 360.0}),
		stream.Text("15 * 24 "),
		stream.Text("= 360"),
		stream.Finish("stop", nil),
	}}
	s := NewSession(tr)
	s.SetDraft("What is 15 * 24?")

	require.True(t, s.Submit(context.Background()))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is 15 * 24?", msgs[0].Text())

	reply := msgs[1]
	assert.Equal(t, models.RoleAssistant, reply.Role)
	require.Len(t, reply.Parts, 2)
	inv := reply.Parts[0].ToolInvocation
	require.NotNil(t, inv)
	assert.Equal(t, models.ToolStateResult, inv.State)
	assert.Equal(t, map[string]any{"result": 360.0}, inv.Result)
	assert.Equal(t, "15 * 24 = 360", reply.Text())

	assert.Empty(t, s.Draft())
	assert.False(t, s.Loading())
	assert.Nil(t, s.Err())
}

func TestSession_SubmitIgnoredDuringCooldown(t *testing.T) {
	clock := newFakeClock()
	tr := &fakeTransport{chunks: []stream.Chunk{stream.Text("hi")}}
	s := NewSession(tr, WithClock(clock.Now))

	s.SetDraft("first")
	require.True(t, s.Submit(context.Background()))
	assert.Equal(t, CooldownSeconds, s.Cooldown())

	s.SetDraft("second")
	assert.False(t, s.Submit(context.Background()))
	assert.Equal(t, "second", s.Draft())
	assert.Equal(t, 1, tr.callCount())
	assert.Len(t, s.Messages(), 2)

	clock.Advance(time.Second)
	assert.Equal(t, 2, s.Cooldown())
	clock.Advance(time.Second)
	assert.Equal(t, 1, s.Cooldown())
	clock.Advance(time.Second - time.Millisecond)
	assert.Equal(t, 1, s.Cooldown())
	assert.False(t, s.Submit(context.Background()))

	clock.Advance(time.Millisecond)
	assert.Equal(t, 0, s.Cooldown())
	assert.True(t, s.Submit(context.Background()))
	assert.Equal(t, 2, tr.callCount())
}

func TestSession_SubmitIgnoresBlankDraft(t *testing.T) {
	tr := &fakeTransport{}
	s := NewSession(tr)
	s.SetDraft("   ")

	assert.False(t, s.Submit(context.Background()))
	assert.Equal(t, 0, tr.callCount())
	assert.Equal(t, 0, s.Cooldown())
	assert.Empty(t, s.Messages())
}

func TestSession_SubmitIgnoredWhileLoading(t *testing.T) {
	clock := newFakeClock()
	tr := &fakeTransport{block: make(chan struct{}), chunks: []stream.Chunk{stream.Text("ok")}}
	s := NewSession(tr, WithClock(clock.Now))
	s.SetDraft("first")

	done := make(chan bool)
	go func() { done <- s.Submit(context.Background()) }()
	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)

	clock.Advance(CooldownSeconds * time.Second)
	require.Equal(t, 0, s.Cooldown())
	s.SetDraft("second")
	assert.False(t, s.Submit(context.Background()))
	assert.False(t, s.Retry(context.Background()))

	close(tr.block)
	assert.True(t, <-done)
	assert.Equal(t, 1, tr.callCount())
}

func TestSession_TypingIndicator(t *testing.T) {
	clock := newFakeClock()
	s := NewSession(&fakeTransport{}, WithClock(clock.Now))
	assert.False(t, s.Typing())

	s.SetDraft("hi")
	s.Submit(context.Background())
	assert.True(t, s.Typing())

	clock.Advance(TypingDuration)
	assert.False(t, s.Typing())
}

func TestSession_ErrorClassifiedAndNotified(t *testing.T) {
	n := &recordingNotifier{}
	tr := &fakeTransport{err: errors.New("API Quota exceeded. Please try again later.")}
	s := NewSession(tr, WithNotifier(n))
	s.SetDraft("hi")

	require.True(t, s.Submit(context.Background()))

	uiErr := s.Err()
	require.NotNil(t, uiErr)
	assert.Equal(t, KindQuota, uiErr.Kind)
	assert.Equal(t, Notice{Level: LevelError, Text: KindQuota.Message()}, n.last())
	assert.False(t, s.Loading())
}

func TestSession_RetryResendsLastUserMessage(t *testing.T) {
	tr := &fakeTransport{chunks: []stream.Chunk{stream.Text("partial")}, err: errors.New("boom")}
	s := NewSession(tr)
	s.SetDraft("hi")
	require.True(t, s.Submit(context.Background()))
	require.NotNil(t, s.Err())
	require.Len(t, s.Messages(), 2)

	tr.mu.Lock()
	tr.chunks, tr.err = []stream.Chunk{stream.Text("done")}, nil
	tr.mu.Unlock()

	require.True(t, s.Retry(context.Background()))
	assert.Nil(t, s.Err())

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "done", msgs[1].Text())

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.history, 2)
	require.Len(t, tr.history[1], 1)
	assert.Equal(t, "hi", tr.history[1][0].Text())
}

func TestSession_RetryWithoutHistory(t *testing.T) {
	tr := &fakeTransport{}
	s := NewSession(tr)
	assert.False(t, s.Retry(context.Background()))
	assert.Equal(t, 0, tr.callCount())
}

func TestSession_Clear(t *testing.T) {
	s := NewSession(&fakeTransport{err: errors.New("rate limit")})
	s.SetDraft("hi")
	s.Submit(context.Background())
	require.NotNil(t, s.Err())

	s.Clear()

	assert.Empty(t, s.Messages())
	assert.Nil(t, s.Err())
	assert.Equal(t, 0, s.Cooldown())
	assert.Empty(t, s.Draft())
}

func TestSession_ClearAbandonsInFlightRequest(t *testing.T) {
	tr := &fakeTransport{block: make(chan struct{}), chunks: []stream.Chunk{stream.Text("late")}}
	s := NewSession(tr)
	s.SetDraft("hi")

	done := make(chan struct{})
	go func() {
		s.Submit(context.Background())
		close(done)
	}()
	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)

	s.Clear()
	<-done

	assert.Empty(t, s.Messages())
	assert.False(t, s.Loading())
	assert.Nil(t, s.Err())
}

func TestSession_Copy(t *testing.T) {
	n := &recordingNotifier{}
	s := NewSession(&fakeTransport{chunks: []stream.Chunk{stream.Text("copy me")}}, WithNotifier(n))
	s.SetDraft("hi")
	s.Submit(context.Background())
	reply := s.Messages()[1]

	cb := &fakeClipboard{}
	require.NoError(t, s.Copy(reply.ID, cb))
	assert.Equal(t, "copy me", cb.text)
	assert.Equal(t, LevelSuccess, n.last().Level)

	failing := &fakeClipboard{err: errors.New("no clipboard")}
	assert.Error(t, s.Copy(reply.ID, failing))
	assert.Equal(t, Notice{Level: LevelError, Text: "Failed to copy"}, n.last())

	assert.ErrorIs(t, s.Copy("missing", cb), ErrMessageNotFound)
}

func TestSession_MessagesIsSnapshot(t *testing.T) {
	s := NewSession(&fakeTransport{chunks: []stream.Chunk{
		stream.ToolCall("c1", "currentTime", nil),
		stream.ToolResult("c1", "currentTime", nil, map[string]any{"timezone": "UTC"}),
	}})
	s.SetDraft("time?")
	s.Submit(context.Background())

	snap := s.Messages()
	snap[1].Parts[0].ToolInvocation.ToolName = "changed"
	assert.Equal(t, "currentTime", s.Messages()[1].Parts[0].ToolInvocation.ToolName)
}

func TestSession_CooldownMeasuredFromSubmit(t *testing.T) {
	var mu sync.Mutex
	changes := 0
	s := NewSession(&fakeTransport{}, WithOnChange(func() {
		mu.Lock()
		changes++
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Submit part-way through a second of the refresh loop.
	time.Sleep(1200 * time.Millisecond)

	start := time.Now()
	s.SetDraft("hi")
	require.True(t, s.Submit(context.Background()))

	require.Eventually(t, func() bool { return s.Cooldown() == 0 }, 5*time.Second, 10*time.Millisecond)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, CooldownSeconds*time.Second)
	assert.Less(t, elapsed, CooldownSeconds*time.Second+500*time.Millisecond)

	s.SetDraft("again")
	assert.True(t, s.Submit(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, changes, CooldownSeconds)
}
