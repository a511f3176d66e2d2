package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

// Data stream part codes.
const (
	codeText       = '0'
	codeError      = '3'
	codeToolCall   = '9'
	codeToolResult = 'a'
	codeFinishMsg  = 'd'
	codeFinishStep = 'e'
	codeStartStep  = 'f'
)

// HeaderName marks a response body as a data stream.
const (
	HeaderName  = "X-Vercel-AI-Data-Stream"
	HeaderValue = "v1"
	ContentType = "text/plain; charset=utf-8"
)

// StreamError is an error part received inside an otherwise successful stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

type toolCallPart struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

type toolResultPart struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type finishPart struct {
	FinishReason string `json:"finishReason"`
	Usage        *Usage `json:"usage,omitempty"`
	IsContinued  *bool  `json:"isContinued,omitempty"`
}

// Encoder writes chunks as data stream lines, flushing after each one when
// the underlying writer supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f}
}

// SetHeaders prepares an HTTP response to carry a data stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set(HeaderName, HeaderValue)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
}

// Start writes the step-start part carrying the assistant message id.
func (e *Encoder) Start(messageID string) error {
	return e.write(codeStartStep, map[string]string{"messageId": messageID})
}

func (e *Encoder) Encode(c Chunk) error {
	switch c.Kind {
	case KindText:
		return e.write(codeText, c.Text)
	case KindToolCall:
		return e.write(codeToolCall, toolCallPart{ToolCallID: c.ToolCallID, ToolName: c.ToolName, Args: nonNilArgs(c.Args)})
	case KindToolResult:
		return e.write(codeToolResult, toolResultPart{ToolCallID: c.ToolCallID, Result: c.Result})
	case KindFinish:
		continued := false
		if err := e.write(codeFinishStep, finishPart{FinishReason: c.FinishReason, Usage: c.Usage, IsContinued: &continued}); err != nil {
			return err
		}
		return e.write(codeFinishMsg, finishPart{FinishReason: c.FinishReason, Usage: c.Usage})
	default:
		return fmt.Errorf("unknown chunk kind %q", c.Kind)
	}
}

// EncodeError writes an error part. Used once headers are committed and a
// JSON error body is no longer possible.
func (e *Encoder) EncodeError(message string) error {
	return e.write(codeError, message)
}

func (e *Encoder) write(code byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode stream part: %w", err)
	}
	line := make([]byte, 0, len(data)+3)
	line = append(line, code, ':')
	line = append(line, data...)
	line = append(line, '\n')
	if _, err := e.w.Write(line); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

func nonNilArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

// MaxLineBytes bounds a single data stream line accepted by the Decoder.
const MaxLineBytes = 4 << 20

// Decoder reads data stream lines back into chunks.
type Decoder struct {
	sc        *bufio.Scanner
	MessageID string

	// tool names by call id, so results can be attributed
	calls map[string]toolCallPart
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), MaxLineBytes)
	return &Decoder{sc: sc, calls: make(map[string]toolCallPart)}
}

// Next returns the next chunk. It returns io.EOF at the end of the stream and
// a *StreamError when the server sent an error part. Lines longer than
// MaxLineBytes fail with bufio.ErrTooLong.
func (d *Decoder) Next() (Chunk, error) {
	for {
		if !d.sc.Scan() {
			if err := d.sc.Err(); err != nil {
				return Chunk{}, err
			}
			return Chunk{}, io.EOF
		}
		line := strings.TrimRight(d.sc.Text(), "\r")
		if line == "" {
			continue
		}
		if len(line) < 2 || line[1] != ':' {
			return Chunk{}, fmt.Errorf("malformed stream line %q", line)
		}
		payload := []byte(line[2:])

		switch line[0] {
		case codeText:
			var text string
			if err := json.Unmarshal(payload, &text); err != nil {
				return Chunk{}, fmt.Errorf("invalid text part: %w", err)
			}
			return Text(text), nil
		case codeToolCall:
			var p toolCallPart
			if err := json.Unmarshal(payload, &p); err != nil {
				return Chunk{}, fmt.Errorf("invalid tool call part: %w", err)
			}
			d.calls[p.ToolCallID] = p
			return ToolCall(p.ToolCallID, p.ToolName, p.Args), nil
		case codeToolResult:
			var p toolResultPart
			if err := json.Unmarshal(payload, &p); err != nil {
				return Chunk{}, fmt.Errorf("invalid tool result part: %w", err)
			}
			call := d.calls[p.ToolCallID]
			return ToolResult(p.ToolCallID, call.ToolName, call.Args, p.Result), nil
		case codeFinishMsg:
			var p finishPart
			if err := json.Unmarshal(payload, &p); err != nil {
				return Chunk{}, fmt.Errorf("invalid finish part: %w", err)
			}
			return Finish(p.FinishReason, p.Usage), nil
		case codeError:
			var msg string
			if err := json.Unmarshal(payload, &msg); err != nil {
				msg = string(payload)
			}
			return Chunk{}, &StreamError{Message: msg}
		case codeStartStep:
			var p struct {
				MessageID string `json:"messageId"`
			}
			if json.Unmarshal(payload, &p) == nil && d.MessageID == "" {
				d.MessageID = p.MessageID
			}
		case codeFinishStep:
			// step boundaries carry nothing the caller renders
		default:
			// unknown parts are skipped for forward compatibility
		}
	}
}

// Chunks adapts the decoder to a range-over-func sequence. Iteration stops at
// the end of the stream or after the first error is yielded.
func (d *Decoder) Chunks() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			c, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}
