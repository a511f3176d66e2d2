package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_WritesDataStreamLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Start("msg-1"))
	require.NoError(t, enc.Encode(Text("Hello\n")))
	require.NoError(t, enc.Encode(ToolCall("call-1", "calculator", map[string]any{"expression": "15 * 24"})))
	require.NoError(t, enc.Encode(ToolResult("call-1", "calculator", nil, map[string]any{"result": 360})))
	require.NoError(t, enc.Encode(Finish("stop", &Usage{PromptTokens: 3, CompletionTokens: 5})))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, `f:{"messageId":"msg-1"}`, lines[0])
	assert.Equal(t, `0:"Hello\n"`, lines[1])
	assert.Equal(t, `9:{"toolCallId":"call-1","toolName":"calculator","args":{"expression":"15 * 24"}}`, lines[2])
	assert.Equal(t, `a:{"toolCallId":"call-1","result":{"result":360}}`, lines[3])
	assert.Equal(t, `e:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":5},"isContinued":false}`, lines[4])
	assert.Equal(t, `d:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":5}}`, lines[5])
}

func TestEncoder_ToolCallWithoutArgsEncodesEmptyObject(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(ToolCall("c", "currentTime", nil)))
	assert.Equal(t, "9:{\"toolCallId\":\"c\",\"toolName\":\"currentTime\",\"args\":{}}\n", buf.String())
}

func TestEncoder_FlushesRecorder(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, NewEncoder(rr).Encode(Text("x")))
	assert.True(t, rr.Flushed)
}

func TestDecoder_ReadsEncodedStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Start("msg-2"))
	require.NoError(t, enc.Encode(Text("It is ")))
	require.NoError(t, enc.Encode(ToolCall("t1", "weather", map[string]any{"location": "Paris"})))
	require.NoError(t, enc.Encode(ToolResult("t1", "weather", nil, map[string]any{"temperature": 50})))
	require.NoError(t, enc.Encode(Finish("stop", nil)))

	dec := NewDecoder(&buf)
	var got []Chunk
	for c, err := range dec.Chunks() {
		require.NoError(t, err)
		got = append(got, c)
	}

	require.Len(t, got, 4)
	assert.Equal(t, "msg-2", dec.MessageID)
	assert.Equal(t, Text("It is "), got[0])
	assert.Equal(t, KindToolCall, got[1].Kind)
	assert.Equal(t, "Paris", got[1].Args["location"])
	assert.Equal(t, KindToolResult, got[2].Kind)
	assert.Equal(t, "weather", got[2].ToolName, "result should be attributed to its call")
	assert.Equal(t, float64(50), got[2].Result.(map[string]any)["temperature"])
	assert.Equal(t, "stop", got[3].FinishReason)
}

func TestDecoder_ErrorPart(t *testing.T) {
	dec := NewDecoder(strings.NewReader("0:\"partial\"\n3:\"quota exceeded\"\n"))

	c, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", c.Text)

	_, err = dec.Next()
	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "quota exceeded", se.Message)
}

func TestDecoder_LastLineWithoutNewline(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`0:"tail"`))

	c, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "tail", c.Text)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_MalformedLine(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("garbage\n")).Next()
	assert.Error(t, err)
}

func TestDecoder_RejectsOversizedLine(t *testing.T) {
	line := `0:"` + strings.Repeat("a", MaxLineBytes) + `"` + "\n"
	dec := NewDecoder(strings.NewReader(line + `0:"after"` + "\n"))

	_, err := dec.Next()
	require.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestDecoder_AcceptsLargeLineUnderLimit(t *testing.T) {
	text := strings.Repeat("b", 256<<10)
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(Text(text)))

	c, err := NewDecoder(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, text, c.Text)
}
