package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"toolchat-backend/internal/models"
	"toolchat-backend/internal/services"
	"toolchat-backend/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamWS handles GET /api/v1/chat/ws. Each text frame carries a
// ChatRequest; the reply is one WSChatEvent frame per chunk, ending with a
// "finish" or "error" frame. Requests on a connection are served in order.
func (h *ChatHandler) StreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	reqID := chimiddleware.GetReqID(r.Context())
	slog.Info("websocket chat connected", "request_id", reqID, "remote", r.RemoteAddr)

	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket chat read failed", "request_id", reqID, "error", err)
			}
			return
		}

		if err := h.serveWSTurn(r, conn, req); err != nil {
			slog.Debug("websocket chat closed mid-turn", "request_id", reqID, "error", err)
			return
		}
	}
}

// serveWSTurn streams one turn. It only returns an error when the
// connection itself is no longer usable.
func (h *ChatHandler) serveWSTurn(r *http.Request, conn *websocket.Conn, req models.ChatRequest) error {
	h.metrics.RecordRequest(r.Context())

	if !h.configured {
		return h.writeWSError(r, conn, services.ErrProviderNotConfigured)
	}
	if err := services.ValidateConversation(req.Messages); err != nil {
		return h.writeWSError(r, conn, err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	emit := func(c stream.Chunk) error {
		return conn.WriteJSON(chunkEvent(c))
	}
	_, err := h.turn(ctx, req.Messages, func() error { return nil }, emit)
	if err == nil {
		return nil
	}
	if errors.Is(err, errClientWrite) {
		return err
	}
	return h.writeWSError(r, conn, err)
}

func (h *ChatHandler) writeWSError(r *http.Request, conn *websocket.Conn, err error) error {
	status, resp := ClassifyChatError(err)
	logChatError(r, err, status, resp)
	h.metrics.RecordError(r.Context(), resp.Type)
	return conn.WriteJSON(models.WSChatEvent{
		Type:      "error",
		Error:     resp.Error,
		ErrorType: resp.Type,
		Details:   resp.Details,
		Status:    status,
	})
}

func chunkEvent(c stream.Chunk) models.WSChatEvent {
	ev := models.WSChatEvent{Type: string(c.Kind)}
	switch c.Kind {
	case stream.KindText:
		ev.Text = c.Text
	case stream.KindToolCall:
		ev.ToolCallID, ev.ToolName, ev.Args = c.ToolCallID, c.ToolName, c.Args
	case stream.KindToolResult:
		ev.ToolCallID, ev.ToolName, ev.Result = c.ToolCallID, c.ToolName, c.Result
	case stream.KindFinish:
		ev.FinishReason = c.FinishReason
	}
	return ev
}
