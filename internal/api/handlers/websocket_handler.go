package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsense/backend/internal/orchestrator"
	"github.com/docsense/backend/internal/prompt"
	"github.com/docsense/backend/pkg/logger"
)

// WebSocketHandler streams answer tokens over a websocket. Frames:
// {type: chunk, content} for each token, {type: complete, ...} when the
// stream ends, {type: error, error} on failure.
type WebSocketHandler struct {
	orch *orchestrator.Orchestrator
}

func NewWebSocketHandler(orch *orchestrator.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{orch: orch}
}

type wsQuery struct {
	Type        string                    `json:"type"`
	Query       string                    `json:"query"`
	DetailLevel string                    `json:"detail_level"`
	Mode        string                    `json:"mode"`
	History     []prompt.ConversationTurn `json:"history"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsQuery
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if msg.Type != "query" || strings.TrimSpace(msg.Query) == "" {
			continue
		}

		if err := h.streamAnswer(c, msg); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, msg wsQuery) error {
	// The pipeline outlives neither the socket nor this turn; cancelling the
	// context stops the token producer when the client goes away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	answer := h.orch.Answer(ctx, orchestrator.Request{
		Query:        msg.Query,
		DetailLevel:  parseDetailLevel(msg.DetailLevel),
		History:      msg.History,
		ModeOverride: parseModeOverride(msg.Mode),
	})

	for token := range answer.Tokens {
		frame := map[string]interface{}{
			"type":    "chunk",
			"content": token,
		}
		if err := c.WriteJSON(frame); err != nil {
			return err
		}
	}

	complete := map[string]interface{}{
		"type":       "complete",
		"message_id": uuid.NewString(),
		"sources":    sourceRefs(answer),
		"metadata":   answer.Metadata,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	return c.WriteJSON(complete)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
