package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleChatStream(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, errorResponse{Error: errorCodeUnauthorized, Message: "a valid session is required"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, ownerID)
	defer cleanup()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.logger.Debug("chat stream opened", zap.String("owner_id", ownerID.String()))
	defer h.logger.Debug("chat stream closed", zap.String("owner_id", ownerID.String()))

	writeHeartbeat := func() {
		c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{Source: realtimeSourceBackend, Timestamp: time.Now().UTC()})
		c.Writer.Flush()
	}
	writeHeartbeat()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				ChatID:    message.ChatID,
				Chat:      message.Chat,
				Source:    realtimeSourceBackend,
				Timestamp: message.Timestamp,
			})
			c.Writer.Flush()
		case <-ticker.C:
			writeHeartbeat()
		}
	}
}
