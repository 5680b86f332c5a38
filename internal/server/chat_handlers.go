package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rlee0/assistant-sub002/internal/chats"
	"github.com/rlee0/assistant-sub002/internal/metrics"
	"go.uber.org/zap"
)

const maxUpdateBodyBytes = 4 << 20

const (
	updateOutcomeInvalid  = "invalid"
	updateOutcomeNotFound = "not_found"
	updateOutcomePartial  = "partial"
	updateOutcomeFailed   = "failed"
	updateOutcomeApplied  = "applied"
)

type createChatRequestPayload struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleUpdateChat(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, errorResponse{Error: errorCodeUnauthorized, Message: "a valid session is required"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateBodyBytes+1))
	if err != nil || len(body) > maxUpdateBodyBytes {
		metrics.ObserveChatUpdate(updateOutcomeInvalid, 0)
		respondError(c, http.StatusBadRequest, errorResponse{Error: errorCodeInvalidRequest, Message: "request body unreadable or too large"})
		return
	}

	request, err := chats.ValidateUpdate(body)
	if err != nil {
		metrics.ObserveChatUpdate(updateOutcomeInvalid, 0)
		response := errorResponse{Error: errorCodeInvalidRequest, Message: err.Error()}
		var validationErr *chats.ValidationError
		if errors.As(err, &validationErr) {
			response.Message = validationErr.Reason
			response.Field = validationErr.Field
		}
		respondError(c, http.StatusBadRequest, response)
		return
	}

	chatID := request.ChatID.String()
	result, err := h.chatService.ApplyUpdate(c.Request.Context(), ownerID, request)
	var partialErr *chats.PartialApplyError
	switch {
	case err == nil:
	case errors.Is(err, chats.ErrChatNotFound):
		metrics.ObserveChatUpdate(updateOutcomeNotFound, 0)
		respondError(c, http.StatusNotFound, errorResponse{Error: errorCodeChatNotFound, Message: "chat not found", ChatID: chatID})
		return
	case errors.As(err, &partialErr):
		metrics.ObserveChatUpdate(updateOutcomePartial, 0)
		h.logger.Error("chat update partially applied",
			zap.String("chat_id", chatID),
			zap.String("stage", partialErr.Stage),
			zap.Error(err),
		)
		h.publishChat(ownerID, result.Chat)
		respondError(c, http.StatusInternalServerError, errorResponse{
			Error:   errorCodePartialUpdate,
			Message: "chat metadata updated but " + strings.ReplaceAll(partialErr.Stage, "_", " ") + " were not saved",
			ChatID:  chatID,
			Status:  string(chats.ApplyStatusMetadataOnly),
			Code:    serviceErrorCode(err),
		})
		return
	default:
		metrics.ObserveChatUpdate(updateOutcomeFailed, 0)
		h.logger.Error("chat update failed", zap.String("chat_id", chatID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, errorResponse{
			Error:   errorCodeUpdateFailed,
			Message: "chat update failed",
			ChatID:  chatID,
			Code:    serviceErrorCode(err),
		})
		return
	}

	metrics.ObserveChatUpdate(updateOutcomeApplied, result.MessagesWritten)
	h.publishChat(ownerID, result.Chat)
	c.JSON(http.StatusOK, chatResponse{Success: true, Chat: result.Chat})
}

func (h *httpHandler) handleCreateChat(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, errorResponse{Error: errorCodeUnauthorized, Message: "a valid session is required"})
		return
	}

	var payload createChatRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, errorResponse{Error: errorCodeInvalidRequest, Message: "request body must be a JSON object"})
		return
	}

	summary, err := h.chatService.CreateChat(c.Request.Context(), ownerID, strings.TrimSpace(payload.Title))
	if err != nil {
		h.logger.Error("chat creation failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errorResponse{Error: errorCodeRequestFailed, Message: "chat creation failed", Code: serviceErrorCode(err)})
		return
	}
	h.publishChat(ownerID, summary)
	c.JSON(http.StatusCreated, chatResponse{Success: true, Chat: summary})
}

func (h *httpHandler) handleListChats(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, errorResponse{Error: errorCodeUnauthorized, Message: "a valid session is required"})
		return
	}

	summaries, err := h.chatService.ListChats(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("chat listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, errorResponse{Error: errorCodeRequestFailed, Message: "chat listing failed", Code: serviceErrorCode(err)})
		return
	}
	c.JSON(http.StatusOK, chatListResponse{Success: true, Chats: summaries})
}

func (h *httpHandler) handleGetChat(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, errorResponse{Error: errorCodeUnauthorized, Message: "a valid session is required"})
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	detail, err := h.chatService.GetChat(c.Request.Context(), ownerID, chatID)
	if errors.Is(err, chats.ErrChatNotFound) {
		respondError(c, http.StatusNotFound, errorResponse{Error: errorCodeChatNotFound, Message: "chat not found", ChatID: chatID.String()})
		return
	}
	if err != nil {
		h.logger.Error("chat lookup failed", zap.String("chat_id", chatID.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, errorResponse{Error: errorCodeRequestFailed, Message: "chat lookup failed", ChatID: chatID.String(), Code: serviceErrorCode(err)})
		return
	}

	payload, err := newChatDetailPayload(detail)
	if err != nil {
		h.logger.Error("chat encoding failed", zap.String("chat_id", chatID.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, errorResponse{Error: errorCodeRequestFailed, Message: "chat encoding failed", ChatID: chatID.String()})
		return
	}
	c.JSON(http.StatusOK, chatDetailResponse{Success: true, Chat: payload})
}

func (h *httpHandler) handleDeleteChat(c *gin.Context) {
	ownerID, ok := ownerFromContext(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, errorResponse{Error: errorCodeUnauthorized, Message: "a valid session is required"})
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	err := h.chatService.DeleteChat(c.Request.Context(), ownerID, chatID)
	if errors.Is(err, chats.ErrChatNotFound) {
		respondError(c, http.StatusNotFound, errorResponse{Error: errorCodeChatNotFound, Message: "chat not found", ChatID: chatID.String()})
		return
	}
	if err != nil {
		h.logger.Error("chat deletion failed", zap.String("chat_id", chatID.String()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, errorResponse{Error: errorCodeRequestFailed, Message: "chat deletion failed", ChatID: chatID.String(), Code: serviceErrorCode(err)})
		return
	}

	h.realtime.Publish(RealtimeMessage{
		OwnerID:   ownerID,
		EventType: RealtimeEventChatDeleted,
		ChatID:    chatID.String(),
		Timestamp: time.Now().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func chatIDParam(c *gin.Context) (chats.ChatID, bool) {
	chatID, err := chats.NewChatID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, errorResponse{Error: errorCodeInvalidRequest, Message: "chat id must be a canonical identifier", Field: "id"})
		return "", false
	}
	return chatID, true
}

func (h *httpHandler) publishChat(ownerID chats.OwnerID, summary chats.ChatSummary) {
	if summary.ID == "" {
		return
	}
	chat := summary
	h.realtime.Publish(RealtimeMessage{
		OwnerID:   ownerID,
		EventType: RealtimeEventChatUpdated,
		ChatID:    summary.ID,
		Chat:      &chat,
		Timestamp: time.Now().UTC(),
	})
}
