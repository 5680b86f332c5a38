package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rlee0/assistant-sub002/internal/chats"
)

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeUnauthorized   = "unauthorized"
	errorCodeChatNotFound   = "chat_not_found"
	errorCodeRateLimited    = "rate_limited"
	errorCodePartialUpdate  = "partial_update"
	errorCodeUpdateFailed   = "update_failed"
	errorCodeRequestFailed  = "request_failed"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
	Status  string `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
}

type chatResponse struct {
	Success bool              `json:"success"`
	Chat    chats.ChatSummary `json:"chat"`
}

type chatListResponse struct {
	Success bool                `json:"success"`
	Chats   []chats.ChatSummary `json:"chats"`
}

type chatDetailResponse struct {
	Success bool              `json:"success"`
	Chat    chatDetailPayload `json:"chat"`
}

type chatDetailPayload struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Pinned      bool                `json:"pinned"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	Messages    []messagePayload    `json:"messages"`
	Checkpoints []checkpointPayload `json:"checkpoints"`
}

type messagePayload struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	CreatedAt string          `json:"createdAt"`
	Position  int             `json:"position"`
}

type checkpointPayload struct {
	ID           string `json:"id"`
	MessageIndex int64  `json:"messageIndex"`
	Timestamp    string `json:"timestamp"`
}

type realtimeEventPayload struct {
	ChatID    string             `json:"chatId,omitempty"`
	Chat      *chats.ChatSummary `json:"chat,omitempty"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
}

func newChatDetailPayload(detail chats.ChatDetail) (chatDetailPayload, error) {
	payload := chatDetailPayload{
		ID:          detail.Chat.ID,
		Title:       detail.Chat.Title,
		Pinned:      detail.Chat.Pinned,
		CreatedAt:   detail.CreatedAt,
		UpdatedAt:   detail.Chat.UpdatedAt,
		Messages:    make([]messagePayload, 0, len(detail.Messages)),
		Checkpoints: make([]checkpointPayload, 0, len(detail.Checkpoints)),
	}
	for _, message := range detail.Messages {
		content := json.RawMessage(message.Parts)
		if len(content) == 0 {
			encoded, err := json.Marshal(message.Content)
			if err != nil {
				return chatDetailPayload{}, err
			}
			content = encoded
		}
		payload.Messages = append(payload.Messages, messagePayload{
			ID:        message.ID,
			Role:      message.Role,
			Content:   content,
			CreatedAt: message.ClientCreatedAt,
			Position:  message.Position,
		})
	}
	for _, checkpoint := range detail.Checkpoints {
		payload.Checkpoints = append(payload.Checkpoints, checkpointPayload{
			ID:           checkpoint.ID,
			MessageIndex: checkpoint.MessageIndex,
			Timestamp:    checkpoint.Timestamp,
		})
	}
	return payload, nil
}

func abortWithError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: message})
}

func respondError(c *gin.Context, status int, response errorResponse) {
	response.Success = false
	c.JSON(status, response)
}

func serviceErrorCode(err error) string {
	var serviceErr *chats.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}
