package persist

import (
	"encoding/json"
	"strings"
	"time"
)

// Content part types understood by the chat store.
const (
	PartTypeText           = "text"
	PartTypeReasoning      = "reasoning"
	PartTypeToolInvocation = "tool-invocation"
	PartTypeFile           = "file"
)

// Metadata is the conversation-level state pushed alongside the message list.
type Metadata struct {
	Title string
}

// Part is one element of structured message content.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	URL        string          `json:"url,omitempty"`
	MediaType  string          `json:"mediaType,omitempty"`
	Filename   string          `json:"filename,omitempty"`
}

// Message is the client's local view of a conversation turn. Parts take precedence
// over Text when both are set.
type Message struct {
	ID        string
	Role      string
	Text      string
	Parts     []Part
	CreatedAt time.Time
}

// UpdatePayload is the wire body of the chat update endpoint.
type UpdatePayload struct {
	ID       string        `json:"id"`
	Title    string        `json:"title,omitempty"`
	Messages []WireMessage `json:"messages"`
}

// WireMessage is a message in the update endpoint's wire shape.
type WireMessage struct {
	ID        string      `json:"id"`
	Role      string      `json:"role"`
	Content   interface{} `json:"content"`
	CreatedAt string      `json:"createdAt"`
}

// ChatSummary is the canonical chat metadata returned by a successful update.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Pinned    bool      `json:"pinned"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type updateResponse struct {
	Success bool         `json:"success"`
	Chat    *ChatSummary `json:"chat"`
}

// BuildPayload maps local conversation state to the update endpoint's wire shape.
// The message list is always sent as a full snapshot.
func BuildPayload(conversationID string, metadata Metadata, messages []Message) UpdatePayload {
	wireMessages := make([]WireMessage, 0, len(messages))
	for _, message := range messages {
		var content interface{} = message.Text
		if len(message.Parts) > 0 {
			content = message.Parts
		}
		wireMessages = append(wireMessages, WireMessage{
			ID:        message.ID,
			Role:      message.Role,
			Content:   content,
			CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return UpdatePayload{
		ID:       conversationID,
		Title:    strings.TrimSpace(metadata.Title),
		Messages: wireMessages,
	}
}
