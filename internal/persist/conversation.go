package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var errEmptyConversationID = errors.New("persist: conversation file must carry an id")

// Conversation is a locally held conversation as exported to a file.
type Conversation struct {
	ID       string
	Metadata Metadata
	Messages []Message
}

type conversationFile struct {
	ID       string                    `json:"id"`
	Title    string                    `json:"title"`
	Messages []conversationFileMessage `json:"messages"`
}

type conversationFileMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
}

// DecodeConversation reads a conversation export. Message content may be a string or
// an array of parts, mirroring the update endpoint.
func DecodeConversation(r io.Reader) (Conversation, error) {
	var file conversationFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	if strings.TrimSpace(file.ID) == "" {
		return Conversation{}, errEmptyConversationID
	}

	conversation := Conversation{
		ID:       strings.TrimSpace(file.ID),
		Metadata: Metadata{Title: file.Title},
		Messages: make([]Message, 0, len(file.Messages)),
	}
	for index, entry := range file.Messages {
		message := Message{ID: entry.ID, Role: entry.Role, CreatedAt: entry.CreatedAt}
		trimmed := strings.TrimSpace(string(entry.Content))
		switch {
		case trimmed == "" || trimmed == "null":
		case strings.HasPrefix(trimmed, "["):
			if err := json.Unmarshal(entry.Content, &message.Parts); err != nil {
				return Conversation{}, fmt.Errorf("decode messages[%d].content: %w", index, err)
			}
		default:
			if err := json.Unmarshal(entry.Content, &message.Text); err != nil {
				return Conversation{}, fmt.Errorf("decode messages[%d].content: %w", index, err)
			}
		}
		conversation.Messages = append(conversation.Messages, message)
	}
	return conversation, nil
}
