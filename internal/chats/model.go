package chats

import (
	"time"

	"gorm.io/datatypes"
)

// Known message roles. The update protocol accepts any non-empty role string.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Chat is the root of a conversation's ownership subtree.
type Chat struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index:idx_chats_owner_updated,priority:1"`
	Title     string    `gorm:"column:title;size:512;not null"`
	Pinned    bool      `gorm:"column:pinned;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false;index:idx_chats_owner_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Chat) TableName() string {
	return "chats"
}

// Message stores one conversation turn keyed by its normalized identifier.
type Message struct {
	ID              string         `gorm:"column:id;primaryKey;size:36;not null"`
	ChatID          string         `gorm:"column:chat_id;size:36;not null;index:idx_chat_messages_chat_position,priority:1"`
	OwnerID         string         `gorm:"column:owner_id;size:190;not null;index"`
	Role            string         `gorm:"column:role;size:32;not null"`
	Content         string         `gorm:"column:content;type:text;not null"`
	Parts           datatypes.JSON `gorm:"column:parts"`
	Position        int            `gorm:"column:position;not null;default:0;index:idx_chat_messages_chat_position,priority:2"`
	ClientCreatedAt string         `gorm:"column:created_at;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "chat_messages"
}

// Checkpoint records a restorable position in a chat's message sequence.
type Checkpoint struct {
	ID           string `gorm:"column:id;primaryKey;size:190;not null"`
	ChatID       string `gorm:"column:chat_id;size:36;not null;index"`
	OwnerID      string `gorm:"column:owner_id;size:190;not null;index"`
	MessageIndex int64  `gorm:"column:message_index;not null"`
	Timestamp    string `gorm:"column:timestamp;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Checkpoint) TableName() string {
	return "chat_checkpoints"
}

// ChatSummary is the canonical metadata returned to clients after a write.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Pinned    bool      `json:"pinned"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatDetail bundles a chat with its stored messages and checkpoints.
type ChatDetail struct {
	Chat        ChatSummary
	CreatedAt   time.Time
	Messages    []Message
	Checkpoints []Checkpoint
}

func summarize(chat Chat) ChatSummary {
	return ChatSummary{
		ID:        chat.ID,
		Title:     chat.Title,
		Pinned:    chat.Pinned,
		UpdatedAt: chat.UpdatedAt.UTC(),
	}
}

// MessageUpdate is a validated message element from an update request.
type MessageUpdate struct {
	ID        string
	Role      string
	Content   Content
	CreatedAt string
}

// CheckpointUpdate is a validated checkpoint element from an update request.
type CheckpointUpdate struct {
	ID           string
	MessageIndex int64
	Timestamp    string
}

// UpdateRequest is a validated partial update for a single chat. Nil pointers and nil
// slices mean the field was absent from the payload.
type UpdateRequest struct {
	ChatID      ChatID
	Title       *string
	Pinned      *bool
	Messages    []MessageUpdate
	Checkpoints []CheckpointUpdate
}

// ApplyStatus tags how much of an update reached the store.
type ApplyStatus string

const (
	// ApplyStatusRejected means nothing was written.
	ApplyStatusRejected ApplyStatus = "rejected"
	// ApplyStatusMetadataOnly means chat metadata was patched but messages or checkpoints were not.
	ApplyStatusMetadataOnly ApplyStatus = "metadata_only"
	// ApplyStatusApplied means every supplied field was written.
	ApplyStatusApplied ApplyStatus = "applied"
)

// UpdateResult captures the outcome of ApplyUpdate.
type UpdateResult struct {
	Status             ApplyStatus
	Chat               ChatSummary
	MessagesWritten    int
	CheckpointsWritten int
}
