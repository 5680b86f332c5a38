package users

import (
	"strings"
	"time"
)

const defaultProvider = "session"

// Identity maps a provider login onto the owner id that scopes chat data.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	OwnerID     string    `gorm:"column:owner_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
