package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rlee0/assistant-sub002/internal/chats"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testChatID = "0190f3a2-7c1e-7b5a-9a43-2f1d6c8e4b11"

func TestApplyMigrationsCanonicalizesMessageIDs(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := AutoMigrate(database); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	canonicalDuplicate := chats.NormalizeMessageID("legacy-dup")
	rows := []chats.Message{
		{ID: "legacy-1", ChatID: testChatID, OwnerID: "user-1", Role: "user", Content: "hi", ClientCreatedAt: "t1"},
		{ID: "legacy-dup", ChatID: testChatID, OwnerID: "user-1", Role: "user", Content: "old", ClientCreatedAt: "t2"},
		{ID: canonicalDuplicate, ChatID: testChatID, OwnerID: "user-1", Role: "user", Content: "new", ClientCreatedAt: "t2"},
		{ID: testChatID, ChatID: testChatID, OwnerID: "user-1", Role: "assistant", Content: "kept", ClientCreatedAt: "t3"},
	}
	if err := database.Create(&rows).Error; err != nil {
		t.Fatalf("failed to insert messages: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var stored []chats.Message
	if err := database.Order("created_at ASC").Find(&stored).Error; err != nil {
		t.Fatalf("failed to reload messages: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected duplicate legacy row to be dropped, got %d rows", len(stored))
	}
	for _, message := range stored {
		if !chats.IsCanonicalID(message.ID) {
			t.Fatalf("expected canonical id, got %q", message.ID)
		}
	}
	if stored[0].ID != chats.NormalizeMessageID("legacy-1") {
		t.Fatalf("expected legacy id to be re-keyed, got %q", stored[0].ID)
	}
	if stored[1].Content != "new" {
		t.Fatalf("expected canonical row to win over legacy duplicate, got %q", stored[1].Content)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationCanonicalMessageIDs).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		t.Fatalf("expected reapplying migrations to be a no-op: %v", err)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
