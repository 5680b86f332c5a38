package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rlee0/assistant-sub002/internal/auth"
	"github.com/rlee0/assistant-sub002/internal/chats"
	"github.com/rlee0/assistant-sub002/internal/database"
	"gorm.io/gorm"
)

const (
	testChatID      = "0190f3a2-7c1e-7b5a-9a43-2f1d6c8e4b11"
	testOtherChatID = "0190f3a2-7c1e-7b5a-9a43-2f1d6c8e4b22"
	testSigningKey  = "test-signing-secret"
)

var testDatabaseCounter atomic.Int64

// stubIdentity resolves every request to a fixed owner, or fails with err.
type stubIdentity struct {
	ownerID chats.OwnerID
	err     error
}

func (s stubIdentity) ResolveRequest(*http.Request) (chats.OwnerID, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.ownerID, nil
}

var errStubIdentity = errors.New("signature mismatch")

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:server_%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), testDatabaseCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

type fixedIDs struct {
	ids   []string
	index int
}

func (f *fixedIDs) NewID() (string, error) {
	if f.index >= len(f.ids) {
		return "", errors.New("no more ids")
	}
	id := f.ids[f.index]
	f.index++
	return id, nil
}

func newTestChatService(t *testing.T, db *gorm.DB, ids ...string) *chats.Service {
	t.Helper()
	var clockMu sync.Mutex
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	service, err := chats.NewService(chats.ServiceConfig{
		Database:   db,
		IDProvider: &fixedIDs{ids: ids},
		Clock: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			current = current.Add(time.Second)
			return current
		},
	})
	if err != nil {
		t.Fatalf("failed to create chat service: %v", err)
	}
	return service
}

func mintTestToken(t *testing.T, userID string) string {
	t.Helper()
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{SigningSecret: []byte(testSigningKey)})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	token, _, err := issuer.Issue(userID, "", "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}
