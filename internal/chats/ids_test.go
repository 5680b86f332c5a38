package chats

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeMessageIDIsDeterministic(t *testing.T) {
	first := NormalizeMessageID("client-msg-1")
	second := NormalizeMessageID("client-msg-1")
	if first != second {
		t.Fatalf("expected identical identifiers, got %s and %s", first, second)
	}
	if !IsCanonicalID(first) {
		t.Fatalf("expected canonical identifier, got %s", first)
	}
}

func TestNormalizeMessageIDKeepsCanonicalCandidates(t *testing.T) {
	testCases := []string{
		"0190f3a2-7c1e-7b5a-9a43-2f1d6c8e4b11",
		"0190F3A2-7C1E-7B5A-9A43-2F1D6C8E4B11",
	}
	for _, candidate := range testCases {
		if normalized := NormalizeMessageID(candidate); normalized != candidate {
			t.Fatalf("expected %s to be returned unchanged, got %s", candidate, normalized)
		}
	}
}

func TestNormalizeMessageIDSeparatesCandidates(t *testing.T) {
	if NormalizeMessageID("client-msg-1") == NormalizeMessageID("client-msg-2") {
		t.Fatalf("expected distinct candidates to map to distinct identifiers")
	}
	if NormalizeMessageID("") == NormalizeMessageID(" ") {
		t.Fatalf("expected whitespace to be significant")
	}
}

func TestNewChatIDRejectsNonCanonicalInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "chat-1", "0190f3a2-7c1e-7b5a-9a43-2f1d6c8e4b1"} {
		if _, err := NewChatID(raw); !errors.Is(err, ErrInvalidChatID) {
			t.Fatalf("expected ErrInvalidChatID for %q, got %v", raw, err)
		}
	}
}

func TestNewOwnerIDBounds(t *testing.T) {
	if _, err := NewOwnerID(" "); !errors.Is(err, ErrInvalidOwnerID) {
		t.Fatalf("expected empty owner id to fail, got %v", err)
	}
	if _, err := NewOwnerID(strings.Repeat("a", maxOwnerIDLength+1)); !errors.Is(err, ErrInvalidOwnerID) {
		t.Fatalf("expected oversized owner id to fail, got %v", err)
	}
	owner, err := NewOwnerID("  user-1 ")
	if err != nil {
		t.Fatalf("unexpected owner id error: %v", err)
	}
	if owner.String() != "user-1" {
		t.Fatalf("expected trimmed owner id, got %q", owner)
	}
}

func TestUUIDProviderIssuesCanonicalIDs(t *testing.T) {
	provider := NewUUIDProvider()
	id, err := provider.NewID()
	if err != nil {
		t.Fatalf("unexpected provider error: %v", err)
	}
	if !IsCanonicalID(id) {
		t.Fatalf("expected canonical identifier, got %s", id)
	}
}
