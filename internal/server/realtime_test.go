package server

import (
	"context"
	"testing"
	"time"

	"github.com/rlee0/assistant-sub002/internal/chats"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		OwnerID:   "user-1",
		EventType: RealtimeEventChatUpdated,
		ChatID:    testChatID,
		Chat:      &chats.ChatSummary{ID: testChatID, Title: "Renamed"},
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventChatUpdated {
			t.Fatalf("expected event type %s, got %s", RealtimeEventChatUpdated, received.EventType)
		}
		if received.Chat == nil || received.Chat.Title != "Renamed" {
			t.Fatalf("expected chat summary in message, got %+v", received.Chat)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByOwner(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		OwnerID:   "user-3",
		EventType: RealtimeEventChatDeleted,
		ChatID:    testChatID,
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-ownerStream:
		t.Fatal("did not expect realtime message for unrelated owner")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.OwnerID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.OwnerID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed owner")
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-4")
	if dispatcher.subscriberCount("user-4") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.subscriberCount("user-4") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected subscriber to be removed after cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cleanup()
}
