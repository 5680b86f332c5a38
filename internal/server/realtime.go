package server

import (
	"context"
	"sync"
	"time"

	"github.com/rlee0/assistant-sub002/internal/chats"
	"github.com/rlee0/assistant-sub002/internal/metrics"
)

const (
	RealtimeEventChatUpdated = "chat-updated"
	RealtimeEventChatDeleted = "chat-deleted"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "chatsync-backend"
)

// RealtimeMessage is a chat change fanned out to the owner's open streams.
type RealtimeMessage struct {
	OwnerID   chats.OwnerID
	EventType string
	ChatID    string
	Chat      *chats.ChatSummary
	Timestamp time.Time
}

// RealtimeDispatcher fans chat changes out to the open streams of each owner.
type RealtimeDispatcher struct {
	mu      sync.RWMutex
	streams map[chats.OwnerID]map[*ownerStream]struct{}
}

type ownerStream struct {
	events chan RealtimeMessage
	done   sync.Once
}

const ownerStreamBuffer = 16

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{streams: make(map[chats.OwnerID]map[*ownerStream]struct{})}
}

// Subscribe opens a stream for the owner that lasts until ctx ends or the returned
// cancel func runs. A stream whose buffer is full misses events instead of
// blocking Publish.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, ownerID chats.OwnerID) (<-chan RealtimeMessage, func()) {
	if ownerID == "" {
		closed := make(chan RealtimeMessage)
		close(closed)
		return closed, func() {}
	}

	stream := &ownerStream{events: make(chan RealtimeMessage, ownerStreamBuffer)}
	d.mu.Lock()
	owned, ok := d.streams[ownerID]
	if !ok {
		owned = make(map[*ownerStream]struct{})
		d.streams[ownerID] = owned
	}
	owned[stream] = struct{}{}
	d.mu.Unlock()
	metrics.StreamSubscribers.Inc()

	release := func() {
		stream.done.Do(func() { d.remove(ownerID, stream) })
	}
	context.AfterFunc(ctx, release)
	return stream.events, release
}

// Publish delivers the message to every stream of its owner.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.OwnerID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for stream := range d.streams[message.OwnerID] {
		select {
		case stream.events <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) subscriberCount(ownerID chats.OwnerID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.streams[ownerID])
}

func (d *RealtimeDispatcher) remove(ownerID chats.OwnerID, stream *ownerStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	owned := d.streams[ownerID]
	if _, ok := owned[stream]; !ok {
		return
	}
	delete(owned, stream)
	if len(owned) == 0 {
		delete(d.streams, ownerID)
	}
	metrics.StreamSubscribers.Dec()
}
