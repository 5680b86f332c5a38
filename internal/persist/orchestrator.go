package persist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures an Orchestrator.
type Config struct {
	Transport Transport
	Timeout   time.Duration
	Logger    *zap.Logger
	OnSynced  func(conversationID string, chat ChatSummary)
}

// Orchestrator keeps one Session per open conversation.
type Orchestrator struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger
	onSynced  func(string, ChatSummary)

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New constructs an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Transport == nil {
		return nil, errMissingTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		transport: cfg.Transport,
		timeout:   cfg.Timeout,
		logger:    logger,
		onSynced:  cfg.OnSynced,
		sessions:  make(map[string]*Session),
	}, nil
}

// Session returns the session for the conversation, creating it on first use.
func (o *Orchestrator) Session(conversationID string) (*Session, error) {
	conversationID = strings.TrimSpace(conversationID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrSessionClosed
	}
	if session, ok := o.sessions[conversationID]; ok {
		return session, nil
	}

	var onSynced func(ChatSummary)
	if o.onSynced != nil {
		notify := o.onSynced
		onSynced = func(chat ChatSummary) { notify(conversationID, chat) }
	}
	session, err := NewSession(SessionConfig{
		ConversationID: conversationID,
		Transport:      o.transport,
		Timeout:        o.timeout,
		Logger:         o.logger,
		OnSynced:       onSynced,
	})
	if err != nil {
		return nil, err
	}
	o.sessions[conversationID] = session
	return session, nil
}

// Persist routes the snapshot to the conversation's session.
func (o *Orchestrator) Persist(ctx context.Context, conversationID string, metadata Metadata, messages []Message) <-chan Result {
	session, err := o.Session(conversationID)
	if err != nil {
		results := make(chan Result, 1)
		outcome := OutcomeFailed
		if errors.Is(err, ErrSessionClosed) {
			outcome = OutcomeAborted
		}
		results <- Result{ConversationID: conversationID, Outcome: outcome, Err: err}
		close(results)
		return results
	}
	return session.Persist(ctx, metadata, messages)
}

// Teardown tears down and forgets the conversation's session. A later Persist for
// the same conversation starts a fresh session.
func (o *Orchestrator) Teardown(conversationID string) {
	conversationID = strings.TrimSpace(conversationID)

	o.mu.Lock()
	session, ok := o.sessions[conversationID]
	delete(o.sessions, conversationID)
	o.mu.Unlock()

	if ok {
		session.Teardown()
	}
}

// Close tears down every session and rejects further work.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	sessions := o.sessions
	o.sessions = make(map[string]*Session)
	o.closed = true
	o.mu.Unlock()

	for _, session := range sessions {
		session.Teardown()
	}
}
