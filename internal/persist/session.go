package persist

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single update request.
const DefaultTimeout = 10 * time.Second

// State is the lifecycle position of a Session.
type State string

const (
	StateIdle      State = "idle"
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// Outcome classifies how a single persist call ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRejected  Outcome = "rejected"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

var (
	// ErrSuperseded marks a request cancelled by a newer persist call.
	ErrSuperseded = errors.New("persist: superseded by a newer request")
	// ErrTimedOut marks a request cancelled by the session timeout.
	ErrTimedOut = errors.New("persist: request timed out")
	// ErrSessionClosed marks a request cancelled by teardown, or issued after it.
	ErrSessionClosed = errors.New("persist: session torn down")

	errMissingTransport      = errors.New("persist: transport is required")
	errMissingConversationID = errors.New("persist: conversation id is required")
	errMalformedResponse     = errors.New("persist: malformed update response")
)

// Result reports how one persist call ended. Chat is set only on success.
type Result struct {
	ConversationID string
	Attempt        uint64
	Outcome        Outcome
	StatusCode     int
	Chat           *ChatSummary
	Err            error
}

// SessionConfig configures a Session.
type SessionConfig struct {
	ConversationID string
	Transport      Transport
	Timeout        time.Duration
	Logger         *zap.Logger
	OnSynced       func(ChatSummary)
}

// Session owns the persistence lifecycle of one open conversation. At most one
// request is in flight; a newer Persist call cancels the older one.
type Session struct {
	conversationID string
	transport      Transport
	timeout        time.Duration
	logger         *zap.Logger
	onSynced       func(ChatSummary)

	mu         sync.Mutex
	state      State
	attempt    uint64
	cancel     context.CancelCauseFunc
	timer      *time.Timer
	closed     bool
	lastSynced *ChatSummary

	// deliverMu orders OnSynced calls; delivered is the newest attempt handed to it.
	deliverMu sync.Mutex
	delivered uint64
}

// NewSession validates the configuration and returns an idle Session.
func NewSession(cfg SessionConfig) (*Session, error) {
	conversationID := strings.TrimSpace(cfg.ConversationID)
	if conversationID == "" {
		return nil, errMissingConversationID
	}
	if cfg.Transport == nil {
		return nil, errMissingTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		conversationID: conversationID,
		transport:      cfg.Transport,
		timeout:        timeout,
		logger:         logger.With(zap.String("conversation_id", conversationID)),
		onSynced:       cfg.OnSynced,
		state:          StateIdle,
	}, nil
}

// ConversationID returns the conversation this session persists.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSynced returns the chat metadata from the most recent successful update.
func (s *Session) LastSynced() (ChatSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSynced == nil {
		return ChatSummary{}, false
	}
	return *s.lastSynced, true
}

// Persist pushes the full conversation snapshot, cancelling any request still in
// flight. The returned channel yields exactly one Result and is then closed.
func (s *Session) Persist(ctx context.Context, metadata Metadata, messages []Message) <-chan Result {
	results := make(chan Result, 1)
	payload := BuildPayload(s.conversationID, metadata, messages)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		results <- Result{ConversationID: s.conversationID, Outcome: OutcomeAborted, Err: ErrSessionClosed}
		close(results)
		return results
	}
	s.stopLocked(ErrSuperseded)
	s.attempt++
	attempt := s.attempt
	requestCtx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	s.timer = time.AfterFunc(s.timeout, func() { cancel(ErrTimedOut) })
	s.state = StatePending
	s.mu.Unlock()

	go s.run(requestCtx, cancel, attempt, payload, results)
	return results
}

// Teardown cancels any in-flight request. Its eventual response is ignored and
// later Persist calls resolve immediately as aborted.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.state == StatePending {
		s.state = StateAborted
	}
	s.stopLocked(ErrSessionClosed)
}

func (s *Session) run(ctx context.Context, cancel context.CancelCauseFunc, attempt uint64, payload UpdatePayload, results chan<- Result) {
	defer close(results)
	response, err := s.transport.UpdateChat(ctx, payload)
	result, synced := s.settle(ctx, attempt, response, err)
	cancel(nil)
	if synced != nil {
		s.deliverSynced(attempt, *synced)
	}
	results <- result
}

// deliverSynced hands chat to OnSynced unless a newer attempt already got there.
func (s *Session) deliverSynced(attempt uint64, chat ChatSummary) {
	if s.onSynced == nil {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if attempt <= s.delivered {
		s.logger.Debug("stale sync callback dropped", zap.Uint64("attempt", attempt))
		return
	}
	s.delivered = attempt
	s.onSynced(chat)
}

func (s *Session) settle(ctx context.Context, attempt uint64, response Response, transportErr error) (Result, *ChatSummary) {
	result := Result{ConversationID: s.conversationID, Attempt: attempt, StatusCode: response.StatusCode}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := attempt == s.attempt && !s.closed
	if !current || ctx.Err() != nil {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = ErrSuperseded
		}
		result.Outcome = OutcomeAborted
		result.Err = cause
		if current {
			s.finishLocked(StateAborted)
		}
		s.logger.Debug("chat update aborted",
			zap.Uint64("attempt", attempt),
			zap.Error(cause),
		)
		return result, nil
	}

	if transportErr != nil {
		s.finishLocked(StateFailed)
		result.Outcome = OutcomeFailed
		result.Err = transportErr
		s.logger.Error("chat update failed",
			zap.Uint64("attempt", attempt),
			zap.Error(transportErr),
		)
		return result, nil
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		s.finishLocked(StateCompleted)
		result.Outcome = OutcomeRejected
		s.logger.Warn("chat update rejected",
			zap.Uint64("attempt", attempt),
			zap.Int("status", response.StatusCode),
			zap.ByteString("body", response.Body),
		)
		return result, nil
	}

	var decoded updateResponse
	if err := json.Unmarshal(response.Body, &decoded); err != nil || !decoded.Success || decoded.Chat == nil {
		if err == nil {
			err = errMalformedResponse
		}
		s.finishLocked(StateFailed)
		result.Outcome = OutcomeFailed
		result.Err = err
		s.logger.Error("chat update response unreadable",
			zap.Uint64("attempt", attempt),
			zap.Int("status", response.StatusCode),
			zap.Error(err),
		)
		return result, nil
	}

	s.finishLocked(StateCompleted)
	synced := *decoded.Chat
	s.lastSynced = &synced
	result.Outcome = OutcomeSucceeded
	result.Chat = &synced
	return result, &synced
}

func (s *Session) stopLocked(cause error) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel(cause)
		s.cancel = nil
	}
}

func (s *Session) finishLocked(state State) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel = nil
	s.state = state
}
