package persist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOtherConversationID = "0190f3a2-7c1e-7b5a-9a43-2f1d6c8e4b22"

func TestOrchestratorKeepsConversationsIndependent(t *testing.T) {
	transport := newScriptedTransport(false)
	var (
		mu     sync.Mutex
		synced = map[string]string{}
	)
	orchestrator, err := New(Config{
		Transport: transport,
		Timeout:   time.Minute,
		OnSynced: func(conversationID string, chat ChatSummary) {
			mu.Lock()
			defer mu.Unlock()
			synced[conversationID] = chat.Title
		},
	})
	require.NoError(t, err)

	first := orchestrator.Persist(context.Background(), testConversationID, Metadata{Title: "One"}, sampleMessages())
	firstCall := transport.next(t)
	second := orchestrator.Persist(context.Background(), testOtherConversationID, Metadata{Title: "Two"}, sampleMessages())
	secondCall := transport.next(t)

	assert.NoError(t, firstCall.ctx.Err(), "another conversation must not cancel this request")

	firstCall.reply <- successReply("One")
	secondCall.reply <- successReply("Two")
	assert.Equal(t, OutcomeSucceeded, awaitResult(t, first).Outcome)
	assert.Equal(t, OutcomeSucceeded, awaitResult(t, second).Outcome)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{testConversationID: "One", testOtherConversationID: "Two"}, synced)
}

func TestOrchestratorReusesSessionPerConversation(t *testing.T) {
	orchestrator, err := New(Config{Transport: newScriptedTransport(false)})
	require.NoError(t, err)

	first, err := orchestrator.Session(testConversationID)
	require.NoError(t, err)
	second, err := orchestrator.Session(" " + testConversationID + " ")
	require.NoError(t, err)
	assert.Same(t, first, second)

	orchestrator.Teardown(testConversationID)
	assert.Equal(t, StateIdle, first.State())

	fresh, err := orchestrator.Session(testConversationID)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.ErrorIs(t, awaitResult(t, first.Persist(context.Background(), Metadata{}, nil)).Err, ErrSessionClosed)
}

func TestOrchestratorCloseAbortsInFlight(t *testing.T) {
	transport := newScriptedTransport(false)
	orchestrator, err := New(Config{Transport: transport, Timeout: time.Minute})
	require.NoError(t, err)

	results := orchestrator.Persist(context.Background(), testConversationID, Metadata{}, sampleMessages())
	transport.next(t)
	orchestrator.Close()

	result := awaitResult(t, results)
	assert.Equal(t, OutcomeAborted, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrSessionClosed)

	after := awaitResult(t, orchestrator.Persist(context.Background(), testConversationID, Metadata{}, nil))
	assert.Equal(t, OutcomeAborted, after.Outcome)
}

func TestHTTPTransportSendsUpdate(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotAuth   string
		gotBody   map[string]interface{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	transport, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL + "/", SessionToken: "token-123"})
	require.NoError(t, err)

	payload := BuildPayload(testConversationID, Metadata{Title: "Renamed"}, sampleMessages())
	response, err := transport.UpdateChat(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(response.Body))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/api/chat", gotPath)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, testConversationID, gotBody["id"])
	assert.Equal(t, "Renamed", gotBody["title"])
	messages, ok := gotBody["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].(map[string]interface{})["content"])
}

func TestHTTPTransportRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPTransport(HTTPTransportConfig{})
	assert.ErrorIs(t, err, errMissingBaseURL)
}

func TestHTTPTransportHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	transport, err := NewHTTPTransport(HTTPTransportConfig{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = transport.UpdateChat(ctx, BuildPayload(testConversationID, Metadata{}, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
