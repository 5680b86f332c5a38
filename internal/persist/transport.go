package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultUpdatePath = "/api/chat"
	maxResponseBytes  = 64 << 10
)

var errMissingBaseURL = errors.New("persist: base url is required")

// Response is the raw outcome of an update call that reached the server.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport delivers an update payload to the chat store.
type Transport interface {
	UpdateChat(ctx context.Context, payload UpdatePayload) (Response, error)
}

// HTTPTransportConfig configures HTTPTransport.
type HTTPTransportConfig struct {
	BaseURL      string
	SessionToken string
	HTTPClient   *http.Client
	Method       string
}

// HTTPTransport sends updates to the chat update endpoint over HTTP.
type HTTPTransport struct {
	endpoint     string
	sessionToken string
	method       string
	client       *http.Client
}

// NewHTTPTransport validates the configuration and constructs an HTTPTransport.
// Method defaults to PATCH; PUT is accepted by the server as an alias.
func NewHTTPTransport(cfg HTTPTransportConfig) (*HTTPTransport, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPatch
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		endpoint:     baseURL + defaultUpdatePath,
		sessionToken: strings.TrimSpace(cfg.SessionToken),
		method:       method,
		client:       client,
	}, nil
}

// UpdateChat sends the payload and returns the status and body. Non-2xx statuses are
// not errors at this layer.
func (t *HTTPTransport) UpdateChat(ctx context.Context, payload UpdatePayload) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode update payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, t.method, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build update request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if t.sessionToken != "" {
		request.Header.Set("Authorization", "Bearer "+t.sessionToken)
	}

	response, err := t.client.Do(request)
	if err != nil {
		return Response{}, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return Response{StatusCode: response.StatusCode}, fmt.Errorf("read update response: %w", err)
	}
	return Response{StatusCode: response.StatusCode, Body: data}, nil
}
