// Package transport talks to the conversational backend and applies its
// answers to a tab's session.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MaxMessageLen mirrors the backend's own input limit, in characters.
const MaxMessageLen = 1000

// Meta carries the backend's per-turn flags. The backend spells the final
// flag "final_message"; "finalMessage" is accepted as well.
type Meta struct {
	FinalMessage      *bool `json:"finalMessage,omitempty"`
	FinalMessageSnake *bool `json:"final_message,omitempty"`
	TermsViolated     bool  `json:"terms_violated,omitempty"`
	MessageNumber     int   `json:"message_number,omitempty"`
}

// IsFinal reports whether the backend closed the conversation. Absent means
// false.
func (m Meta) IsFinal() bool {
	switch {
	case m.FinalMessage != nil:
		return *m.FinalMessage
	case m.FinalMessageSnake != nil:
		return *m.FinalMessageSnake
	default:
		return false
	}
}

// NewChatResponse is the body of GET /chat/new.
type NewChatResponse struct {
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data"`
	Message *string         `json:"message,omitempty"`
	Meta    Meta            `json:"meta"`
}

// Greeting returns the optional greeting; empty means none.
func (r NewChatResponse) Greeting() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}

// ContinueRequest is the body of POST /chat/{chatId}. AskedInfo and Data
// are echoed verbatim from the previous turn.
type ContinueRequest struct {
	AskedInfo json.RawMessage `json:"askedInfo"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
}

// ChatResponse is the body of POST /chat/{chatId}. AskedInfo is optional
// and, when sent, replaces the stored one.
type ChatResponse struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	AskedInfo json.RawMessage `json:"askedInfo,omitempty"`
	Message   string          `json:"message"`
	Meta      Meta            `json:"meta"`
}

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// API is the backend's two-endpoint contract.
type API interface {
	NewChat(ctx context.Context) (*NewChatResponse, error)
	ContinueChat(ctx context.Context, chatID string, req ContinueRequest) (*ChatResponse, error)
}

// HTTPAPI implements API over HTTP with JSON bodies.
type HTTPAPI struct {
	baseURL string
	client  *http.Client
}

var _ API = (*HTTPAPI)(nil)

// NewHTTPAPI creates a client for the backend reachable at baseURL.
func NewHTTPAPI(baseURL string, timeout time.Duration) *HTTPAPI {
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewChat starts a conversation.
func (a *HTTPAPI) NewChat(ctx context.Context) (*NewChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/chat/new", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build new chat request")
	}

	var out NewChatResponse
	if err := a.do(req, &out); err != nil {
		return nil, errors.Wrap(err, "new chat")
	}
	return &out, nil
}

// ContinueChat sends one user turn.
func (a *HTTPAPI) ContinueChat(ctx context.Context, chatID string, body ContinueRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode continue request")
	}

	endpoint := a.baseURL + "/chat/" + url.PathEscape(chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build continue request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out ChatResponse
	if err := a.do(req, &out); err != nil {
		return nil, errors.Wrapf(err, "continue chat %s", chatID)
	}
	return &out, nil
}

func (a *HTTPAPI) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
