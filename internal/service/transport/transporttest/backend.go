// Package transporttest provides an in-process chat backend for tests.
package transporttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Backend imitates the conversational backend's two endpoints. IDs rotate
// on every turn so clients must adopt the latest one.
type Backend struct {
	Server *httptest.Server

	mu               sync.Mutex
	greeting         string
	newChatFailures  int
	continueFailures int
	finalAfter       int
	newChatCalls     int
	continueCalls    int
	turns            map[string]int
	lastRequest      map[string]json.RawMessage
}

// Option customises a Backend.
type Option func(*Backend)

// WithGreeting sets the greeting returned by /chat/new; empty omits it.
func WithGreeting(text string) Option {
	return func(b *Backend) { b.greeting = text }
}

// FailNewChat makes the first n /chat/new calls answer 503.
func FailNewChat(n int) Option {
	return func(b *Backend) { b.newChatFailures = n }
}

// FailContinue makes the first n /chat/{id} calls answer 503.
func FailContinue(n int) Option {
	return func(b *Backend) { b.continueFailures = n }
}

// FinalAfter marks the n-th successful turn as the final message.
func FinalAfter(n int) Option {
	return func(b *Backend) { b.finalAfter = n }
}

// New starts the fake backend. Call Close when done.
func New(opts ...Option) *Backend {
	b := &Backend{
		greeting: "Hallo! Wie kann ich Ihnen helfen?",
		turns:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}

	r := chi.NewRouter()
	r.Get("/chat/new", b.handleNew)
	r.Post("/chat/{chatID}", b.handleContinue)
	b.Server = httptest.NewServer(r)
	return b
}

// URL is the base URL to hand to a transport.
func (b *Backend) URL() string { return b.Server.URL }

// Close shuts the server down.
func (b *Backend) Close() { b.Server.Close() }

// NewChatCalls counts /chat/new requests, failed ones included.
func (b *Backend) NewChatCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newChatCalls
}

// ContinueCalls counts /chat/{id} requests, failed ones included.
func (b *Backend) ContinueCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.continueCalls
}

// LastRequest returns the last decoded continue body, keyed by field.
func (b *Backend) LastRequest() map[string]json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRequest
}

func (b *Backend) handleNew(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.newChatCalls++
	fail := b.newChatCalls <= b.newChatFailures
	b.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "unavailable"})
		return
	}

	body := map[string]any{
		"id":   "chat-0",
		"data": []map[string]string{{"user_message": "Let's start", "final_prompt": ""}},
		"meta": map[string]any{"terms_violated": false, "message_number": 1, "final_message": false},
	}
	if b.greeting != "" {
		body["message"] = b.greeting
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleContinue(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	b.mu.Lock()
	defer b.mu.Unlock()
	b.continueCalls++

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid body"})
		return
	}
	b.lastRequest = payload

	if b.continueCalls <= b.continueFailures {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "unavailable"})
		return
	}
	if !strings.HasPrefix(chatID, "chat-") {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Chat does not exist."})
		return
	}

	var message string
	if err := json.Unmarshal(payload["message"], &message); err != nil || strings.TrimSpace(message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Missing required field: message"})
		return
	}

	turn := len(b.turns) + 1
	nextID := fmt.Sprintf("chat-%d", turn)
	b.turns[nextID] = turn

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      nextID,
		"message": "Antwort auf: " + message,
		"data":    map[string]int{"turn": turn},
		"meta": map[string]any{
			"terms_violated": false,
			"message_number": turn + 1,
			"final_message":  b.finalAfter > 0 && turn >= b.finalAfter,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
