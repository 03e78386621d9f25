// Package push fans a tab's ViewModels out to connected browser adapters.
package push

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/service/render"
)

const (
	EventView   = "view"
	EventTyping = "typing"
)

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// events are dropped for it.
const subscriberBuffer = 16

// Event is one message to a browser adapter.
type Event struct {
	Type string            `json:"type"`
	View *render.ViewModel `json:"view,omitempty"`
	Text string            `json:"text,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Hub keeps subscribers per tab and the latest view of each tab.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	latest map[string]Event
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		latest: make(map[string]Event),
	}
}

// Presenter returns the render.Presenter publishing to tabID's subscribers.
func (h *Hub) Presenter(tabID string) render.Presenter {
	return &presenter{hub: h, tabID: tabID}
}

// Subscribe registers a receiver for tabID. The latest view, if any, is
// delivered first. The returned function unsubscribes and closes the
// channel; it is safe to call more than once.
func (h *Hub) Subscribe(tabID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[tabID] == nil {
		h.subs[tabID] = make(map[*subscriber]struct{})
	}
	h.subs[tabID][sub] = struct{}{}
	if ev, ok := h.latest[tabID]; ok {
		sub.ch <- ev
	}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[tabID], sub)
			if len(h.subs[tabID]) == 0 {
				delete(h.subs, tabID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers reports how many receivers tabID has.
func (h *Hub) Subscribers(tabID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tabID])
}

// Forget drops the cached view of tabID unless someone is still subscribed.
func (h *Hub) Forget(tabID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs[tabID]) == 0 {
		delete(h.latest, tabID)
	}
}

// publish records and fans out under one lock so subscribers see views in
// the order latest was set.
func (h *Hub) publish(tabID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Type == EventView {
		h.latest[tabID] = ev
	}
	for sub := range h.subs[tabID] {
		select {
		case sub.ch <- ev:
		default:
			log.Debug().Str("tab", tabID).Str("event", ev.Type).Msg("subscriber lagging, event dropped")
		}
	}
}

type presenter struct {
	hub   *Hub
	tabID string
}

func (p *presenter) Present(vm render.ViewModel) {
	p.hub.publish(p.tabID, Event{Type: EventView, View: &vm})
}

func (p *presenter) PatchTyping(text string) {
	p.hub.publish(p.tabID, Event{Type: EventTyping, Text: text})
}
