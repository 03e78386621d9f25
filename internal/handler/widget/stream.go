package widget

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/service/push"
	"github.com/zhouzirui/support-widget/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sseHeartbeat = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleWebSocket 通过WebSocket推送视图，并接收用户消息
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.openTab(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("tab", tab.ID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	defer tab.Hold()()
	events, unsubscribe := h.hub.Subscribe(tab.ID)
	defer unsubscribe()

	replies := make(chan errorMessage, 4)
	go h.writeLoop(ctx, cancel, conn, events, replies)
	replyError := func(text string) {
		select {
		case replies <- errorMessage{Type: "error", Error: text}:
		case <-ctx.Done():
		}
	}

	h.background(tab, func(ctx context.Context) { tab.Orchestrator.Resume(ctx) })
	log.Info().Str("tab", tab.ID).Msg("websocket connected")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("tab", tab.ID).Msg("websocket read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.Type != "message" {
			replyError("unsupported message type: " + msg.Type)
			continue
		}
		if _, err := h.accept(tab, msg.Text); err != nil {
			replyError(err.Error())
		}
	}
}

// writeLoop is the connection's only writer.
func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, events <-chan push.Event, replies <-chan errorMessage) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			err = conn.WriteJSON(ev)
		case reply := <-replies:
			err = conn.WriteJSON(reply)
		case <-ticker.C:
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			conn.Close()
			return
		}
	}
}

// handleEvents 通过SSE推送视图
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.openTab(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	defer tab.Hold()()
	events, unsubscribe := h.hub.Subscribe(tab.ID)
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.background(tab, func(ctx context.Context) { tab.Orchestrator.Resume(ctx) })

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEChunk(w, flusher, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "ping"); err != nil {
				return
			}
		}
	}
}
