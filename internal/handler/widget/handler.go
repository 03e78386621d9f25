package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/service/chat"
	"github.com/zhouzirui/support-widget/internal/service/orchestrator"
	"github.com/zhouzirui/support-widget/internal/service/push"
	"github.com/zhouzirui/support-widget/pkg/utils"
)

// Options 组件网关处理器的配置
type Options struct {
	BackendURL  string
	FrontendURL string
	AvatarURL   string

	RatePerSecond float64
	RateBurst     int

	// Background 是后台对话回合使用的上下文，默认 context.Background()。
	Background context.Context
}

// Handler 聊天组件网关的HTTP处理器
type Handler struct {
	tabs     *chat.Service
	hub      *push.Hub
	opts     Options
	limiters *limiterSet

	wg sync.WaitGroup
}

// New 创建处理器
func New(tabs *chat.Service, hub *push.Hub, opts Options) *Handler {
	if opts.Background == nil {
		opts.Background = context.Background()
	}
	h := &Handler{
		tabs:     tabs,
		hub:      hub,
		opts:     opts,
		limiters: newLimiterSet(opts.RatePerSecond, opts.RateBurst),
	}
	tabs.OnEvict(h.forget)
	return h
}

// RegisterRoutes 注册组件相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/widget/config", h.handleConfig)
	r.Post("/tabs", h.handleCreateTab)
	r.Route("/tabs/{tabID}", func(r chi.Router) {
		r.Get("/", h.handleGetTab)
		r.Post("/privacy", h.handleAcceptPrivacy)
		r.Post("/messages", h.handleSubmit)
		r.Get("/ws", h.handleWebSocket)
		r.Get("/events", h.handleEvents)
	})
}

// Wait 等待所有后台回合结束，用于优雅退出和测试。
func (h *Handler) Wait() {
	h.wg.Wait()
}

// background 在请求结束后继续执行对话回合，回合期间标签页不会被回收。
func (h *Handler) background(tab *chat.Tab, fn func(ctx context.Context)) {
	release := tab.Hold()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer release()
		fn(h.opts.Background)
	}()
}

// forget 清理被回收标签页的限流器和缓存视图
func (h *Handler) forget(tabID string) {
	h.limiters.forget(tabID)
	h.hub.Forget(tabID)
}

// handleConfig 返回嵌入配置
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"backendUrl":  h.opts.BackendURL,
		"frontendUrl": h.opts.FrontendURL,
		"avatarUrl":   h.opts.AvatarURL,
	})
}

// handleCreateTab 为新的浏览器标签页分配会话
func (h *Handler) handleCreateTab(w http.ResponseWriter, r *http.Request) {
	tab, err := h.tabs.CreateTab(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("create tab failed")
		utils.RespondError(w, http.StatusInternalServerError, "could not create tab")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"tabId": tab.ID,
		"view":  tab.View(),
	})
}

// handleGetTab 返回当前视图，并在需要时于后台恢复会话
func (h *Handler) handleGetTab(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.openTab(w, r)
	if !ok {
		return
	}

	h.background(tab, func(ctx context.Context) { tab.Orchestrator.Resume(ctx) })
	utils.RespondJSON(w, http.StatusOK, map[string]any{"view": tab.View()})
}

// handleAcceptPrivacy 记录隐私同意并启动对话
func (h *Handler) handleAcceptPrivacy(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.openTab(w, r)
	if !ok {
		return
	}

	h.background(tab, func(ctx context.Context) { tab.Orchestrator.AcceptPrivacy(ctx) })
	view := tab.View()
	view.ShowMessages = true
	utils.RespondJSON(w, http.StatusAccepted, map[string]any{"view": view})
}

// handleSubmit 接收用户消息，回合在后台完成
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	tab, ok := h.openTab(w, r)
	if !ok {
		return
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if status, err := h.accept(tab, payload.Message); err != nil {
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]any{"view": tab.View()})
}

// accept 校验并调度一次提交，返回失败时对应的状态码
func (h *Handler) accept(tab *chat.Tab, text string) (int, error) {
	if err := tab.Orchestrator.Validate(text); err != nil {
		return statusFor(err), err
	}
	if !h.limiters.allow(tab.ID) {
		return http.StatusTooManyRequests, errRateLimited
	}

	h.background(tab, func(ctx context.Context) {
		res, err := tab.Orchestrator.Submit(ctx, text)
		if err != nil {
			log.Info().Err(err).Str("tab", tab.ID).Msg("submit rejected")
			return
		}
		log.Info().Str("tab", tab.ID).Str("phase", res.Phase.String()).Int("attempts", res.Attempts).Msg("turn finished")
	})
	return http.StatusAccepted, nil
}

func (h *Handler) openTab(w http.ResponseWriter, r *http.Request) (*chat.Tab, bool) {
	tab, err := h.tabs.Open(r.Context(), chi.URLParam(r, "tabID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return nil, false
	}
	return tab, true
}

var errRateLimited = errors.New("too many messages, please slow down")

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidTabID), errors.Is(err, orchestrator.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrConversationClosed):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
