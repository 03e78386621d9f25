package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/support-widget/internal/handler/widget"
	middlewarePkg "github.com/zhouzirui/support-widget/internal/middleware"
	"github.com/zhouzirui/support-widget/pkg/utils"
)

// StaticConfig 描述前端静态资源。
type StaticConfig struct {
	Dir        string
	AvatarPath string
}

// NewRouter wires HTTP routes to the widget gateway.
func NewRouter(widgetHandler *widget.Handler, static StaticConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		widgetHandler.RegisterRoutes(api)
	})

	if static.Dir != "" {
		checkAsset(static.Dir, static.AvatarPath)
		fs := http.StripPrefix("/widget/", http.FileServer(http.Dir(static.Dir)))
		r.Get("/widget/*", fs.ServeHTTP)
	}

	return r
}

// checkAsset 资源缺失只记录日志，不影响启动。
func checkAsset(dir, rel string) {
	if rel == "" {
		return
	}
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if _, err := os.Stat(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("widget asset missing")
	}
}
