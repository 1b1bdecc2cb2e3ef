// Package httptransport assembles the HTTP surface: the shared middleware
// chain, health and metrics endpoints, and every module's routes.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	credentialhandler "rollcall/internal/credential/handler"
	directoryhandler "rollcall/internal/directory/handler"
	invitehandler "rollcall/internal/invite/handler"
	"rollcall/internal/platform/middleware"
	scanhandler "rollcall/internal/scan/handler"
)

// Config carries everything the router needs. Handlers are constructed by the
// caller so the router stays free of wiring decisions.
type Config struct {
	Logger       *slog.Logger
	JWTValidator middleware.JWTValidator
	Directory    *directoryhandler.Handler
	Credentials  *credentialhandler.Handler
	Scans        *scanhandler.Handler
	Invites      *invitehandler.Handler
	Timeout      time.Duration
}

// NewRouter wires all endpoints behind the shared middleware chain. The
// credential image route sits outside bearer auth; its signed URL token is
// the access control.
func NewRouter(cfg Config) chi.Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	cfg.Credentials.RegisterPublic(r)

	r.Group(func(g chi.Router) {
		g.Use(middleware.ContentTypeJSON)
		g.Use(middleware.RequireAuth(cfg.JWTValidator, cfg.Logger))
		cfg.Directory.Register(g)
		cfg.Credentials.Register(g)
		cfg.Scans.Register(g)
		cfg.Invites.Register(g)
	})

	return r
}
