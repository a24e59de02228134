// Package httpserver wires the webhook and admin HTTP endpoints onto their
// listeners and manages their lifecycle.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/smoyen/buildhook/internal/config"
	derrors "github.com/smoyen/buildhook/internal/errors"
	"github.com/smoyen/buildhook/internal/eventstore"
	"github.com/smoyen/buildhook/internal/server/handlers"
	smw "github.com/smoyen/buildhook/internal/server/middleware"
)

// Server manages the webhook and admin HTTP servers.
type Server struct {
	webhookServer *http.Server
	adminServer   *http.Server
	cfg           *config.Config
	logger        *slog.Logger
	errorAdapter  *derrors.HTTPErrorAdapter

	pushHandlers   *handlers.PushHandlers
	adminHandlers  *handlers.AdminHandlers
	metricsHandler http.Handler

	// middleware chain
	mchain func(http.Handler) http.Handler
}

// Options carries the collaborators the endpoints expose.
type Options struct {
	Dispatcher     handlers.DispatchRunner
	Runtime        handlers.Runtime
	Events         eventstore.Store
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// New constructs the HTTP server wiring.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		cfg:            cfg,
		logger:         opts.Logger,
		errorAdapter:   derrors.NewHTTPErrorAdapter(opts.Logger),
		metricsHandler: opts.MetricsHandler,
	}

	s.pushHandlers = handlers.NewPushHandlers(opts.Dispatcher, opts.Logger)
	s.adminHandlers = handlers.NewAdminHandlers(opts.Runtime, opts.Events, opts.Logger)
	s.mchain = smw.Chain(opts.Logger, s.errorAdapter)

	return s
}

func normalizeWebhookPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/hooks/push"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func (s *Server) webhookMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(normalizeWebhookPath(s.cfg.Webhook.Path), s.pushHandlers.HandlePush)
	return mux
}

func (s *Server) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.adminHandlers.HandleHealth)
	mux.HandleFunc("/api/status", s.adminHandlers.HandleStatus)
	mux.HandleFunc("/api/events", s.adminHandlers.HandleEvents)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	return mux
}

// Start binds both listeners up front so startup fails fast with one
// aggregate error instead of partially initialized servers.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		addr string
		ln   net.Listener
	}
	binds := []preBind{
		{name: "webhook", addr: s.cfg.Listen.WebhookAddr},
		{name: "admin", addr: s.cfg.Listen.AdminAddr},
	}

	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", binds[i].addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s addr %s: %w", binds[i].name, binds[i].addr, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.webhookServer = &http.Server{
		Handler:      s.mchain(s.webhookMux()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.startServerWithListener("webhook", s.webhookServer, binds[0].ln)

	s.adminServer = &http.Server{
		Handler:      s.mchain(s.adminMux()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.startServerWithListener("admin", s.adminServer, binds[1].ln)

	s.logger.Info("HTTP servers started",
		slog.String("webhook_addr", s.cfg.Listen.WebhookAddr),
		slog.String("admin_addr", s.cfg.Listen.AdminAddr))
	return nil
}

// Stop gracefully shuts down both servers.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.webhookServer != nil {
		if err := s.webhookServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook server shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	s.logger.Info("HTTP servers stopped")
	return nil
}

func (s *Server) startServerWithListener(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}
