package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/brainball/internal/config"
	"github.com/MrWong99/brainball/internal/display"
	"github.com/MrWong99/brainball/internal/health"
	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/internal/recognition"
	"github.com/MrWong99/brainball/internal/resolve"
)

const (
	statusReadHeaderTimeout = 5 * time.Second
	statusShutdownTimeout   = 5 * time.Second
)

// Status is the document served at /status.
type Status struct {
	Mode config.Mode `json:"mode"`

	// Recognition is the recognition loop state; empty in mic-level mode.
	Recognition string `json:"recognition,omitempty"`

	Word           string     `json:"word"`
	WordObservedAt *time.Time `json:"word_observed_at,omitempty"`

	// Result is the resolution of Word once it is available.
	Result *resolve.Result `json:"result,omitempty"`

	// Level is the last mic level; set in mic-level mode only.
	Level *float64 `json:"level,omitempty"`

	Images    bool    `json:"images"`
	Threshold float64 `json:"similarity_threshold"`

	// Breaker is the remote-tier circuit state, if a remote is configured.
	Breaker string `json:"remote_breaker,omitempty"`

	// Content is the last rendered frame.
	Content *display.Content `json:"content,omitempty"`
}

// Status returns a snapshot of the running device.
func (a *App) Status() Status {
	s := Status{
		Mode:      a.cfg.Mode,
		Images:    a.images.Load(),
		Threshold: a.resolver.Threshold(),
	}
	if a.loop != nil {
		s.Recognition = a.loop.State().String()
		if w, ok := a.loop.Word(); ok {
			s.Word = w.Text
			at := w.ObservedAt
			s.WordObservedAt = &at
			if res, ok := a.presenter.lastResult(w.Text); ok {
				s.Result = &res
			}
		}
	}
	if a.meter != nil {
		s.Level = display.Level(a.meter.CurrentLevel())
	}
	if a.breaker != nil {
		s.Breaker = a.breaker.State().String()
	}
	a.mu.Lock()
	if a.last != nil {
		c := *a.last
		s.Content = &c
	}
	a.mu.Unlock()
	return s
}

// Handler returns the status server handler: /status, /metrics, /ws, /healthz
// and /readyz.
func (a *App) Handler() http.Handler { return a.handler }

// initStatus builds the readiness checks and the status mux.
func (a *App) initStatus() {
	a.health = health.New(health.Audio(a.providers.Audio))
	if a.loop != nil {
		a.health.Add(health.Running("recognition", func() bool {
			return a.loop.State() == recognition.StateRunning
		}))
	}
	if a.meter != nil && a.meter.Continuous() {
		a.health.Add(health.Running("mic_level", a.meter.Running))
	}
	if p, ok := a.refStore.(interface{ Ping(context.Context) error }); ok {
		a.health.Add(health.Ping("reference_store", p.Ping))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", a.serveStatusJSON)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.health.Register(mux)

	// The websocket upgrade needs the raw ResponseWriter, so /ws bypasses
	// the metrics middleware.
	root := http.NewServeMux()
	if a.hub != nil {
		root.Handle("GET /ws", a.hub)
	}
	root.Handle("/", observe.Middleware(a.metrics)(mux))
	a.handler = root
}

func (a *App) serveStatusJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.Status()); err != nil {
		slog.Warn("status encode failed", "err", err)
	}
}

// serveStatus runs the status server until ctx is done.
func (a *App) serveStatus(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: status server listen: %w", err)
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: statusReadHeaderTimeout,
	}
	slog.Info("status server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: status server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: status server shutdown: %w", err)
		}
		return nil
	}
}
