// Package health serves liveness and status over HTTP, with optional pprof.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"horobot/internal/eventbus"
	rtsup "horobot/internal/runtime/supervisor"
	logx "horobot/pkg/logx"
)

type Config struct {
	// Addr is host:port. Empty host binds every interface.
	Addr  string
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Options wires the status page to the rest of the app. Every field is
// optional.
type Options struct {
	Bus eventbus.Bus
	// Next returns the next scheduled firing.
	Next func() time.Time
	// Gauges returns named sizes (cache entries, markers).
	Gauges func() map[string]int
}

type Service struct {
	cfg  Config
	opts Options
	log  logx.Logger

	startedAt time.Time

	mu       sync.Mutex
	ln       net.Listener
	srv      *http.Server
	sup      *rtsup.Supervisor
	ready    chan struct{}
	current  *eventbus.Event
	lastDone *eventbus.Event
}

func New(cfg Config, opts Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		opts:      opts,
		log:       log.With(logx.String("comp", "health")),
		startedAt: time.Now(),
		ready:     make(chan struct{}),
	}
}

// Start listens in the background. The server is restarted with backoff if
// it dies; Stop ends it.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	if s.opts.Bus != nil {
		ch, unsub := s.opts.Bus.Subscribe(16, eventbus.TypeFiringStarted, eventbus.TypeFiringFinished)
		sup.Go0("health.events", func(c context.Context) {
			defer unsub()
			s.consume(c, ch)
		})
	}
	sup.GoRestart("health.serve", s.serveOnce, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("health server stopped")
}

// Addr is the bound listen address once the server is up ("" before).
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Ready is closed when the first listener is bound.
func (s *Service) Ready() <-chan struct{} { return s.ready }

func (s *Service) consume(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.mu.Lock()
			switch e.Type {
			case eventbus.TypeFiringStarted:
				s.current = &e
			case eventbus.TypeFiringFinished:
				s.current = nil
				s.lastDone = &e
			}
			s.mu.Unlock()
		}
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = ":3000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("health listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(cctx)
	})
	defer stop()

	s.log.Info("health server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv = nil
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("health server exited unexpectedly")
	}
	return err
}

// Handler returns the routes without binding a listener.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

type firing struct {
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

type statusBody struct {
	Status     string         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	Uptime     string         `json:"uptime"`
	NextFiring *time.Time     `json:"next_firing,omitempty"`
	Running    *firing        `json:"running,omitempty"`
	LastFiring *firing        `json:"last_firing,omitempty"`
	Gauges     map[string]int `json:"gauges,omitempty"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := statusBody{
		Status:    "ok",
		StartedAt: s.startedAt,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.opts.Next != nil {
		if next := s.opts.Next(); !next.IsZero() {
			body.NextFiring = &next
		}
	}
	if s.opts.Gauges != nil {
		body.Gauges = s.opts.Gauges()
	}
	s.mu.Lock()
	if s.current != nil {
		body.Running = &firing{At: s.current.Time, Data: s.current.Data}
	}
	if s.lastDone != nil {
		body.LastFiring = &firing{At: s.lastDone.Time, Data: s.lastDone.Data}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		s.log.Debug("status encode failed", logx.Err(err))
	}
}
