package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/quotagate/pkg/logger"
)

// Server wraps http.Server with signal handling, graceful shutdown and
// ordered draining of background work.
type Server struct {
	opts *options

	mu   sync.Mutex
	srv  *http.Server
	addr string

	shutdownOnce sync.Once
	shutdownErr  error
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	o := &options{
		addr:              ":8080",
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   15 * time.Second,
		logger:            logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Server{opts: o}
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens and serves handler until ctx is cancelled, SIGINT/SIGTERM is
// received or Shutdown is called, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, ErrAlreadyRunning)
	}
	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       s.opts.readTimeout,
		ReadHeaderTimeout: s.opts.readHeaderTimeout,
		WriteTimeout:      s.opts.writeTimeout,
		IdleTimeout:       s.opts.idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.opts.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.opts.logger.Info("http server listening", slog.String("addr", s.addr))
	for _, h := range s.opts.startHooks {
		h(s.addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	var serveErr error
	select {
	case <-ctx.Done():
		s.opts.logger.Info("context cancelled, shutting down")
	case sig := <-stop:
		s.opts.logger.Info("signal received, shutting down", slog.String("signal", sig.String()))
	case serveErr = <-errCh:
	}

	shutdownErr := s.Shutdown(context.Background())
	if serveErr == nil {
		serveErr = <-errCh
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, serveErr)
	}
	return shutdownErr
}

// Shutdown stops accepting connections, waits for in-flight requests and
// then runs the registered drains. Repeated calls return the first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
		defer cancel()

		var errs []error
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}

		for _, d := range s.opts.drains {
			start := time.Now()
			if err := d.fn(ctx); err != nil {
				s.opts.logger.Error("drain failed", logger.Component(d.name), logger.Error(err))
				errs = append(errs, err)
				continue
			}
			s.opts.logger.Info("drained", logger.Component(d.name), logger.Duration(time.Since(start)))
		}

		if len(errs) > 0 {
			s.shutdownErr = errors.Join(append([]error{ErrShutdown}, errs...)...)
		}
	})
	return s.shutdownErr
}
