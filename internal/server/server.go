package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/assetsync/internal/db"
	"github.com/openmined/assetsync/internal/server/store"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *Config
	server *http.Server
	db     *sqlx.DB
	svc    *Services

	stopOnce sync.Once
	stopErr  error
}

func New(ctx context.Context, config *Config, opts ...store.Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sqlDB, err := db.NewSqliteDB(db.WithPath(config.DbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	svc, err := NewServices(ctx, config, sqlDB, opts...)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	httpHandler, err := SetupRoutes(config, svc)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &Server{
		config: config,
		db:     sqlDB,
		svc:    svc,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           httpHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the routes, used to mount the server in tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Services exposes the running services
func (s *Server) Services() *Services {
	return s.svc
}

// Start serves until ctx is done or the listener fails
func (s *Server) Start(ctx context.Context) error {
	slog.Info("assetsync server start", "addr", s.config.HTTP.Addr, "blob", s.config.Blob.Backend, "db", s.config.DbPath)
	defer slog.Info("assetsync server stop")

	if err := s.svc.Start(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.config.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.HTTP.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.runHttpServer(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("assetsync shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			serveErr = err
		}
	}

	if err := s.Stop(context.WithoutCancel(ctx)); err != nil {
		slog.Error("assetsync shutdown error", "error", err)
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// Stop is safe to call more than once
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *Server) stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.svc.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Server) runHttpServer(ln net.Listener) error {
	if s.config.HTTP.TLS() {
		slog.Info("server start tls", "addr", ln.Addr(), "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ServeTLS(ln, s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", ln.Addr())
	return s.server.Serve(ln)
}
