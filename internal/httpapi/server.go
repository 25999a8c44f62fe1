package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server runs the ops router until its context is cancelled.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, h *Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           SetupRoutes(h),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run blocks serving requests and shuts down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("Ops HTTP server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	zap.L().Info("Ops HTTP server stopped")
	return nil
}
