package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server exposes the gateway on its own listener. Websocket connections
// are long-lived, so they are kept off the REST server.
type Server struct {
	gateway *Gateway
	http    *http.Server
	logger  *zap.Logger
}

// NewServer mounts gateway at /ws on addr.
func NewServer(addr string, gateway *Gateway, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{
		gateway: gateway,
		logger:  logger,
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("realtime gateway listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown disconnects clients and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.gateway.Close()
	return s.http.Shutdown(ctx)
}
