package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func newMetricsRouter(gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods("GET")
	return r
}

type metricsServer struct {
	srv *http.Server
	ln  net.Listener
}

// startMetricsServer serves /metrics and /healthz on bind until Shutdown.
func startMetricsServer(bind string, gatherer prometheus.Gatherer, logger *zap.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}
	s := &metricsServer{
		srv: &http.Server{
			Handler:           newMetricsRouter(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	return s, nil
}

func (s *metricsServer) Addr() string { return s.ln.Addr().String() }

func (s *metricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
