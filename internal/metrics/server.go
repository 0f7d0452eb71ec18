package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusServer exposes the default Prometheus registry over HTTP at
// addr+path. Referenced the way the teacher's main.go wires
// metrics.NewPrometheusServer, gated behind a config flag there and behind
// the PGM_METRICS_ADDR environment variable here (spec §1 Non-goals rules
// out a dedicated metrics CLI surface, but the ambient metrics stack
// itself is carried regardless).
type PrometheusServer struct {
	httpServer *http.Server
}

// NewPrometheusServer builds a server that will listen on addr and serve
// the registry at path.
func NewPrometheusServer(addr, path string) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &PrometheusServer{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start blocks serving HTTP until ctx is canceled or ListenAndServe fails.
func (s *PrometheusServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *PrometheusServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
