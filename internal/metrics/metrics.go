package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// The follow loop updates these unconditionally; they only become
// visible when Register and Start are called.
var (
	FilesTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dirtail_files_tracked",
		Help: "Number of files currently being followed.",
	})
	BytesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dirtail_bytes_emitted_total",
		Help: "Bytes written to the output stream, headers excluded.",
	})
	Rotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dirtail_rotations_total",
		Help: "File rotations and truncations detected.",
	})
	Events = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dirtail_watch_events_total",
		Help: "Filesystem change events consumed by the follow loop.",
	})
	Rescans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dirtail_rescans_total",
		Help: "Full directory rescans performed.",
	})
)

// Register adds all collectors to r.
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		FilesTracked, BytesEmitted, Rotations, Events, Rescans,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Server serves the /metrics endpoint.
type Server struct {
	srv *http.Server
}

// Start registers the collectors on the default registry and serves
// /metrics on addr. Diagnostics only: failure to serve never stops
// the follow loop.
func Start(addr string) (*Server, error) {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
	return &Server{srv: srv}, nil
}

// Stop shuts the endpoint down.
func (s *Server) Stop() error {
	return s.srv.Shutdown(context.Background())
}
