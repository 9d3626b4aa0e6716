package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_sessions_started_total",
			Help: "Total runs started",
		},
	)

	SessionsStopped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_sessions_stopped_total",
			Help: "Total runs stopped, by reason",
		},
		[]string{"reason"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stride_active_sessions",
			Help: "Number of sessions hosted in memory",
		},
	)

	// Sensor metrics
	StepsCounted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_steps_counted_total",
			Help: "Total steps counted across all runs",
		},
	)

	SensorEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_sensor_events_total",
			Help: "Step detector readings received by running sessions",
		},
		[]string{"counted"},
	)

	// Command metrics
	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_rejections_total",
			Help: "Commands rejected in the current session state",
		},
		[]string{"command", "code"},
	)

	SummariesShown = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_summaries_shown_total",
			Help: "Summaries produced for finished runs",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		SessionsStopped,
		ActiveSessions,
		StepsCounted,
		SensorEvents,
		Rejections,
		SummariesShown,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (systemd socket activation)
}

func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
