// Package web serves the credit risk form, its JSON API and live scoring socket.
//
// Every submission runs the same pipeline regardless of channel: validate the
// profile, encode it against the schema, score it with the injected evaluator and
// optionally journal the result. When the model failed to load the server stays
// up, shows a static error page and refuses submissions with 503.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync"
	"time"

	"credit-risk/internal/common"
	"credit-risk/internal/features"
	"credit-risk/internal/metrics"
	"credit-risk/internal/ml"
	"credit-risk/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Submission channels, used as metric labels and journal tags.
const (
	ChannelForm = "form"
	ChannelAPI  = "api"
	ChannelWS   = "ws"
)

const (
	apiPrefix    = "/api/v1"
	maxBodyBytes = 64 << 10
)

// Scorer is the part of *ml.Evaluator the handlers need.
type Scorer interface {
	Evaluate(v features.Vector) (ml.Result, error)
	Health() ml.HealthStatus
	Metadata() ml.ModelMetadata
}

// Journal is the part of *storage.Store the handlers need.
type Journal interface {
	Append(channel string, p features.ApplicantProfile, r ml.Result) (storage.Record, error)
	Recent(limit int) ([]storage.Record, error)
	ExportFeaturesToCSV(w io.Writer, start, end time.Time) (int, error)
}

type Options struct {
	Addr         string
	Scorer       Scorer
	LoadErr      error // why Scorer is nil
	Schema       *features.Schema
	Journal      Journal
	JournalLimit int
	Metrics      *metrics.MetricsWrapper
	Gatherer     prometheus.Gatherer
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server owns the router, the HTTP server and the live scoring connections.
type Server struct {
	scorer       Scorer
	loadErr      error
	schema       *features.Schema
	journal      Journal
	journalLimit int
	metrics      *metrics.MetricsWrapper
	gatherer     prometheus.Gatherer
	page         *template.Template
	upgrader     websocket.Upgrader
	router       *mux.Router
	server       *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	isRunning bool
	mu        sync.Mutex
}

// New wires the routes. A nil Scorer puts the server in the unavailable state.
func New(opts Options) *Server {
	if opts.Schema == nil {
		opts.Schema = features.DefaultSchema()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.JournalLimit <= 0 {
		opts.JournalLimit = common.DefaultJournalLimit
	}
	switch {
	case opts.Scorer != nil:
		opts.LoadErr = nil
	case opts.LoadErr == nil:
		opts.LoadErr = ml.ErrModelUnavailable
	case !errors.Is(opts.LoadErr, ml.ErrModelUnavailable):
		opts.LoadErr = fmt.Errorf("%w: %w", ml.ErrModelUnavailable, opts.LoadErr)
	}

	s := &Server{
		scorer:       opts.Scorer,
		loadErr:      opts.LoadErr,
		schema:       opts.Schema,
		journal:      opts.Journal,
		journalLimit: opts.JournalLimit,
		metrics:      opts.Metrics,
		gatherer:     opts.Gatherer,
		page:         template.Must(template.New("page").Funcs(templateFuncs).Parse(pageTemplate)),
		upgrader:     websocket.Upgrader{CheckOrigin: sameOrigin},
		clients:      make(map[*websocket.Conn]bool),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.handlePredictForm).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// API routes sit on the root router: a mux subrouter answers a method
	// mismatch with 404 instead of 405.
	r.HandleFunc(apiPrefix+"/predict", s.handleAPIPredict).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/schema", s.handleSchema).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/model", s.handleModel).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/predictions", s.handlePredictions).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/predictions/export.csv", s.handleExport).Methods(http.MethodGet)
	s.router = r

	readTimeout, writeTimeout := opts.ReadTimeout, opts.WriteTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	if s.metrics != nil {
		s.metrics.ModelLoaded(s.scorer != nil)
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Available reports whether a model is loaded.
func (s *Server) Available() bool { return s.scorer != nil }

// Start begins serving in the background. The returned channel receives the
// listener error if the server stops for any reason other than Stop.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil, fmt.Errorf("web server is already running")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", s.server.Addr).
			Bool("model_loaded", s.scorer != nil).
			Bool("journal", s.journal != nil).
			Msg("starting web server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("web server failed")
			errCh <- err
		}
		close(errCh)
	}()

	s.isRunning = true
	return errCh, nil
}

// Stop closes live connections and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown web server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("web server stopped")
	return nil
}

// sameOrigin accepts browsers on this host and non-browser clients that send no
// Origin header.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
