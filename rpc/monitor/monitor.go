package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc/monitor")

// HealthFunc reports whether the process is able to serve requests
type HealthFunc func() error

// Monitor serves the process metrics and a health check over HTTP.
//
//	GET /metrics  Prometheus text format of all VictoriaMetrics metrics (plus process metrics)
//	GET /healthz  200 if health returns nil, 503 otherwise
type Monitor struct {
	endpoint string
	health   HealthFunc
	debug    bool

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a monitor listening on endpoint (host:port). debug enables request logging.
func NewMonitor(endpoint string, health HealthFunc, debug bool) *Monitor {
	return &Monitor{
		endpoint: endpoint,
		health:   health,
		debug:    debug,
	}
}

// Start binds the endpoint and serves requests in the background
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", m.endpoint)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	if m.debug {
		mux.HandleFunc("GET /metrics", loggerMiddleware(m.handleMetrics))
		mux.HandleFunc("GET /healthz", loggerMiddleware(m.handleHealth))
	} else {
		mux.HandleFunc("GET /metrics", m.handleMetrics)
		mux.HandleFunc("GET /healthz", m.handleHealth)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	Logger.Infof("Starting monitoring server on %s", listener.Addr())

	server := m.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Monitoring server failed: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, nil before Start
func (m *Monitor) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Stop shuts the server down, waiting up to timeout for running requests
func (m *Monitor) Stop(timeout time.Duration) error {
	m.mu.Lock()
	server := m.server
	m.server, m.listener = nil, nil
	m.mu.Unlock()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (m *Monitor) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

func (m *Monitor) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if m.health != nil {
		if err := m.health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
