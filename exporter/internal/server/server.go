package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// NewRegistry returns a registry holding exporter plus the Go runtime and
// process collectors.
func NewRegistry(exporter prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		exporter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("server: register collector: %w", err)
		}
	}
	return reg, nil
}

// Handler returns the exporter's HTTP routes:
//
//	GET /healthz       exporter liveness, never touches Jenkins
//	GET <metricsPath>  exposition of reg, one collection cycle per request
//	GET /              landing page linking to metricsPath
func Handler(reg *prometheus.Registry, metricsPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	metrics := promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      errorLog{},
		ErrorHandling: promhttp.ContinueOnError,
	}))

	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, metricsPath, metrics)
	if metricsPath != "/" {
		r.Get("/", landing(metricsPath))
	}
	return r
}

// Server serves the metrics handler until its context is cancelled.
type Server struct {
	httpSrv *http.Server
}

// New returns a Server listening on addr.
func New(addr string, h http.Handler) *Server {
	return &Server{httpSrv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
// In-flight scrapes get shutdownTimeout to finish.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Exporter listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// --- route handlers ---------------------------------------------------------

func healthz(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

var landingTmpl = template.Must(template.New("landing").Parse(`<html>
<head><title>Jenkins Exporter</title></head>
<body>
<h1>Jenkins Exporter</h1>
<p><a href="{{.}}">Metrics</a></p>
</body>
</html>
`))

func landing(metricsPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		landingTmpl.Execute(w, metricsPath) //nolint:errcheck
	}
}

// --- helpers ----------------------------------------------------------------

// requestLogger logs every request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.DebugContext(r.Context(), "server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// errorLog routes promhttp errors to slog.
type errorLog struct{}

func (errorLog) Println(v ...interface{}) {
	slog.Error("server: metrics exposition error", "err", fmt.Sprint(v...))
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
