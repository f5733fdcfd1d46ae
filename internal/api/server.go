package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/research/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const statusLine = "🟢 Developer Tools Research API is live"

// Researcher runs one research request and reports the run ID it was recorded under.
type Researcher interface {
	RunTracked(ctx context.Context, query string) (string, research.ResearchResult, error)
}

type Server struct {
	researcher Researcher
	store      store.Store
	events     EventSubscriber
	metrics    http.Handler
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer wires the HTTP surface. Without a subscriber /runs/{id}/events only replays
// stored events; without a metrics handler /metrics is not served.
func NewServer(researcher Researcher, store store.Store, subscriber EventSubscriber, metrics http.Handler, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		researcher: researcher,
		store:      store,
		events:     subscriber,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.CORSAllowOrigins))

	r.Get("/", s.root)
	r.Post("/run-research", s.runResearch)
	r.Post("/research", s.research)
	r.Get("/runs", s.listRuns)
	r.Get("/runs/{id}", s.getRun)
	r.Get("/runs/{id}/events", s.streamEvents)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodGet {
		switch cleanPath {
		case "/health", "/ready", "/metrics", "/runs":
			return true
		}
		if strings.HasPrefix(cleanPath, "/runs/") && strings.HasSuffix(cleanPath, "/events") {
			return true
		}
	}
	return method == http.MethodOptions
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": statusLine})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	switch {
	case s.store == nil:
		subsystems["store"] = subsystemStatus{Status: "skipped"}
	default:
		if err := s.store.Ping(ctx); err != nil {
			subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
		} else {
			subsystems["store"] = subsystemStatus{Status: "ok"}
		}
	}

	if s.researcher == nil {
		subsystems["engine"] = subsystemStatus{Status: "error", Error: "research engine not configured"}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["engine"] = subsystemStatus{Status: "ok"}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, value, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

// corsMiddleware echoes the request origin when it is on the allow-list. A "*" entry
// allows any origin.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	origins := map[string]struct{}{}
	wildcard := false
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			wildcard = true
			continue
		}
		origins[origin] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Add("Vary", "Origin")
				if _, ok := origins[origin]; ok || wildcard {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					requested := r.Header.Get("Access-Control-Request-Headers")
					if requested == "" {
						requested = "Content-Type"
					}
					w.Header().Set("Access-Control-Allow-Headers", requested)
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("research api listening", zap.String("addr", addr))
	return server.ListenAndServe()
}
