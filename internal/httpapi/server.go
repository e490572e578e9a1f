// Package httpapi exposes the analyzer over HTTP: the JSON API used by the
// web UI, an Arrow export of activations, run history, and ops endpoints.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"patchscope/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ModelInfo() (types.ModelInfo, error)
	Activations(ctx context.Context, prompt string, layers []int) (*types.ActivationsResult, error)
	Patchscope(ctx context.Context, req types.PatchscopeRequest) (*types.PatchscopeResult, error)
	Loaded() bool
}

// ModelLister backs GET /api/models.
type ModelLister interface {
	List() []types.Model
}

// RunStore backs the /api/runs endpoints.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, limit int) ([]types.Run, error)
}

type options struct {
	models ModelLister
	runs   RunStore
	auth   func(http.Handler) http.Handler
}

// Option configures optional collaborators of the router.
type Option func(*options)

// WithModels enables GET /api/models.
func WithModels(m ModelLister) Option { return func(o *options) { o.models = m } }

// WithRuns enables GET /api/runs and GET /api/runs/{id}.
func WithRuns(s RunStore) Option { return func(o *options) { o.runs = s } }

// WithAuth guards every /api route except /api/health with mw.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(o *options) { o.auth = mw }
}

func NewMux(svc Service, opts ...Option) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	h := &handlers{svc: svc, models: o.models, runs: o.runs}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/", serveIndex)
	r.Get("/api/health", h.health)
	r.Group(func(r chi.Router) {
		if o.auth != nil {
			r.Use(o.auth)
		}
		r.Get("/api/model-info", h.modelInfo)
		r.Post("/api/activations", h.activations)
		r.Post("/api/activations/arrow", h.activationsArrow)
		r.Post("/api/patchscope", h.patchscope)
		if o.models != nil {
			r.Get("/api/models", h.listModels)
		}
		if o.runs != nil {
			r.Get("/api/runs", h.listRuns)
			r.Get("/api/runs/{id}", h.getRun)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Loaded() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}
