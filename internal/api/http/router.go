package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	auth "github.com/mind-engage/pbpd/internal/auth/middleware"
	"github.com/mind-engage/pbpd/internal/logging"
	"github.com/mind-engage/pbpd/internal/metrics"
	"github.com/mind-engage/pbpd/internal/predict"
	"github.com/mind-engage/pbpd/internal/rbac"
	"github.com/mind-engage/pbpd/internal/storage"
)

// Deps is everything the HTTP surface needs. Blobs, History, Metrics and
// Ready are optional.
type Deps struct {
	Service *predict.Service
	Blobs   storage.BlobStore
	History HistoryReader
	Metrics *metrics.Metrics
	Log     *zap.Logger

	// Auth nil disables login; every request then runs as AnonymousRole.
	Auth          *auth.AuthService
	Credentials   auth.Credentials
	AnonymousRole string

	CORSOrigins []string
	Timeout     time.Duration
	Ready       func(ctx context.Context) error
}

func NewRouter(d Deps) chi.Router {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = 60 * time.Second
	}
	if d.AnonymousRole == "" {
		d.AnonymousRole = rbac.RoleAdmin
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Middleware(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(d.Timeout))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length", "Content-Disposition", "Location", "X-Batch-ID", "X-Prediction-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	identify := auth.AnonymousRole(d.AnonymousRole)
	if d.Auth != nil {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Credentials))
		identify = auth.JWTMiddleware(d.Auth)
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/materials", MaterialsHandler(d.Service.Models()))

		ar.Group(func(pr chi.Router) {
			pr.Use(identify)

			pr.With(rbac.Require(rbac.PermPredict)).
				Post("/predict", PredictHandler(d.Service))
			pr.With(rbac.Require(rbac.PermPredict)).
				Post("/predict/report", PredictReportHandler(d.Service, d.Blobs, d.Log))
			pr.With(rbac.Require(rbac.PermBatch)).
				Post("/batch", BatchHandler(d.Service, d.Blobs, d.Log))

			if d.Blobs != nil {
				pr.With(rbac.Require(rbac.PermReportsView)).Group(func(br chi.Router) {
					MountArtifacts(br, d.Blobs)
				})
			}

			if d.History != nil {
				pr.Route("/history", func(hr chi.Router) {
					hr.Use(rbac.Require(rbac.PermHistoryView))
					hr.Get("/", ListHistoryHandler(d.History))
					hr.Get("/{id}", GetHistoryHandler(d.History))
					hr.Get("/batches/{id}", GetBatchHandler(d.History))
				})
			}
		})
	})
	return r
}
