package httpapi

import (
	"context"
	"encoding/json"
	"image"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"artifyd/internal/host"
	"artifyd/internal/pipeline"
)

// Service defines the methods required by the HTTP API layer.
// *host.Host satisfies it.
type Service interface {
	Info() host.Info
	TextToImage(ctx context.Context, p pipeline.TextToImageParams) (image.Image, error)
	ImageToImage(ctx context.Context, p pipeline.ImageToImageParams) (image.Image, error)
}

const defaultMaxBodyBytes int64 = 16 << 20

// CORSOptions configures cross-origin access. Disabled when Enabled is false.
type CORSOptions struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// Options configures NewMux.
type Options struct {
	Logger zerolog.Logger
	// MaxBodyBytes caps JSON request bodies. Zero means 16 MiB.
	MaxBodyBytes int64
	CORS         CORSOptions
	// BaseContext is canceled on shutdown; in-flight generations observe it
	// alongside the request context.
	BaseContext context.Context
}

type server struct {
	svc     Service
	log     zerolog.Logger
	maxBody int64
	baseCtx context.Context
}

// NewMux builds the HTTP router.
func NewMux(svc Service, opts Options) http.Handler {
	s := &server{svc: svc, log: opts.Logger, maxBody: opts.MaxBodyBytes, baseCtx: opts.BaseContext}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBodyBytes
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORS.AllowedOrigins,
			AllowedMethods:   opts.CORS.AllowedMethods,
			AllowedHeaders:   opts.CORS.AllowedHeaders,
			AllowCredentials: opts.CORS.AllowCredentials,
			MaxAge:           300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// JSON routes are compressed; PNG streams are already compressed.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, "application/json"))
		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)
		r.Post("/generate/img2img", s.handleImageToImage)
	})
	r.Get("/generate/text2img", s.handleTextToImage)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/openapi.json", handleOpenAPI)
	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
