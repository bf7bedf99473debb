package server

import (
	"log/slog"
	"net/http"
)

// Config contains router options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// MaxBodyBytes caps request body size. Zero disables the limit.
	MaxBodyBytes int64
}

// DefaultConfig allows any origin and bodies up to 512 MiB.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   512 << 20,
	}
}

// NewRouter registers the API routes on a method-aware ServeMux and wraps
// it in the middleware chain.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	for pattern, handler := range map[string]http.HandlerFunc{
		"GET /health":            h.Health,
		"POST /jobs":             h.CreateJob,
		"GET /jobs":              h.ListJobs,
		"GET /jobs/{id}":         h.GetJob,
		"POST /jobs/{id}/cancel": h.CancelJob,
		"DELETE /jobs/{id}":      h.DeleteJob,
		"POST /preview":          h.Preview,
	} {
		mux.Handle(pattern, handler)
	}

	return ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
		BodyLimitMiddleware(cfg.MaxBodyBytes),
	)(mux)
}
