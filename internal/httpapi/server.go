package httpapi

import (
	"net/http"
	"time"

	"spi-dashboard/internal/config"
)

// NewServer wraps handler with request logging. WriteTimeout leaves room for a
// full model round trip.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           RequestLogger(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
