package httpserver

import (
	"net/http"
	"time"

	"pawnval/internal/platform/config"
)

// New builds an HTTP server with the configured timeouts.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return NewWithAddr(cfg.Addr, cfg, handler)
}

// NewWithAddr is New bound to addr instead of cfg.Addr; the metrics listener
// shares the main server's timeouts.
func NewWithAddr(addr string, cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
