// Package httpapi assembles the public HTTP surface.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pawnval/pkg/platform/middleware/logging"
	"pawnval/pkg/platform/middleware/metadata"
	"pawnval/pkg/platform/middleware/requestid"
	"pawnval/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires the shared middleware stack and every module's routes.
func NewRouter(logger *slog.Logger, modules ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(logging.Recovery(logger))
	r.Use(logging.Logger(logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(metadata.Tenant)

	for _, m := range modules {
		m.Register(r)
	}
	return r
}
