// Package handler exposes the valuation pipeline over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/orchestrator"
	"pawnval/pkg/platform/httputil"
	"pawnval/pkg/requestcontext"
)

// Error codes of the valuation endpoints.
const (
	CodeInvalidQuery = "invalid_query"
	CodeNoData       = "no_data"
)

const maxBodyBytes = 4 << 10

// Service produces estimates.
type Service interface {
	Estimate(ctx context.Context, q models.Query, pawnPercentage float64) (*models.Estimate, error)
}

// Handler wires valuation endpoints to the pipeline.
type Handler struct {
	service Service
	rates   PawnRates
	logger  *slog.Logger
}

// New constructs a valuation handler with its dependencies.
func New(service Service, rates PawnRates, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		rates:   rates,
		logger:  logger,
	}
}

// Register mounts valuation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/valuation/{query}", h.HandleGet)
	r.Post("/valuation", h.HandlePost)
}

// HandleGet handles GET /valuation/{query}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "query")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, CodeInvalidQuery, "query is not valid path text")
			return
		}
		raw = unescaped
	}
	h.serve(w, r, raw)
}

type postRequest struct {
	Query string `json:"query"`
}

// HandlePost handles POST /valuation with a JSON {"query": "..."} body.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httputil.DecodeJSON(r, &req, maxBodyBytes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, CodeInvalidQuery, err.Error())
		return
	}
	h.serve(w, r, req.Query)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, raw string) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenant := requestcontext.TenantID(ctx)
	start := time.Now()

	q, err := models.NormalizeQuery(raw)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, CodeInvalidQuery, "query must be 1 to 200 characters of item description")
		return
	}

	est, err := h.service.Estimate(ctx, q, h.rates.For(tenant))
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidQuery):
		httputil.WriteError(w, http.StatusBadRequest, CodeInvalidQuery, err.Error())
		return
	case errors.Is(err, orchestrator.ErrNoData):
		h.logger.InfoContext(ctx, "no valuation data",
			"request_id", requestID,
			"query", q.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		httputil.WriteError(w, http.StatusOK, CodeNoData, "Unable to find pricing data for this item")
		return
	default:
		level := slog.LevelError
		if ctx.Err() != nil {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "valuation failed",
			"request_id", requestID,
			"query", q.String(),
			"tenant", tenant,
			"error", err,
		)
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "")
		return
	}

	h.logger.InfoContext(ctx, "valuation served",
		"request_id", requestID,
		"query", q.String(),
		"tenant", tenant,
		"client_kind", requestcontext.ClientKind(ctx),
		"source", est.Source,
		"data_points", est.DataPoints,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromEstimate(est))
}
