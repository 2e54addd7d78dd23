// Package breachapi exposes the breach engine over HTTP.
package breachapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/safespotlabs/geowatch/internal/breach"
)

// DetectionService defines the business operations breachapi needs.
type DetectionService interface {
	CheckLocation(ctx context.Context, lat, lng float64, userID int64) ([]*breach.Breach, error)
	GetBreach(ctx context.Context, eventID string) (*breach.Event, bool, error)
	ListBreachesByUser(ctx context.Context, userID int64, limit int) ([]*breach.Event, error)
	Stats(ctx context.Context) (*breach.Stats, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    DetectionService
}

// New creates a new API handler.
func New(logger log.Logger, svc DetectionService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("detection service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/locations/check", a.handleCheckLocation)
		r.Get("/breaches", a.handleListBreaches)
		r.Get("/breaches/{id}", a.handleGetBreach)
		r.Get("/stats", a.handleStats)
	})
}

func (a *API) handleGetBreach(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("geowatch.breach.id", id))

	ev, ok, err := a.svc.GetBreach(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get breach event", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleListBreaches(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, `{"error":"user_id must be a positive integer"}`, http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := a.svc.ListBreachesByUser(r.Context(), userID, limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list breach events", "user_id", userID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*breach.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"breaches": events})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Stats(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to aggregate stats")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
