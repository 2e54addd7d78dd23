package breachapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/safespotlabs/geowatch/internal/breach"
)

type checkRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	UserID    int64   `json:"user_id"`
}

type checkResponse struct {
	Breaches []*breach.Breach `json:"breaches"`
}

func (a *API) handleCheckLocation(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int64("geowatch.user.id", req.UserID))

	breaches, err := a.svc.CheckLocation(r.Context(), req.Latitude, req.Longitude, req.UserID)
	switch {
	case errors.Is(err, breach.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	case err != nil && len(breaches) == 0:
		// Nothing was persisted; surface the failure.
		a.logger.Error(r.Context(), err, "location check failed", "user_id", req.UserID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	case err != nil:
		// Partial persistence failure: the returned list holds exactly the
		// hits that made it to the audit trail, so serve those.
		a.logger.Error(r.Context(), err, "location check partially failed", "user_id", req.UserID)
	}

	span.SetAttributes(attribute.Int("geowatch.breaches.count", len(breaches)))

	if breaches == nil {
		breaches = []*breach.Breach{}
	}
	writeJSON(w, http.StatusOK, checkResponse{Breaches: breaches})
}
