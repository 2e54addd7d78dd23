package breach

import (
	"errors"
	"time"

	"github.com/safespotlabs/geowatch/internal/geo"
)

// RiskTier classifies how dangerous a geofence is. It drives the score
// band, the notification priority, and the recommendation text.
type RiskTier string

const (
	TierLow    RiskTier = "LOW"
	TierMedium RiskTier = "MEDIUM"
	TierHigh   RiskTier = "HIGH"
)

// ZoneKind classifies what a geofence represents.
type ZoneKind string

const (
	KindSafeZone   ZoneKind = "SAFE_ZONE"
	KindAlertZone  ZoneKind = "ALERT_ZONE"
	KindRestricted ZoneKind = "RESTRICTED"
)

// Priority is the notification priority label derived from a risk tier.
func (t RiskTier) Priority() string {
	switch t {
	case TierHigh:
		return "urgent"
	case TierMedium:
		return "warning"
	default:
		return "info"
	}
}

// ScoreBand returns the inclusive [lo, hi] score range for the tier.
func (t RiskTier) ScoreBand() (lo, hi int) {
	switch t {
	case TierHigh:
		return 80, 100
	case TierMedium:
		return 40, 79
	default:
		return 0, 39
	}
}

// Geofence is a named polygonal region owned by a user. The engine reads
// geofences only; creation and editing belong to an external CRUD service,
// and deactivation is a soft delete so breach history stays intact.
type Geofence struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Vertices    []geo.Point `json:"vertices"`
	Tier        RiskTier    `json:"risk_tier"`
	Kind        ZoneKind    `json:"zone_kind"`
	OwnerID     int64       `json:"owner_id"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Event is one persisted breach: a user's position falling inside an
// active geofence. Rows are immutable once written except for AlertSent,
// which flips false to true exactly once after a dispatch attempt.
type Event struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	GeofenceID string    `json:"geofence_id"`
	Location   geo.Point `json:"location"`
	RiskScore  int       `json:"risk_score"`
	AlertSent  bool      `json:"alert_sent"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Breach is the transient per-hit result returned by CheckLocation. It is
// assembled for the caller and never persisted as its own entity; EventID
// links it to the audit row.
type Breach struct {
	GeofenceID      string   `json:"geofence_id"`
	GeofenceName    string   `json:"geofence_name"`
	Tier            RiskTier `json:"risk_tier"`
	RiskScore       int      `json:"risk_score"`
	Recommendations []string `json:"recommendations"`
	EventID         string   `json:"event_id"`
}

// Stats is the read-only aggregate exposed for operator dashboards.
type Stats struct {
	TotalGeofences  int `json:"total_geofences"`
	ActiveGeofences int `json:"active_geofences"`
	TotalBreaches   int `json:"total_breaches"`
	BreachesLast24h int `json:"breaches_last_24h"`
}

// ErrValidation marks input validation failures. Callers detect it with
// errors.Is to map to a 400-style response; no side effects have occurred
// when it is returned.
var ErrValidation = errors.New("invalid input")
