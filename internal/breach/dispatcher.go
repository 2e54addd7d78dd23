package breach

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/safespotlabs/geowatch/internal/geo"
)

// Channel delivers notifications to users and operators. Both sends may
// fail; the Dispatcher treats any failure as non-fatal.
type Channel interface {
	SendToUser(ctx context.Context, userID int64, n *UserNotification) error
	SendToOperators(ctx context.Context, e *OperatorEscalation) error
}

// UserNotification is the payload pushed to the breached user.
type UserNotification struct {
	GeofenceName    string    `json:"geofence_name"`
	Tier            RiskTier  `json:"risk_tier"`
	Priority        string    `json:"priority"`
	Location        geo.Point `json:"location"`
	Recommendations []string  `json:"recommendations"`
	Message         string    `json:"message"`
}

// OperatorEscalation is the payload pushed to operators for MEDIUM and
// HIGH tier breaches.
type OperatorEscalation struct {
	UserID             int64        `json:"user_id"`
	GeofenceName       string       `json:"geofence_name"`
	Tier               RiskTier     `json:"risk_tier"`
	ImmediateAttention bool         `json:"immediate_attention"`
	UserContext        UserContext  `json:"user_context"`
	Detail             BreachDetail `json:"breach_detail"`
}

// UserContext identifies the subject and their last known position.
type UserContext struct {
	UserID    int64     `json:"user_id"`
	LastKnown geo.Point `json:"last_known_location"`
}

// BreachDetail carries the detection specifics for operator triage.
type BreachDetail struct {
	GeofenceID      string   `json:"geofence_id"`
	RiskScore       int      `json:"risk_score"`
	Recommendations []string `json:"recommendations"`
}

// Dispatcher fans a breach out to the notification channel and marks the
// event as alerted. It never returns an error: channel failures are
// logged and swallowed so the detection path stays clean.
//
// AlertSent is set after the dispatch attempt whether or not delivery
// succeeded, so the flag means "attempted", not "delivered". Downstream
// consumers depend on that reading; do not tighten it here without a
// product decision.
type Dispatcher struct {
	channel Channel
	store   Store
	logger  log.Logger
	metrics *Metrics
}

// NewDispatcher creates a Dispatcher. A nil channel is a valid, fully
// functional configuration: detection and persistence proceed with zero
// notification side effects. A nil logger falls back to Nop.
func NewDispatcher(channel Channel, store Store, logger log.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		channel: channel,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Dispatch sends the user notification, escalates to operators for
// MEDIUM/HIGH tiers, and finally marks the event alerted. Every failure
// is contained here.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, b *Breach, at geo.Point) {
	L := d.logger.With("event_id", b.EventID, "geofence", b.GeofenceName, "tier", string(b.Tier))

	if d.channel != nil {
		n := &UserNotification{
			GeofenceName:    b.GeofenceName,
			Tier:            b.Tier,
			Priority:        b.Tier.Priority(),
			Location:        at,
			Recommendations: b.Recommendations,
			Message:         userMessage(b.Tier, b.GeofenceName),
		}
		if err := d.channel.SendToUser(ctx, userID, n); err != nil {
			L.Error(ctx, err, "user notification failed", "user_id", userID)
			d.metrics.dispatch("user", "error")
		} else {
			d.metrics.dispatch("user", "ok")
		}

		if b.Tier == TierMedium || b.Tier == TierHigh {
			esc := &OperatorEscalation{
				UserID:             userID,
				GeofenceName:       b.GeofenceName,
				Tier:               b.Tier,
				ImmediateAttention: b.Tier == TierHigh,
				UserContext:        UserContext{UserID: userID, LastKnown: at},
				Detail: BreachDetail{
					GeofenceID:      b.GeofenceID,
					RiskScore:       b.RiskScore,
					Recommendations: b.Recommendations,
				},
			}
			if err := d.channel.SendToOperators(ctx, esc); err != nil {
				L.Error(ctx, err, "operator escalation failed", "user_id", userID)
				d.metrics.dispatch("operator", "error")
			} else {
				d.metrics.dispatch("operator", "ok")
			}
		}
	}

	// Mark attempted regardless of delivery outcome. A failure here must
	// not undo the breach row; it is logged and dropped.
	if err := d.store.MarkAlerted(ctx, b.EventID); err != nil {
		L.Error(ctx, err, "mark alerted failed")
		d.metrics.markAlertedFailure()
	}
}

func userMessage(tier RiskTier, name string) string {
	switch tier {
	case TierHigh:
		return fmt.Sprintf("URGENT: you have entered %s, a high risk area. Follow the safety recommendations now.", name)
	case TierMedium:
		return fmt.Sprintf("Warning: you have entered %s, a medium risk area. Stay alert.", name)
	default:
		return fmt.Sprintf("Heads up: you have entered %s. Baseline precautions apply.", name)
	}
}
