package breach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/safespotlabs/geowatch/internal/geo"
)

// Service is the breach detection orchestrator: one CheckLocation call
// evaluates a position against every active geofence, persists a breach
// event per hit, and fans out notifications asynchronously.
type Service struct {
	store      Store
	scorer     *Scorer
	dispatcher *Dispatcher
	logger     log.Logger
	metrics    *Metrics
}

// NewService creates the detection service.
func NewService(store Store, scorer *Scorer, dispatcher *Dispatcher, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:      store,
		scorer:     scorer,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckLocation evaluates (lat, lng) for userID against all active
// geofences and returns one Breach per containment hit, in the fence
// fetch order (creation time descending).
//
// Input violations return ErrValidation with zero side effects. A
// persistence failure for one fence skips that fence, is joined into the
// returned error, and never rolls back earlier hits; the returned list
// always holds exactly the hits that were persisted. Dispatch runs on a
// detached context after each insert and cannot affect either return
// value.
func (s *Service) CheckLocation(ctx context.Context, lat, lng float64, userID int64) ([]*Breach, error) {
	if err := validateCheck(lat, lng, userID); err != nil {
		s.metrics.check("invalid", 0, 0)
		return nil, err
	}

	start := time.Now()
	at := geo.Point{Lat: lat, Lng: lng}

	fences, err := s.store.ListActiveGeofences(ctx)
	if err != nil {
		s.metrics.check("error", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("list active geofences: %w", err)
	}

	L := s.logger.With("user_id", userID)

	var (
		breaches []*Breach
		errs     []error
	)
	for _, gf := range fences {
		// Malformed rings are a data problem upstream of containment;
		// they can never match.
		if len(gf.Vertices) < 3 {
			L.Warn(ctx, "skipping geofence with degenerate ring", "geofence_id", gf.ID, "vertices", len(gf.Vertices))
			continue
		}
		if !geo.Contains(at, gf.Vertices) {
			continue
		}

		score := s.scorer.Score(gf.Tier)
		recs := s.scorer.Recommendations(gf.Tier, gf.Kind)

		// Persist before notifying, always: a crash mid-dispatch must
		// still leave an auditable record.
		ev, err := s.store.InsertBreach(ctx, userID, gf.ID, at, score)
		if err != nil {
			L.Error(ctx, err, "breach insert failed", "geofence_id", gf.ID)
			s.metrics.insertFailure()
			errs = append(errs, fmt.Errorf("persist breach for geofence %s: %w", gf.ID, err))
			continue
		}

		b := &Breach{
			GeofenceID:      gf.ID,
			GeofenceName:    gf.Name,
			Tier:            gf.Tier,
			RiskScore:       score,
			Recommendations: recs,
			EventID:         ev.ID,
		}
		breaches = append(breaches, b)
		s.metrics.breachDetected(gf.Tier)

		L.Info(ctx, "breach detected",
			"geofence_id", gf.ID,
			"geofence", gf.Name,
			"tier", string(gf.Tier),
			"score", score,
			"event_id", ev.ID,
		)

		// Fire-and-forget: the caller's result must not wait on delivery,
		// and request cancellation must not strand the alert.
		go s.dispatcher.Dispatch(context.WithoutCancel(ctx), userID, b, at)
	}

	s.metrics.check("ok", time.Since(start).Seconds(), len(fences))
	return breaches, errors.Join(errs...)
}

// GetBreach retrieves a persisted breach event by ID.
func (s *Service) GetBreach(ctx context.Context, eventID string) (*Event, bool, error) {
	return s.store.GetBreach(ctx, eventID)
}

// ListBreachesByUser returns up to limit recent breach events for a user.
func (s *Service) ListBreachesByUser(ctx context.Context, userID int64, limit int) ([]*Event, error) {
	return s.store.ListBreachesByUser(ctx, userID, limit)
}

// Stats returns the operator dashboard aggregate.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

func validateCheck(lat, lng float64, userID int64) error {
	var errs []error
	if !geo.ValidLat(lat) {
		errs = append(errs, fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrValidation, lat))
	}
	if !geo.ValidLng(lng) {
		errs = append(errs, fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrValidation, lng))
	}
	if userID <= 0 {
		errs = append(errs, fmt.Errorf("%w: user id must be positive, got %d", ErrValidation, userID))
	}
	return errors.Join(errs...)
}
