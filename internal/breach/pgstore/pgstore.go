// Package pgstore provides a PostgreSQL implementation of breach.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/safespotlabs/geowatch/internal/breach"
	"github.com/safespotlabs/geowatch/internal/geo"
)

var tracer = otel.Tracer("github.com/safespotlabs/geowatch/internal/breach/pgstore")

//go:embed schema.sql
var schema string

// Store persists geofences and breach events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const geofenceColumns = `id, name, description, vertices, risk_tier, zone_kind,
	owner_id, active, created_at, updated_at`

const eventColumns = `id, user_id, geofence_id, latitude, longitude,
	risk_score, alert_sent, occurred_at`

// PutGeofence inserts or replaces a geofence row. Geofence CRUD belongs
// to an external service; this exists for seeding and tests.
func (s *Store) PutGeofence(ctx context.Context, gf *breach.Geofence) (*breach.Geofence, error) {
	ctx, span := tracer.Start(ctx, "pgstore.PutGeofence", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	cp := *gf
	if cp.ID == "" {
		cp.ID = ulid.Make().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()

	verts, err := json.Marshal(cp.Vertices)
	if err != nil {
		return nil, fmt.Errorf("marshal vertices: %w", err)
	}

	query := `INSERT INTO geofences (` + geofenceColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (id) DO UPDATE SET
		name        = EXCLUDED.name,
		description = EXCLUDED.description,
		vertices    = EXCLUDED.vertices,
		risk_tier   = EXCLUDED.risk_tier,
		zone_kind   = EXCLUDED.zone_kind,
		owner_id    = EXCLUDED.owner_id,
		active      = EXCLUDED.active,
		updated_at  = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		cp.ID, cp.Name, cp.Description, verts, string(cp.Tier), string(cp.Kind),
		cp.OwnerID, cp.Active, cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upsert geofence: %w", err)
	}
	return &cp, nil
}

// ListActiveGeofences returns active fences ordered by creation time
// descending.
func (s *Store) ListActiveGeofences(ctx context.Context) ([]*breach.Geofence, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListActiveGeofences", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + geofenceColumns + ` FROM geofences WHERE active ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query geofences: %w", err)
	}
	defer rows.Close()

	var out []*breach.Geofence
	for rows.Next() {
		gf, err := scanGeofence(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, gf)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan geofences: %w", err)
	}
	return out, nil
}

// InsertBreach creates a breach event row.
func (s *Store) InsertBreach(ctx context.Context, userID int64, geofenceID string, at geo.Point, score int) (*breach.Event, error) {
	ctx, span := tracer.Start(ctx, "pgstore.InsertBreach", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	ev := &breach.Event{
		ID:         ulid.Make().String(),
		UserID:     userID,
		GeofenceID: geofenceID,
		Location:   at,
		RiskScore:  score,
		OccurredAt: time.Now(),
	}

	query := `INSERT INTO breach_events (` + eventColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.UserID, ev.GeofenceID, ev.Location.Lat, ev.Location.Lng,
		ev.RiskScore, ev.AlertSent, ev.OccurredAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("insert breach: %w", err)
	}
	return ev, nil
}

// MarkAlerted flips alert-sent to true. Idempotent; unknown IDs are a
// no-op.
func (s *Store) MarkAlerted(ctx context.Context, eventID string) error {
	ctx, span := tracer.Start(ctx, "pgstore.MarkAlerted", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx, `UPDATE breach_events SET alert_sent = TRUE WHERE id = $1`, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("mark alerted: %w", err)
	}
	return nil
}

// GetBreach retrieves a breach event by ID.
func (s *Store) GetBreach(ctx context.Context, eventID string) (*breach.Event, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetBreach", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + eventColumns + ` FROM breach_events WHERE id = $1`
	ev, err := scanEvent(s.pool.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return ev, true, nil
}

// ListBreachesByUser returns up to limit events for a user, most recent
// first.
func (s *Store) ListBreachesByUser(ctx context.Context, userID int64, limit int) ([]*breach.Event, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListBreachesByUser", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM breach_events
	WHERE user_id = $1 ORDER BY occurred_at DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query breaches: %w", err)
	}
	defer rows.Close()

	var out []*breach.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("scan breaches: %w", err)
	}
	return out, nil
}

// Stats returns the dashboard aggregate in one round trip.
func (s *Store) Stats(ctx context.Context) (*breach.Stats, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Stats", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT
		(SELECT count(*) FROM geofences),
		(SELECT count(*) FROM geofences WHERE active),
		(SELECT count(*) FROM breach_events),
		(SELECT count(*) FROM breach_events WHERE occurred_at > now() - interval '24 hours')`

	st := &breach.Stats{}
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.TotalGeofences, &st.ActiveGeofences, &st.TotalBreaches, &st.BreachesLast24h,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func scanGeofence(row pgx.Row) (*breach.Geofence, error) {
	var (
		gf    breach.Geofence
		verts []byte
		tier  string
		kind  string
	)
	err := row.Scan(
		&gf.ID, &gf.Name, &gf.Description, &verts, &tier, &kind,
		&gf.OwnerID, &gf.Active, &gf.CreatedAt, &gf.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan geofence: %w", err)
	}
	if err := json.Unmarshal(verts, &gf.Vertices); err != nil {
		return nil, fmt.Errorf("unmarshal vertices: %w", err)
	}
	gf.Tier = breach.RiskTier(tier)
	gf.Kind = breach.ZoneKind(kind)
	return &gf, nil
}

func scanEvent(row pgx.Row) (*breach.Event, error) {
	var ev breach.Event
	err := row.Scan(
		&ev.ID, &ev.UserID, &ev.GeofenceID, &ev.Location.Lat, &ev.Location.Lng,
		&ev.RiskScore, &ev.AlertSent, &ev.OccurredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan breach event: %w", err)
	}
	return &ev, nil
}
