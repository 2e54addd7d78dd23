package breach

import (
	"context"

	"github.com/safespotlabs/geowatch/internal/geo"
)

// Store is the persistence interface for geofences and breach events.
//
// ListActiveGeofences returns active fences ordered by creation time
// descending; the detector evaluates them in that order. InsertBreach
// creates the audit row and assigns its ID. MarkAlerted is idempotent and
// must never undo the insert it follows.
type Store interface {
	ListActiveGeofences(ctx context.Context) ([]*Geofence, error)
	InsertBreach(ctx context.Context, userID int64, geofenceID string, at geo.Point, score int) (*Event, error)
	MarkAlerted(ctx context.Context, eventID string) error
	GetBreach(ctx context.Context, eventID string) (*Event, bool, error)
	ListBreachesByUser(ctx context.Context, userID int64, limit int) ([]*Event, error)
	Stats(ctx context.Context) (*Stats, error)
}
