// internal/domain/signal/model.go

package signal

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable indicates the persistence store could not be reached.
// Callers degrade to "no known signal, treat as collection-needed" rather
// than failing the request.
var ErrStoreUnavailable = errors.New("signal store unavailable")

// ErrNotFound indicates no signal data exists for the requested location.
var ErrNotFound = errors.New("signal not found")

// Kind identifies the type of interest signal observed for a location.
type Kind string

const (
	KindSearch            Kind = "search"
	KindAlertSubscription Kind = "alert_subscription"
)

// InterestSignal is one aggregated demand counter for a location.
// Counters are monotonically non-decreasing; no decay is applied.
type InterestSignal struct {
	LocationKey    string
	Kind           Kind
	Count          int
	LastObservedAt time.Time
}

// AlertLocation is one user's alert subscription for a location.
type AlertLocation struct {
	ID            string
	UserID        string
	LocationKey   string
	City          string
	Latitude      float64
	Longitude     float64
	DisplayName   string
	ThresholdType string
	ThresholdVal  float64
	PriorityScore float64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Snapshot is the aggregate view of all interest signals for one location,
// joined with its collection state. It is the input to admission control
// and to priority scoring.
type Snapshot struct {
	LocationKey          string
	City                 string
	Latitude             float64
	Longitude            float64
	AlertSubscriberCount int
	SearchCount          int
	DemandBoost          float64
	LastCollectedAt      *time.Time
	BaseInterval         time.Duration
}

// PriorityLocation is one row of the ranked priority list.
type PriorityLocation struct {
	LocationKey          string  `json:"location_key"`
	City                 string  `json:"city"`
	Latitude             float64 `json:"latitude"`
	Longitude            float64 `json:"longitude"`
	Score                float64 `json:"score"`
	AlertSubscriberCount int     `json:"alert_subscriber_count"`
	SearchCount          int     `json:"search_count"`
}

// Candidate is a known location returned from a bounding-box range query,
// used for nearest-neighbour resolution and directory grouping.
type Candidate struct {
	LocationKey string
	City        string
	Latitude    float64
	Longitude   float64
	UserCount   int
	DataDays    int
	EarliestAt  *time.Time
	LatestAt    *time.Time
}

// Store is the persistence contract for interest signals.
type Store interface {
	// RecordSearch increments the search counter for a location, creating
	// the row on first observation, and returns the new count. Repeated
	// identical calls are safe to retry.
	RecordSearch(ctx context.Context, key, city string, lat, lng float64) (int, error)

	// SetSearchPriority records the bucketed search priority for a
	// location. The stored value never decreases.
	SetSearchPriority(ctx context.Context, key string, score float64) error

	// UpsertAlertLocation creates or refreshes a per-(user, location)
	// alert subscription. Re-registering never lowers anything.
	UpsertAlertLocation(ctx context.Context, alert AlertLocation) error

	// RaiseDemandBoost raises (never lowers) the demand boost recorded for
	// a location in the collection cache.
	RaiseDemandBoost(ctx context.Context, key string, boost float64) error

	// SnapshotFor returns the aggregated signal snapshot for one location.
	// Returns ErrNotFound when the location has never been observed.
	SnapshotFor(ctx context.Context, key string) (*Snapshot, error)

	// PriorityRows returns the union of alert-subscribed and search-only
	// locations with their counters, at most limit rows.
	PriorityRows(ctx context.Context, limit int) ([]Snapshot, error)

	// CandidatesNear returns known locations inside a coordinate bounding
	// box, for distance-based disambiguation.
	CandidatesNear(ctx context.Context, lat, lng, latRange, lngRange float64) ([]Candidate, error)
}
