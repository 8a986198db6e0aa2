package ports

import (
	"context"

	"meanRevBot/internal/domain"
)

// RawExperience is an experience row as persisted, before schema migration.
// Optional fields added across schema versions are pointers so that absence
// is distinguishable from a genuine zero.
type RawExperience struct {
	ID            int64
	SchemaVersion int
	Side          string
	Regime        *string
	RSI           float64
	VWAPDistance  float64
	ATR           float64
	VolumeRatio   float64
	Hour          int
	DayOfWeek     int
	RecentPNL     *float64
	Streak        *int
	TookTrade     bool
	PNL           float64
	DurationSec   int64
	RecordedAt    int64 // Unix seconds
}

// ExperienceRepository defines the persistence contract for experience
// records. The concrete storage medium (file, relational table, object store)
// lives behind this interface only; the in-memory store owns similarity
// queries and treats Append as its flush boundary.
type ExperienceRepository interface {
	// LoadAll retrieves every persisted experience row in insertion order.
	// Rows are returned unmigrated; the store upgrades them at load time.
	LoadAll(ctx context.Context) ([]RawExperience, error)
	// Append persists one experience record. Called once per closed position.
	Append(ctx context.Context, exp *domain.Experience) (int64, error)
	// Count returns the number of persisted experiences.
	Count(ctx context.Context) (int64, error)
}
