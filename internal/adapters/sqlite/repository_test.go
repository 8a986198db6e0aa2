package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meanRevBot/internal/adapters/logger"
	"meanRevBot/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "experiences.db"),
		Logger: logger.NewStdLogger(logger.LevelError),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleExperience(side domain.Side, pnl float64, at time.Time) *domain.Experience {
	return &domain.Experience{
		State: domain.MarketState{
			RSI:          31.2,
			VWAPDistance: -0.012,
			ATR:          4.75,
			VolumeRatio:  1.4,
			Hour:         15,
			DayOfWeek:    2,
			RecentPNL:    12.5,
			Streak:       2,
			Side:         side,
			Regime:       domain.RegimeVolatile,
		},
		TookTrade:  true,
		PNL:        pnl,
		Duration:   42 * time.Minute,
		RecordedAt: at,
	}
}

func TestRepository_AppendAndLoadAll(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2026, 3, 2, 15, 42, 0, 0, time.UTC)

	id1, err := repo.Append(ctx, sampleExperience(domain.SideLong, 37.5, at))
	require.NoError(t, err)
	id2, err := repo.Append(ctx, sampleExperience(domain.SideShort, -12.25, at.Add(time.Hour)))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	rows, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, id1, first.ID)
	assert.Equal(t, domain.ExperienceSchemaVersion, first.SchemaVersion)
	assert.Equal(t, "long", first.Side)
	require.NotNil(t, first.Regime)
	assert.Equal(t, "VOLATILE", *first.Regime)
	assert.InDelta(t, 31.2, first.RSI, 1e-9)
	assert.InDelta(t, -0.012, first.VWAPDistance, 1e-9)
	require.NotNil(t, first.RecentPNL)
	assert.InDelta(t, 12.5, *first.RecentPNL, 1e-9)
	require.NotNil(t, first.Streak)
	assert.Equal(t, 2, *first.Streak)
	assert.True(t, first.TookTrade)
	assert.InDelta(t, 37.5, first.PNL, 1e-9)
	assert.Equal(t, int64(42*60), first.DurationSec)
	assert.Equal(t, at.Unix(), first.RecordedAt)

	assert.Equal(t, "short", rows[1].Side)
	assert.InDelta(t, -12.25, rows[1].PNL, 1e-9)
}

func TestRepository_Count(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2026, 3, 2, 15, 42, 0, 0, time.UTC)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, sampleExperience(domain.SideLong, float64(i), at.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRepository_LoadAllReturnsLegacyRowsUnmigrated(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	// A schema-version-1 row predates regime, recent_pnl and streak.
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO experiences (schema_version, side, rsi, vwap_distance, atr, volume_ratio,
		                         hour, day_of_week, took_trade, pnl, duration_sec, recorded_at)
		VALUES (1, 'long', 28.0, -0.02, 5.0, 1.1, 10, 3, 1, 55.0, 1800, 1700000000)`)
	require.NoError(t, err)

	rows, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	raw := rows[0]
	assert.Equal(t, 1, raw.SchemaVersion)
	assert.Nil(t, raw.Regime)
	assert.Nil(t, raw.RecentPNL)
	assert.Nil(t, raw.Streak)
	assert.Equal(t, "long", raw.Side)
}

func TestRepository_ReopenSeesPersistedRows(t *testing.T) {
	ctx := context.Background()
	log := logger.NewStdLogger(logger.LevelError)
	path := filepath.Join(t.TempDir(), "experiences.db")

	repo, err := NewRepository(Config{DBPath: path, Logger: log})
	require.NoError(t, err)
	_, err = repo.Append(ctx, sampleExperience(domain.SideLong, 10, time.Now()))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := NewRepository(Config{DBPath: path, Logger: log})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
