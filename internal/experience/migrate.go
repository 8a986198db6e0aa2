package experience

import (
	"context"
	"time"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

// MigrateRecord upgrades one persisted experience row to the current schema.
// It is the single place schema evolution is handled; consumers only ever see
// fully populated records. Missing optional fields take documented defaults
// and are surfaced as data-quality events rather than silently absorbed:
//
//   - recent_pnl absent (schema v1): defaults to 0, the true domain default
//     for "no recent closed trades".
//   - streak absent (schema v1): defaults to 0 for the same reason.
//   - regime absent or unknown: defaults to NORMAL and is logged, because a
//     fabricated regime would bias the soft regime filter.
//
// A row whose side is unrecognizable is dropped (ok=false): defaulting the
// side would leak records across the long/short partition.
func MigrateRecord(ctx context.Context, raw ports.RawExperience, logger ports.Logger) (domain.Experience, bool) {
	side := domain.Side(raw.Side)
	if !side.IsValid() {
		logger.Warn(ctx, "Dropping experience row with invalid side", map[string]interface{}{
			"id": raw.ID, "side": raw.Side, "schemaVersion": raw.SchemaVersion})
		return domain.Experience{}, false
	}

	state := domain.MarketState{
		RSI:          raw.RSI,
		VWAPDistance: raw.VWAPDistance,
		ATR:          raw.ATR,
		VolumeRatio:  raw.VolumeRatio,
		Hour:         raw.Hour,
		DayOfWeek:    raw.DayOfWeek,
		Side:         side,
		Regime:       domain.RegimeNormal,
	}

	if raw.RecentPNL != nil {
		state.RecentPNL = *raw.RecentPNL
	} else {
		logger.Warn(ctx, "Experience row missing recent_pnl, using default", map[string]interface{}{
			"id": raw.ID, "schemaVersion": raw.SchemaVersion, "default": 0.0})
	}
	if raw.Streak != nil {
		state.Streak = *raw.Streak
	} else {
		logger.Warn(ctx, "Experience row missing streak, using default", map[string]interface{}{
			"id": raw.ID, "schemaVersion": raw.SchemaVersion, "default": 0})
	}
	if raw.Regime != nil {
		regime := domain.Regime(*raw.Regime)
		if regime.IsValid() {
			state.Regime = regime
		} else {
			logger.Warn(ctx, "Experience row has unknown regime, using default", map[string]interface{}{
				"id": raw.ID, "regime": *raw.Regime, "default": domain.RegimeNormal})
		}
	} else {
		logger.Warn(ctx, "Experience row missing regime, using default", map[string]interface{}{
			"id": raw.ID, "schemaVersion": raw.SchemaVersion, "default": domain.RegimeNormal})
	}

	return domain.Experience{
		ID:         raw.ID,
		State:      state,
		TookTrade:  raw.TookTrade,
		PNL:        raw.PNL,
		Duration:   time.Duration(raw.DurationSec) * time.Second,
		RecordedAt: time.Unix(raw.RecordedAt, 0).UTC(),
	}, true
}
