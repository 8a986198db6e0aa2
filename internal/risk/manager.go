package risk

import (
	"context"
	"fmt"
	"time"

	"meanRevBot/internal/ports"
)

// Config holds the daily circuit-breaker limits. A zero value disables the
// corresponding limit.
type Config struct {
	MaxDailyLoss         float64 // Realized daily loss (absolute) that halts new entries
	MaxTradesPerDay      int     // Closed trades per day that halt new entries
	MaxConsecutiveLosses int     // Losing streak length that halts new entries
}

// Manager tracks realized daily performance and gates new entries once a
// limit trips. Limits apply to entries only: an open position is always
// managed to completion. Counters reset at the UTC day boundary.
type Manager struct {
	cfg    Config
	logger ports.Logger

	day               time.Time
	dailyPNL          float64
	dailyTrades       int
	consecutiveLosses int
}

// NewManager creates a risk manager.
func NewManager(cfg Config, logger ports.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for risk manager")
	}
	if cfg.MaxDailyLoss < 0 || cfg.MaxTradesPerDay < 0 || cfg.MaxConsecutiveLosses < 0 {
		return nil, fmt.Errorf("risk limits cannot be negative")
	}
	return &Manager{cfg: cfg, logger: logger}, nil
}

// CanOpen reports whether a new entry is allowed at the given time. A tripped
// limit returns an error wrapping ErrRiskLimitReached.
func (m *Manager) CanOpen(ctx context.Context, at time.Time) error {
	m.rollover(ctx, at)

	if m.cfg.MaxDailyLoss > 0 && m.dailyPNL <= -m.cfg.MaxDailyLoss {
		return fmt.Errorf("daily loss %.2f at limit %.2f: %w", m.dailyPNL, m.cfg.MaxDailyLoss, ports.ErrRiskLimitReached)
	}
	if m.cfg.MaxTradesPerDay > 0 && m.dailyTrades >= m.cfg.MaxTradesPerDay {
		return fmt.Errorf("%d trades at daily limit %d: %w", m.dailyTrades, m.cfg.MaxTradesPerDay, ports.ErrRiskLimitReached)
	}
	if m.cfg.MaxConsecutiveLosses > 0 && m.consecutiveLosses >= m.cfg.MaxConsecutiveLosses {
		return fmt.Errorf("%d consecutive losses at limit %d: %w", m.consecutiveLosses, m.cfg.MaxConsecutiveLosses, ports.ErrRiskLimitReached)
	}
	return nil
}

// RecordClose folds one closed trade into the daily counters.
func (m *Manager) RecordClose(ctx context.Context, pnl float64, at time.Time) {
	m.rollover(ctx, at)

	m.dailyPNL += pnl
	m.dailyTrades++
	if pnl < 0 {
		m.consecutiveLosses++
	} else {
		m.consecutiveLosses = 0
	}

	if m.cfg.MaxDailyLoss > 0 && m.dailyPNL <= -m.cfg.MaxDailyLoss {
		m.logger.Warn(ctx, "Daily loss limit reached, halting new entries", map[string]interface{}{
			"dailyPNL": m.dailyPNL, "limit": m.cfg.MaxDailyLoss})
	}
}

// DailyPNL returns the realized PNL of the current UTC day.
func (m *Manager) DailyPNL() float64 {
	return m.dailyPNL
}

// rollover resets the daily counters when the UTC day changes. The losing
// streak carries across days; only the daily aggregates reset.
func (m *Manager) rollover(ctx context.Context, at time.Time) {
	day := at.UTC().Truncate(24 * time.Hour)
	if day.Equal(m.day) {
		return
	}
	if !m.day.IsZero() && (m.dailyTrades > 0 || m.dailyPNL != 0) {
		m.logger.Info(ctx, "Daily risk counters reset", map[string]interface{}{
			"previousDay": m.day, "dailyPNL": m.dailyPNL, "trades": m.dailyTrades})
	}
	m.day = day
	m.dailyPNL = 0
	m.dailyTrades = 0
}
