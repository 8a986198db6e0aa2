package experience

import (
	"context"
	"testing"
	"time"

	"meanRevBot/internal/domain"
	"meanRevBot/internal/ports"
)

func TestMigrateRecord_CurrentSchemaPassesThrough(t *testing.T) {
	raw := rawRow(7, "short")
	exp, ok := MigrateRecord(context.Background(), raw, noopLogger{})
	if !ok {
		t.Fatal("expected the row to migrate")
	}
	if exp.ID != 7 {
		t.Errorf("expected ID 7, got %d", exp.ID)
	}
	if exp.State.Side != domain.SideShort {
		t.Errorf("expected side short, got %s", exp.State.Side)
	}
	if exp.State.Regime != domain.RegimeNormal {
		t.Errorf("expected regime NORMAL, got %s", exp.State.Regime)
	}
	if exp.State.RecentPNL != 12 || exp.State.Streak != 2 {
		t.Errorf("expected populated optional fields, got pnl %.1f streak %d", exp.State.RecentPNL, exp.State.Streak)
	}
	if exp.Duration != 30*time.Minute {
		t.Errorf("expected duration 30m, got %s", exp.Duration)
	}
	if !exp.TookTrade {
		t.Error("expected took_trade preserved")
	}
}

func TestMigrateRecord_LegacyRowDefaults(t *testing.T) {
	raw := rawRow(3, "long")
	raw.SchemaVersion = 1
	raw.Regime = nil
	raw.RecentPNL = nil
	raw.Streak = nil

	exp, ok := MigrateRecord(context.Background(), raw, noopLogger{})
	if !ok {
		t.Fatal("expected the legacy row to migrate")
	}
	if exp.State.Regime != domain.RegimeNormal {
		t.Errorf("expected the regime default NORMAL, got %s", exp.State.Regime)
	}
	if exp.State.RecentPNL != 0 {
		t.Errorf("expected recent PNL default 0, got %.2f", exp.State.RecentPNL)
	}
	if exp.State.Streak != 0 {
		t.Errorf("expected streak default 0, got %d", exp.State.Streak)
	}
}

func TestMigrateRecord_UnknownRegimeFallsBack(t *testing.T) {
	raw := rawRow(4, "long")
	bogus := "LUNAR"
	raw.Regime = &bogus

	exp, ok := MigrateRecord(context.Background(), raw, noopLogger{})
	if !ok {
		t.Fatal("expected the row to migrate despite the unknown regime")
	}
	if exp.State.Regime != domain.RegimeNormal {
		t.Errorf("expected fallback to NORMAL, got %s", exp.State.Regime)
	}
}

func TestMigrateRecord_InvalidSideDropsRow(t *testing.T) {
	tests := []string{"", "LONG ", "buy"}
	for _, side := range tests {
		raw := rawRow(5, side)
		if _, ok := MigrateRecord(context.Background(), raw, noopLogger{}); ok {
			t.Errorf("expected row with side %q dropped", side)
		}
	}
}

var _ ports.ExperienceRepository = (*stubRepo)(nil)
