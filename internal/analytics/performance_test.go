package analytics

import (
	"testing"
	"time"

	"meanRevBot/internal/domain"
)

func exp(side domain.Side, regime domain.Regime, pnl float64, at time.Time) domain.Experience {
	return domain.Experience{
		State: domain.MarketState{
			RSI:    30,
			Side:   side,
			Regime: regime,
		},
		TookTrade:  true,
		PNL:        pnl,
		Duration:   30 * time.Minute,
		RecordedAt: at,
	}
}

func TestAnalyzePerformance(t *testing.T) {
	initialBalance := 10000.0
	base := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	experiences := []domain.Experience{
		exp(domain.SideLong, domain.RegimeNormal, 1000, base),
		exp(domain.SideShort, domain.RegimeVolatile, -1000, base.Add(6*time.Hour)),
	}

	metrics := AnalyzePerformance(experiences, initialBalance)

	if metrics.TotalTrades != 2 {
		t.Errorf("Expected 2 total trades, got %d", metrics.TotalTrades)
	}
	if metrics.WinningTrades != 1 {
		t.Errorf("Expected 1 winning trade, got %d", metrics.WinningTrades)
	}
	if metrics.LosingTrades != 1 {
		t.Errorf("Expected 1 losing trade, got %d", metrics.LosingTrades)
	}
	if metrics.WinRate != 0.5 {
		t.Errorf("Expected 0.5 win rate, got %f", metrics.WinRate)
	}
	if metrics.TotalProfit != 0 {
		t.Errorf("Expected 0 total profit, got %f", metrics.TotalProfit)
	}
	if metrics.FinalBalance != initialBalance {
		t.Errorf("Expected final balance of %f, got %f", initialBalance, metrics.FinalBalance)
	}
	if metrics.AverageWin != 1000 {
		t.Errorf("Expected average win 1000, got %f", metrics.AverageWin)
	}
	if metrics.AverageLoss != -1000 {
		t.Errorf("Expected average loss -1000, got %f", metrics.AverageLoss)
	}
	if metrics.AverageTradeDuration != 30*time.Minute {
		t.Errorf("Expected 30m average duration, got %s", metrics.AverageTradeDuration)
	}

	long := metrics.BySide[domain.SideLong]
	if long.Trades != 1 || long.Wins != 1 || long.PNL != 1000 {
		t.Errorf("Unexpected long-side metrics: %+v", long)
	}
	short := metrics.BySide[domain.SideShort]
	if short.Trades != 1 || short.Wins != 0 || short.PNL != -1000 {
		t.Errorf("Unexpected short-side metrics: %+v", short)
	}
	volatile := metrics.ByRegime[domain.RegimeVolatile]
	if volatile.Trades != 1 || volatile.WinRate != 0 {
		t.Errorf("Unexpected volatile regime metrics: %+v", volatile)
	}
}

func TestAnalyzePerformance_EmptyInput(t *testing.T) {
	metrics := AnalyzePerformance(nil, 10000)
	if metrics.TotalTrades != 0 {
		t.Errorf("Expected 0 trades, got %d", metrics.TotalTrades)
	}
	if metrics.FinalBalance != 10000 {
		t.Errorf("Expected untouched balance, got %f", metrics.FinalBalance)
	}
}

func TestAnalyzePerformance_SkipsUntakenRecords(t *testing.T) {
	base := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	skipped := exp(domain.SideLong, domain.RegimeNormal, 0, base)
	skipped.TookTrade = false

	metrics := AnalyzePerformance([]domain.Experience{
		skipped,
		exp(domain.SideLong, domain.RegimeNormal, 500, base.Add(time.Hour)),
	}, 10000)

	if metrics.TotalTrades != 1 {
		t.Errorf("Expected 1 trade, got %d", metrics.TotalTrades)
	}
	if metrics.TotalProfit != 500 {
		t.Errorf("Expected 500 profit, got %f", metrics.TotalProfit)
	}
}

func TestAnalyzePerformance_DrawdownTracking(t *testing.T) {
	base := time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC)
	experiences := []domain.Experience{
		exp(domain.SideLong, domain.RegimeNormal, 500, base),
		exp(domain.SideLong, domain.RegimeNormal, -300, base.Add(time.Hour)),
		exp(domain.SideLong, domain.RegimeNormal, -200, base.Add(2*time.Hour)),
		exp(domain.SideLong, domain.RegimeNormal, 800, base.Add(3*time.Hour)),
	}

	metrics := AnalyzePerformance(experiences, 10000)

	if metrics.MaxDrawdown <= 0 {
		t.Errorf("Expected a positive max drawdown, got %f", metrics.MaxDrawdown)
	}
	if len(metrics.Drawdowns) != 1 {
		t.Fatalf("Expected 1 recorded drawdown period, got %d", len(metrics.Drawdowns))
	}
	dd := metrics.Drawdowns[0]
	if !dd.StartTime.Equal(base.Add(time.Hour)) {
		t.Errorf("Unexpected drawdown start: %s", dd.StartTime)
	}
	if len(metrics.EquityCurve) != 4 {
		t.Errorf("Expected 4 equity points, got %d", len(metrics.EquityCurve))
	}
	if metrics.EquityCurve[3].Value != 10800 {
		t.Errorf("Expected final equity 10800, got %f", metrics.EquityCurve[3].Value)
	}
}
