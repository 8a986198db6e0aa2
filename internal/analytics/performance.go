package analytics

import (
	"math"
	"sort"
	"time"

	"meanRevBot/internal/domain"
)

// PerformanceMetrics holds comprehensive performance metrics computed from
// recorded experiences.
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	TotalProfit        float64
	MaxDrawdown        float64
	ProfitFactor       float64
	AverageWin         float64
	AverageLoss        float64
	FinalBalance       float64
	ReturnOnInvestment float64

	// Advanced Metrics
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	RecoveryFactor       float64
	Expectancy           float64
	MonthlyReturns       map[string]float64
	BySide               map[domain.Side]SideMetrics
	ByRegime             map[domain.Regime]RegimeMetrics
	Drawdowns            []Drawdown
	EquityCurve          []EquityPoint
}

// SideMetrics breaks performance down by trade direction.
type SideMetrics struct {
	Trades  int
	Wins    int
	WinRate float64
	PNL     float64
}

// RegimeMetrics breaks performance down by the regime active at entry.
type RegimeMetrics struct {
	Trades  int
	Wins    int
	WinRate float64
	PNL     float64
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	EndValue   float64
	Depth      float64
	Duration   time.Duration
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates performance metrics from taken-trade
// experiences. Records with took_trade=false are skipped.
func AnalyzePerformance(experiences []domain.Experience, initialBalance float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		FinalBalance:   initialBalance,
		MonthlyReturns: make(map[string]float64),
		BySide:         make(map[domain.Side]SideMetrics),
		ByRegime:       make(map[domain.Regime]RegimeMetrics),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
	}

	taken := make([]domain.Experience, 0, len(experiences))
	for _, exp := range experiences {
		if exp.TookTrade {
			taken = append(taken, exp)
		}
	}
	if len(taken) == 0 {
		return metrics
	}

	sort.Slice(taken, func(i, j int) bool {
		return taken[i].RecordedAt.Before(taken[j].RecordedAt)
	})

	var currentBalance = initialBalance
	var peakBalance = initialBalance
	var currentDrawdown *Drawdown
	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration

	for _, exp := range taken {
		metrics.TotalTrades++
		totalDuration += exp.Duration
		if exp.PNL > 0 {
			metrics.WinningTrades++
			consecutiveWins++
			consecutiveLosses = 0
			metrics.AverageWin = (metrics.AverageWin*float64(metrics.WinningTrades-1) + exp.PNL) / float64(metrics.WinningTrades)
		} else {
			metrics.LosingTrades++
			consecutiveLosses++
			consecutiveWins = 0
			metrics.AverageLoss = (metrics.AverageLoss*float64(metrics.LosingTrades-1) + exp.PNL) / float64(metrics.LosingTrades)
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		side := metrics.BySide[exp.State.Side]
		side.Trades++
		side.PNL += exp.PNL
		if exp.PNL > 0 {
			side.Wins++
		}
		metrics.BySide[exp.State.Side] = side

		reg := metrics.ByRegime[exp.State.Regime]
		reg.Trades++
		reg.PNL += exp.PNL
		if exp.PNL > 0 {
			reg.Wins++
		}
		metrics.ByRegime[exp.State.Regime] = reg

		currentBalance += exp.PNL
		metrics.TotalProfit += exp.PNL
		metrics.FinalBalance = currentBalance

		monthKey := exp.RecordedAt.Format("2006-01")
		metrics.MonthlyReturns[monthKey] += exp.PNL

		if currentBalance > peakBalance {
			peakBalance = currentBalance
			if currentDrawdown != nil {
				currentDrawdown.EndTime = exp.RecordedAt
				currentDrawdown.EndValue = currentBalance
				currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
				metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
				currentDrawdown = nil
			}
		} else {
			drawdown := (peakBalance - currentBalance) / peakBalance
			if currentDrawdown == nil {
				currentDrawdown = &Drawdown{
					StartTime:  exp.RecordedAt,
					StartValue: peakBalance,
					Depth:      drawdown,
				}
			} else {
				currentDrawdown.Depth = math.Max(currentDrawdown.Depth, drawdown)
			}
			if drawdown > metrics.MaxDrawdown {
				metrics.MaxDrawdown = drawdown
			}
		}

		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     exp.RecordedAt,
			Value:    currentBalance,
			Drawdown: (peakBalance - currentBalance) / peakBalance,
		})
	}

	if currentDrawdown != nil {
		currentDrawdown.EndTime = taken[len(taken)-1].RecordedAt
		currentDrawdown.EndValue = currentBalance
		currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
		metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.AverageLoss != 0 {
		metrics.ProfitFactor = metrics.AverageWin / -metrics.AverageLoss
	}
	metrics.ReturnOnInvestment = (metrics.FinalBalance - initialBalance) / initialBalance
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	if metrics.MaxDrawdown > 0 {
		metrics.RecoveryFactor = metrics.TotalProfit / (initialBalance * metrics.MaxDrawdown)
	}
	metrics.Expectancy = (metrics.WinRate * metrics.AverageWin) + ((1 - metrics.WinRate) * metrics.AverageLoss)

	for side, sm := range metrics.BySide {
		sm.WinRate = float64(sm.Wins) / float64(sm.Trades)
		metrics.BySide[side] = sm
	}
	for reg, rm := range metrics.ByRegime {
		rm.WinRate = float64(rm.Wins) / float64(rm.Trades)
		metrics.ByRegime[reg] = rm
	}

	return metrics
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
