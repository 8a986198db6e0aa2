package ports

import (
	"context"

	"meanRevBot/internal/domain"
)

// ConfidenceAnalyzer scores a candidate market state against accumulated
// trade outcomes. The local experience-store engine and a remote analysis
// service both satisfy this contract; the pipeline treats them identically.
//
// The returned TradeDecision.TakeTrade is the single, final entry gate.
// Callers must trust it as-is and never re-threshold Confidence downstream.
type ConfidenceAnalyzer interface {
	Analyze(ctx context.Context, state domain.MarketState) (domain.TradeDecision, error)
}
