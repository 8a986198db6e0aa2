package ports

import (
	"context"
	"time"

	"meanRevBot/internal/domain"
)

// MarketFeed defines the interface for a price/volume data source. A live
// websocket feed and a bounded historical replay both satisfy it, so the same
// pipeline code runs against either event source.
type MarketFeed interface {
	// GetBars retrieves the most recent historical bars for the given symbol
	// and interval, oldest first.
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]*domain.Bar, error)

	// GetBarsRange retrieves historical bars between start and end, oldest first.
	GetBarsRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error)

	// StreamBars starts a stream of bar events for the symbol and interval.
	// handler receives every bar update (final and in-progress); errHandler
	// receives stream-level errors. Returns done and stop channels following
	// the underlying client convention.
	StreamBars(ctx context.Context, symbol, interval string, handler func(bar *domain.Bar), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// Ping checks connectivity to the data source.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the data source's current time.
	GetServerTime(ctx context.Context) (time.Time, error)
}
