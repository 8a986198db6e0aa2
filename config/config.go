package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"meanRevBot/internal/adapters/logger" // Import the logger package for LogLevel
	"meanRevBot/internal/domain"
)

// RegimeParams is the immutable multiplier record attached to one regime.
// The stop distance is EntryATR * StopATRMult; the target is implied by the
// risk:reward ratio applied to that stop distance.
type RegimeParams struct {
	StopATRMult float64 // Stop distance in multiples of entry ATR
	RiskReward  float64 // Target distance as a multiple of the stop distance
}

// Config holds all application configuration. No threshold named here may be
// hardcoded inside decision logic.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Instrument
	Symbol         string
	Quantity       float64 // Contract quantity per entry
	TickSize       float64 // Minimum price increment
	FineInterval   string  // Fine bar granularity (e.g., "1m")
	CoarseInterval string  // Coarse bar granularity (e.g., "15m")
	HistoryDepth   int     // Ring buffer depth for bar history

	// Session boundaries, as offsets from midnight UTC.
	SessionStart   time.Duration // VWAP accumulators reset here
	EntryCutoff    time.Duration // No new entries at or after this time
	FlattenAt      time.Duration // Hard force-close boundary (maintenance start)
	MaintenanceEnd time.Duration // End of the daily maintenance window

	// Indicator parameters
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
	ATRPeriod     int
	VolumeWindow  int

	// Confidence engine
	ConfidenceThreshold float64 // Single take/skip threshold, applied exactly once
	MinSampleSize       int     // Below this, the neutral baseline applies
	NeighborCount       int     // k for similarity retrieval
	BaselineConfidence  float64 // Neutral confidence when the sample is too small
	RecentTradeWindow   int     // Closed trades contributing to recent_pnl

	// Exit state machine
	BreakevenTicks    int           // Favorable ticks before the stop moves to entry
	TrailTicks        int           // Trailing stop distance in ticks
	PartialMilestones []float64     // Ascending R-multiples (e.g., 2, 3, 5)
	PartialExitPct    float64       // Fraction of remaining quantity closed per milestone
	SidewaysTimeout   time.Duration // Force flat when open this long without meaningful movement
	UnderwaterTimeout time.Duration // Force flat when underwater this long
	SidewaysMinMoveR  float64       // Movement below this many R counts as "not meaningful"

	// Daily risk circuit breakers, zero disables.
	MaxDailyLoss         float64       // Realized daily loss that halts new entries
	MaxTradesPerDay      int           // Closed trades per day that halt new entries
	MaxConsecutiveLosses int           // Losing streak that halts new entries

	// Regime table, validated exhaustively over domain.AllRegimes.
	Regimes map[domain.Regime]RegimeParams

	// Regime classifier thresholds
	VolatileATRRatio     float64 // ATR ratio above this classifies VOLATILE
	SidewaysATRRatio     float64 // ATR ratio below this (with low drift) classifies SIDEWAYS
	TrendDriftATRs       float64 // Directional drift above this many ATRs classifies TRENDING
	RegimeBaselineWindow int     // Coarse bars forming the volatility baseline

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Instrument
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	cfg.Quantity, err = getEnvAsFloatRequired("QUANTITY", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUANTITY: %v", err))
	} else if cfg.Quantity <= 0 {
		errs = append(errs, "QUANTITY must be positive")
	}

	cfg.TickSize, err = getEnvAsFloatRequired("TICK_SIZE", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TICK_SIZE: %v", err))
	} else if cfg.TickSize <= 0 {
		errs = append(errs, "TICK_SIZE must be positive")
	}

	cfg.FineInterval = getEnv("FINE_INTERVAL", "1m")
	cfg.CoarseInterval = getEnv("COARSE_INTERVAL", "15m")
	fine, ferr := intervalDuration(cfg.FineInterval)
	coarse, cerr := intervalDuration(cfg.CoarseInterval)
	if ferr != nil {
		errs = append(errs, fmt.Sprintf("invalid FINE_INTERVAL: %v", ferr))
	}
	if cerr != nil {
		errs = append(errs, fmt.Sprintf("invalid COARSE_INTERVAL: %v", cerr))
	}
	if ferr == nil && cerr == nil {
		if coarse <= fine || coarse%fine != 0 {
			errs = append(errs, "COARSE_INTERVAL must be a whole multiple of FINE_INTERVAL")
		}
	}

	cfg.HistoryDepth = getEnvAsInt("HISTORY_DEPTH", 500)
	if cfg.HistoryDepth <= 0 {
		errs = append(errs, "HISTORY_DEPTH must be positive")
	}

	// Session boundaries
	cfg.SessionStart, err = getEnvAsClock("SESSION_START", "00:00")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SESSION_START: %v", err))
	}
	cfg.EntryCutoff, err = getEnvAsClock("ENTRY_CUTOFF", "20:00")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ENTRY_CUTOFF: %v", err))
	}
	cfg.FlattenAt, err = getEnvAsClock("FLATTEN_AT", "20:45")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FLATTEN_AT: %v", err))
	}
	cfg.MaintenanceEnd, err = getEnvAsClock("MAINTENANCE_END", "22:00")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAINTENANCE_END: %v", err))
	}
	if cfg.EntryCutoff >= cfg.FlattenAt {
		errs = append(errs, "ENTRY_CUTOFF must be before FLATTEN_AT")
	}
	if cfg.FlattenAt >= cfg.MaintenanceEnd {
		errs = append(errs, "FLATTEN_AT must be before MAINTENANCE_END")
	}

	// Indicator parameters
	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 10)
	cfg.RSIOversold = getEnvAsFloat("RSI_OVERSOLD", 35.0)
	cfg.RSIOverbought = getEnvAsFloat("RSI_OVERBOUGHT", 65.0)
	cfg.ATRPeriod = getEnvAsInt("ATR_PERIOD", 14)
	cfg.VolumeWindow = getEnvAsInt("VOLUME_WINDOW", 20)

	if cfg.RSIPeriod <= 0 || cfg.ATRPeriod <= 0 || cfg.VolumeWindow <= 0 {
		errs = append(errs, "indicator periods (RSI, ATR, VOLUME_WINDOW) must be positive")
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	// Confidence engine
	cfg.ConfidenceThreshold = getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.70)
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		errs = append(errs, "CONFIDENCE_THRESHOLD must be in (0, 1]")
	}
	cfg.MinSampleSize = getEnvAsInt("MIN_SAMPLE_SIZE", 10)
	if cfg.MinSampleSize < 1 {
		errs = append(errs, "MIN_SAMPLE_SIZE must be at least 1")
	}
	cfg.NeighborCount = getEnvAsInt("NEIGHBOR_COUNT", 10)
	if cfg.NeighborCount < 1 {
		errs = append(errs, "NEIGHBOR_COUNT must be at least 1")
	}
	cfg.BaselineConfidence = getEnvAsFloat("BASELINE_CONFIDENCE", 0.5)
	if cfg.BaselineConfidence < 0 || cfg.BaselineConfidence > 1 {
		errs = append(errs, "BASELINE_CONFIDENCE must be in [0, 1]")
	}
	cfg.RecentTradeWindow = getEnvAsInt("RECENT_TRADE_WINDOW", 5)
	if cfg.RecentTradeWindow < 1 {
		errs = append(errs, "RECENT_TRADE_WINDOW must be at least 1")
	}

	// Exit state machine
	cfg.BreakevenTicks = getEnvAsInt("BREAKEVEN_TICKS", 40)
	cfg.TrailTicks = getEnvAsInt("TRAIL_TICKS", 60)
	if cfg.BreakevenTicks <= 0 || cfg.TrailTicks <= 0 {
		errs = append(errs, "BREAKEVEN_TICKS and TRAIL_TICKS must be positive")
	}

	cfg.PartialMilestones, err = getEnvAsFloatList("PARTIAL_R_MILESTONES", []float64{2, 3, 5})
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PARTIAL_R_MILESTONES: %v", err))
	} else {
		for i := 1; i < len(cfg.PartialMilestones); i++ {
			if cfg.PartialMilestones[i] <= cfg.PartialMilestones[i-1] {
				errs = append(errs, "PARTIAL_R_MILESTONES must be strictly ascending")
				break
			}
		}
		if len(cfg.PartialMilestones) > 0 && cfg.PartialMilestones[0] <= 0 {
			errs = append(errs, "PARTIAL_R_MILESTONES must be positive")
		}
	}

	cfg.PartialExitPct = getEnvAsFloat("PARTIAL_EXIT_PCT", 0.33)
	if cfg.PartialExitPct <= 0 || cfg.PartialExitPct >= 1 {
		errs = append(errs, "PARTIAL_EXIT_PCT must be between 0 and 1 (exclusive)")
	}

	sidewaysMin := getEnvAsInt("SIDEWAYS_TIMEOUT_MINUTES", 90)
	underwaterMin := getEnvAsInt("UNDERWATER_TIMEOUT_MINUTES", 45)
	if sidewaysMin <= 0 || underwaterMin <= 0 {
		errs = append(errs, "timeout minutes must be positive")
	}
	cfg.SidewaysTimeout = time.Duration(sidewaysMin) * time.Minute
	cfg.UnderwaterTimeout = time.Duration(underwaterMin) * time.Minute

	cfg.SidewaysMinMoveR = getEnvAsFloat("SIDEWAYS_MIN_MOVE_R", 0.5)
	if cfg.SidewaysMinMoveR <= 0 {
		errs = append(errs, "SIDEWAYS_MIN_MOVE_R must be positive")
	}

	// Risk circuit breakers. Zero keeps a limit disabled.
	cfg.MaxDailyLoss = getEnvAsFloat("MAX_DAILY_LOSS", 0)
	cfg.MaxTradesPerDay = getEnvAsInt("MAX_TRADES_PER_DAY", 0)
	cfg.MaxConsecutiveLosses = getEnvAsInt("MAX_CONSECUTIVE_LOSSES", 0)
	if cfg.MaxDailyLoss < 0 || cfg.MaxTradesPerDay < 0 || cfg.MaxConsecutiveLosses < 0 {
		errs = append(errs, "risk limits (MAX_DAILY_LOSS, MAX_TRADES_PER_DAY, MAX_CONSECUTIVE_LOSSES) cannot be negative")
	}

	// Regime multiplier table. Every member of the closed regime set must
	// resolve to a valid record; a partial table is a configuration error.
	cfg.Regimes = map[domain.Regime]RegimeParams{
		domain.RegimeNormal: {
			StopATRMult: getEnvAsFloat("REGIME_NORMAL_STOP_MULT", 1.5),
			RiskReward:  getEnvAsFloat("REGIME_NORMAL_RISK_REWARD", 2.0),
		},
		domain.RegimeVolatile: {
			StopATRMult: getEnvAsFloat("REGIME_VOLATILE_STOP_MULT", 2.5),
			RiskReward:  getEnvAsFloat("REGIME_VOLATILE_RISK_REWARD", 1.5),
		},
		domain.RegimeTrending: {
			StopATRMult: getEnvAsFloat("REGIME_TRENDING_STOP_MULT", 2.0),
			RiskReward:  getEnvAsFloat("REGIME_TRENDING_RISK_REWARD", 3.0),
		},
		domain.RegimeSideways: {
			StopATRMult: getEnvAsFloat("REGIME_SIDEWAYS_STOP_MULT", 1.0),
			RiskReward:  getEnvAsFloat("REGIME_SIDEWAYS_RISK_REWARD", 1.5),
		},
	}
	for _, regime := range domain.AllRegimes {
		params, ok := cfg.Regimes[regime]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing regime parameters for %s", regime))
			continue
		}
		if params.StopATRMult <= 0 {
			errs = append(errs, fmt.Sprintf("REGIME_%s_STOP_MULT must be positive", regime))
		}
		if params.RiskReward <= 0 {
			errs = append(errs, fmt.Sprintf("REGIME_%s_RISK_REWARD must be positive", regime))
		}
	}

	// Regime classifier thresholds
	cfg.VolatileATRRatio = getEnvAsFloat("REGIME_VOLATILE_ATR_RATIO", 1.5)
	cfg.SidewaysATRRatio = getEnvAsFloat("REGIME_SIDEWAYS_ATR_RATIO", 0.7)
	cfg.TrendDriftATRs = getEnvAsFloat("REGIME_TREND_DRIFT_ATRS", 2.0)
	if cfg.VolatileATRRatio <= cfg.SidewaysATRRatio {
		errs = append(errs, "REGIME_VOLATILE_ATR_RATIO must be greater than REGIME_SIDEWAYS_ATR_RATIO")
	}
	if cfg.TrendDriftATRs <= 0 {
		errs = append(errs, "REGIME_TREND_DRIFT_ATRS must be positive")
	}
	cfg.RegimeBaselineWindow = getEnvAsInt("REGIME_BASELINE_WINDOW", 20)
	if cfg.RegimeBaselineWindow <= cfg.ATRPeriod {
		errs = append(errs, "REGIME_BASELINE_WINDOW must exceed ATR_PERIOD")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/experiences.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// intervalDuration converts an interval string like "1m" or "15m" to a duration.
func intervalDuration(interval string) (time.Duration, error) {
	if interval == "" {
		return 0, fmt.Errorf("interval is empty")
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval unit %q", string(unit))
	}
}

// IntervalDuration exposes the interval parser for callers that slot bars.
func IntervalDuration(interval string) (time.Duration, error) {
	return intervalDuration(interval)
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsClock parses an "HH:MM" value into an offset from midnight UTC.
func getEnvAsClock(key, defaultValue string) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	parts := strings.SplitN(valueStr, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value '%s' for key %s (want HH:MM)", valueStr, key)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in '%s' for key %s", valueStr, key)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in '%s' for key %s", valueStr, key)
	}
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, nil
}

// getEnvAsFloatList parses a comma-separated list of floats.
func getEnvAsFloatList(key string, defaultValue []float64) ([]float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	parts := strings.Split(valueStr, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s' in list for key %s: %w", part, key, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty list for key %s", key)
	}
	return values, nil
}
