package exits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meanRevBot/config"
	"meanRevBot/internal/domain"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func testMachineConfig() MachineConfig {
	return MachineConfig{
		TickSize:          0.25,
		BreakevenTicks:    40,
		TrailTicks:        60,
		PartialMilestones: []float64{2, 3, 5},
		PartialExitPct:    0.33,
		SidewaysTimeout:   90 * time.Minute,
		UnderwaterTimeout: 45 * time.Minute,
		SidewaysMinMoveR:  0.5,
		FlattenAt:         20*time.Hour + 45*time.Minute,
		Regimes: map[domain.Regime]config.RegimeParams{
			domain.RegimeNormal:   {StopATRMult: 1.5, RiskReward: 2.0},
			domain.RegimeVolatile: {StopATRMult: 2.5, RiskReward: 1.5},
			domain.RegimeTrending: {StopATRMult: 2.0, RiskReward: 3.0},
			domain.RegimeSideways: {StopATRMult: 1.0, RiskReward: 1.5},
		},
	}
}

func longSignal(entry, atr float64, at time.Time) domain.CandidateSignal {
	return domain.CandidateSignal{
		Timestamp:  at,
		Symbol:     "ESU6",
		Side:       domain.SideLong,
		EntryPrice: entry,
		State: domain.MarketState{
			RSI:    28,
			ATR:    atr,
			Side:   domain.SideLong,
			Regime: domain.RegimeNormal,
		},
	}
}

func shortSignal(entry, atr float64, at time.Time) domain.CandidateSignal {
	sig := longSignal(entry, atr, at)
	sig.Side = domain.SideShort
	sig.State.Side = domain.SideShort
	sig.State.RSI = 72
	return sig
}

func barAt(at time.Time, o, h, l, c float64) *domain.Bar {
	return &domain.Bar{
		OpenTime:  at.Add(-time.Minute),
		CloseTime: at,
		Symbol:    "ESU6",
		Interval:  "1m",
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    1000,
		IsFinal:   true,
	}
}

func sessionTime(hour, minute int) time.Time {
	return time.Date(2026, 3, 9, hour, minute, 0, 0, time.UTC)
}

func TestOpen_InitialStopAndTarget(t *testing.T) {
	entry := sessionTime(14, 30)

	t.Run("long normal regime", func(t *testing.T) {
		m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 2)
		require.NoError(t, err)
		pos := m.Position()
		assert.InDelta(t, 4985.0, pos.InitialStop, 1e-9) // 5000 - 10*1.5
		assert.InDelta(t, 5030.0, pos.Target, 1e-9)      // 5000 + 15*2.0
		assert.Equal(t, domain.StateOpen, pos.State)
	})

	t.Run("short mirrors the distances", func(t *testing.T) {
		m, err := Open(testMachineConfig(), noopLogger{}, shortSignal(5000, 10, entry), 2)
		require.NoError(t, err)
		pos := m.Position()
		assert.InDelta(t, 5015.0, pos.InitialStop, 1e-9)
		assert.InDelta(t, 4970.0, pos.Target, 1e-9)
	})

	t.Run("rejects zero ATR", func(t *testing.T) {
		sig := longSignal(5000, 0, entry)
		_, err := Open(testMachineConfig(), noopLogger{}, sig, 2)
		assert.Error(t, err)
	})
}

func TestAdvance_StopTouchClosesAtStop(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 2)
	require.NoError(t, err)

	res, err := m.Advance(ctx, barAt(entry.Add(time.Minute), 4998, 4999, 4984, 4986), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, res.Closed)

	pos := m.Position()
	assert.Equal(t, domain.StateFlat, pos.State)
	assert.Equal(t, domain.CloseReasonStopLoss, pos.CloseReason)
	assert.InDelta(t, 4985.0, pos.ExitPrice, 1e-9)
	assert.InDelta(t, -30.0, pos.RealizedPNL, 1e-9) // (4985-5000)*2
	assert.False(t, pos.IsOpen())
}

func TestAdvance_TargetTouchClosesAtTarget(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, shortSignal(5000, 10, entry), 2)
	require.NoError(t, err)

	res, err := m.Advance(ctx, barAt(entry.Add(time.Minute), 4990, 4992, 4968, 4972), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, res.Closed)

	pos := m.Position()
	assert.Equal(t, domain.CloseReasonTarget, pos.CloseReason)
	assert.InDelta(t, 4970.0, pos.ExitPrice, 1e-9)
	assert.InDelta(t, 60.0, pos.RealizedPNL, 1e-9)
}

func TestAdvance_StopHasPriorityOverTarget(t *testing.T) {
	// When a single bar spans both levels the pessimistic resolution wins.
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
	require.NoError(t, err)

	res, err := m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5035, 4980, 5010), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, domain.CloseReasonStopLoss, m.Position().CloseReason)
}

func TestAdvance_RegimeChangeStopRules(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)

	t.Run("widening toward volatile is accepted", func(t *testing.T) {
		m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
		require.NoError(t, err)
		require.InDelta(t, 4985.0, m.Position().CurrentStop, 1e-9)

		_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5003, 4998, 5001), domain.RegimeVolatile)
		require.NoError(t, err)

		pos := m.Position()
		assert.InDelta(t, 4975.0, pos.CurrentStop, 1e-9) // 5000 - 10*2.5
		assert.InDelta(t, 5037.5, pos.Target, 1e-9)      // 5000 + 25*1.5
		assert.Equal(t, domain.RegimeVolatile, pos.Regime)
		require.Len(t, pos.RegimeHistory, 1)
		assert.Equal(t, domain.RegimeNormal, pos.RegimeHistory[0].From)
	})

	t.Run("tightening toward sideways keeps the prior stop", func(t *testing.T) {
		m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
		require.NoError(t, err)

		_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5003, 4998, 5001), domain.RegimeSideways)
		require.NoError(t, err)

		pos := m.Position()
		assert.InDelta(t, 4985.0, pos.CurrentStop, 1e-9) // sideways would be 4990, rejected
		assert.InDelta(t, 5015.0, pos.Target, 1e-9)      // target follows the new regime
		assert.Equal(t, domain.RegimeSideways, pos.Regime)
	})

	t.Run("short side never tightens either", func(t *testing.T) {
		m, err := Open(testMachineConfig(), noopLogger{}, shortSignal(5000, 10, entry), 1)
		require.NoError(t, err)
		require.InDelta(t, 5015.0, m.Position().CurrentStop, 1e-9)

		_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5002, 4997, 4999), domain.RegimeSideways)
		require.NoError(t, err)
		assert.InDelta(t, 5015.0, m.Position().CurrentStop, 1e-9)

		_, err = m.Advance(ctx, barAt(entry.Add(2*time.Minute), 4999, 5001, 4996, 4998), domain.RegimeVolatile)
		require.NoError(t, err)
		assert.InDelta(t, 5025.0, m.Position().CurrentStop, 1e-9)
	})
}

func TestAdvance_BreakevenArmsAtTickDistance(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
	require.NoError(t, err)

	// 39 ticks of favorable movement is not enough.
	_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5010, 4999, 5009.75), domain.RegimeNormal)
	require.NoError(t, err)
	assert.InDelta(t, 4985.0, m.Position().CurrentStop, 1e-9)
	assert.Equal(t, domain.StateOpen, m.Position().State)

	// 40 ticks arms breakeven.
	_, err = m.Advance(ctx, barAt(entry.Add(2*time.Minute), 5009, 5011, 5008, 5010), domain.RegimeNormal)
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, m.Position().CurrentStop, 1e-9)
	assert.Equal(t, domain.StateBreakevenArmed, m.Position().State)
}

func TestAdvance_TrailingRatchetsAndNeverRegresses(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
	require.NoError(t, err)

	// Arm breakeven first.
	_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5012, 4999, 5010), domain.RegimeNormal)
	require.NoError(t, err)
	require.InDelta(t, 5000.0, m.Position().CurrentStop, 1e-9)

	// Close at 5020: trailing candidate 5020 - 60*0.25 = 5005.
	_, err = m.Advance(ctx, barAt(entry.Add(2*time.Minute), 5010, 5021, 5009, 5020), domain.RegimeNormal)
	require.NoError(t, err)
	assert.InDelta(t, 5005.0, m.Position().CurrentStop, 1e-9)
	assert.Equal(t, domain.StateTrailingArmed, m.Position().State)

	// Price retreats: candidate 5008 - 15 = 4993 would regress, stop holds.
	_, err = m.Advance(ctx, barAt(entry.Add(3*time.Minute), 5020, 5020, 5006, 5008), domain.RegimeNormal)
	require.NoError(t, err)
	assert.InDelta(t, 5005.0, m.Position().CurrentStop, 1e-9)

	// New high ratchets it further.
	_, err = m.Advance(ctx, barAt(entry.Add(4*time.Minute), 5008, 5026, 5007, 5025), domain.RegimeNormal)
	require.NoError(t, err)
	assert.InDelta(t, 5010.0, m.Position().CurrentStop, 1e-9)

	// Regime change after breakeven leaves the stop alone.
	_, err = m.Advance(ctx, barAt(entry.Add(5*time.Minute), 5025, 5026, 5024, 5025), domain.RegimeVolatile)
	require.NoError(t, err)
	assert.InDelta(t, 5010.0, m.Position().CurrentStop, 1e-9)

	// Stop touch closes with the trailing reason.
	res, err := m.Advance(ctx, barAt(entry.Add(6*time.Minute), 5025, 5025, 5009, 5011), domain.RegimeVolatile)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, domain.CloseReasonTrailingStop, m.Position().CloseReason)
	assert.InDelta(t, 10.0, m.Position().RealizedPNL, 1e-9)
}

func TestAdvance_PartialsFireOncePerMilestone(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	cfg := testMachineConfig()
	m, err := Open(cfg, noopLogger{}, longSignal(5000, 10, entry), 3)
	require.NoError(t, err)

	// Risk per unit is 15; target sits at 5030 so widen it out of reach first.
	_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5002, 4999, 5001), domain.RegimeTrending)
	require.NoError(t, err)
	require.InDelta(t, 5060.0, m.Position().Target, 1e-9)

	// 2R = +30: first milestone fires on 33% of remaining.
	res, err := m.Advance(ctx, barAt(entry.Add(2*time.Minute), 5001, 5031, 5000, 5030), domain.RegimeTrending)
	require.NoError(t, err)
	require.Len(t, res.Partials, 1)
	assert.InDelta(t, 2.0, res.Partials[0].Milestone, 1e-9)
	assert.InDelta(t, 0.99, res.Partials[0].Quantity, 1e-9)
	assert.InDelta(t, 29.7, res.Partials[0].PNL, 1e-9) // 30 * 0.99
	assert.Equal(t, domain.StatePartial1Done, m.Position().State)
	assert.InDelta(t, 2.01, m.Position().Quantity, 1e-9)

	// Same level again: milestone does not re-fire.
	res, err = m.Advance(ctx, barAt(entry.Add(3*time.Minute), 5030, 5031, 5029, 5030), domain.RegimeTrending)
	require.NoError(t, err)
	assert.Empty(t, res.Partials)

	// 3R = +45: second milestone fires on the reduced quantity.
	res, err = m.Advance(ctx, barAt(entry.Add(4*time.Minute), 5030, 5046, 5029, 5045), domain.RegimeTrending)
	require.NoError(t, err)
	require.Len(t, res.Partials, 1)
	assert.InDelta(t, 3.0, res.Partials[0].Milestone, 1e-9)
	assert.InDelta(t, 2.01*0.33, res.Partials[0].Quantity, 1e-9)
	assert.Equal(t, domain.StatePartial2Done, m.Position().State)
}

func TestAdvance_SkippedMilestonesCatchUpInOneBar(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, shortSignal(5000, 10, entry), 3)
	require.NoError(t, err)

	// Push the target away so the milestone path is observable.
	_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5001, 4998, 4999), domain.RegimeTrending)
	require.NoError(t, err)
	require.InDelta(t, 4940.0, m.Position().Target, 1e-9)

	// A single bar closing 3R in profit fires the 2R and 3R milestones together.
	res, err := m.Advance(ctx, barAt(entry.Add(2*time.Minute), 4999, 5000, 4944, 4955), domain.RegimeTrending)
	require.NoError(t, err)
	require.Len(t, res.Partials, 2)
	assert.InDelta(t, 2.0, res.Partials[0].Milestone, 1e-9)
	assert.InDelta(t, 3.0, res.Partials[1].Milestone, 1e-9)
	assert.Equal(t, domain.StatePartial2Done, m.Position().State)
}

func TestAdvance_SidewaysTimeout(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(10, 0)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
	require.NoError(t, err)

	// 89 minutes of drift without reaching half an R: still open.
	_, err = m.Advance(ctx, barAt(entry.Add(89*time.Minute), 5000, 5004, 4998, 5002), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, m.Position().IsOpen())

	res, err := m.Advance(ctx, barAt(entry.Add(90*time.Minute), 5002, 5004, 4999, 5001), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, domain.CloseReasonSidewaysTimeout, m.Position().CloseReason)
	assert.InDelta(t, 5001.0, m.Position().ExitPrice, 1e-9)
}

func TestAdvance_SidewaysTimeoutSkippedAfterRealMove(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(10, 0)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
	require.NoError(t, err)

	// An early push past 0.5R (7.5 points) disarms the sideways exit for good.
	_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5009, 4999, 5008), domain.RegimeNormal)
	require.NoError(t, err)

	res, err := m.Advance(ctx, barAt(entry.Add(91*time.Minute), 5008, 5009, 5001, 5002), domain.RegimeNormal)
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.True(t, m.Position().IsOpen())
}

func TestAdvance_UnderwaterTimeout(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(10, 0)
	m, err := Open(testMachineConfig(), noopLogger{}, shortSignal(5000, 10, entry), 2)
	require.NoError(t, err)

	// Underwater but young: stays open.
	_, err = m.Advance(ctx, barAt(entry.Add(44*time.Minute), 5001, 5006, 5000, 5005), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, m.Position().IsOpen())

	res, err := m.Advance(ctx, barAt(entry.Add(46*time.Minute), 5005, 5007, 5003, 5006), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, domain.CloseReasonUnderwaterExit, m.Position().CloseReason)
	assert.InDelta(t, -12.0, m.Position().RealizedPNL, 1e-9)
}

func TestAdvance_ForcedFlattenAtBoundary(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(20, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
	require.NoError(t, err)

	_, err = m.Advance(ctx, barAt(sessionTime(20, 44), 5000, 5002, 4999, 5001), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, m.Position().IsOpen())

	res, err := m.Advance(ctx, barAt(sessionTime(20, 45), 5001, 5003, 5000, 5002), domain.RegimeNormal)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, domain.CloseReasonForcedFlatten, m.Position().CloseReason)
	assert.InDelta(t, 5002.0, m.Position().ExitPrice, 1e-9)
}

func TestAdvance_FlatPositionRejectsFurtherBars(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 1)
	require.NoError(t, err)

	_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 4990, 4991, 4980, 4982), domain.RegimeNormal)
	require.NoError(t, err)
	require.False(t, m.Position().IsOpen())

	_, err = m.Advance(ctx, barAt(entry.Add(2*time.Minute), 4982, 4984, 4981, 4983), domain.RegimeNormal)
	assert.Error(t, err)
}

func TestAdvance_RealizedPNLSumsPartialsAndFinal(t *testing.T) {
	ctx := context.Background()
	entry := sessionTime(14, 30)
	m, err := Open(testMachineConfig(), noopLogger{}, longSignal(5000, 10, entry), 3)
	require.NoError(t, err)

	_, err = m.Advance(ctx, barAt(entry.Add(time.Minute), 5000, 5002, 4999, 5001), domain.RegimeTrending)
	require.NoError(t, err)

	// 2R partial at 5030: 0.99 units, +29.7.
	res, err := m.Advance(ctx, barAt(entry.Add(2*time.Minute), 5001, 5031, 5000, 5030), domain.RegimeTrending)
	require.NoError(t, err)
	require.Len(t, res.Partials, 1)

	// The 2R bar also armed breakeven and trailed the stop to 5030 - 60 ticks.
	require.InDelta(t, 5015.0, m.Position().CurrentStop, 1e-9)
	res, err = m.Advance(ctx, barAt(entry.Add(3*time.Minute), 5030, 5030, 5014, 5016), domain.RegimeTrending)
	require.NoError(t, err)
	assert.True(t, res.Closed)

	pos := m.Position()
	assert.Equal(t, domain.CloseReasonTrailingStop, pos.CloseReason)
	assert.InDelta(t, 29.7+2.01*15, pos.RealizedPNL, 1e-9) // partial plus remainder at 5015
	assert.InDelta(t, 0.0, pos.Quantity, 1e-9)
	assert.Len(t, pos.PartialExits, 1)
}
