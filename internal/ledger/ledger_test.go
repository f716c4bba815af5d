package ledger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/risk-engine/pkg/types"
)

func newTestLedger(equity float64) *Ledger {
	return New(equity, 0, 0, zerolog.Nop())
}

func openDelta(id string, side types.Side, qty, entry, stop float64) Delta {
	return Delta{
		Kind: DeltaOpen,
		Position: &Position{
			ID:         id,
			Symbol:     "BTCUSDT",
			Side:       side,
			Quantity:   qty,
			EntryPrice: entry,
			StopPrice:  stop,
		},
	}
}

func TestOpenClose_RoundTripRealizesOnlyFees(t *testing.T) {
	l := newTestLedger(100000)

	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	state, err := l.Apply(Delta{Kind: DeltaClose, PositionID: "p1", Price: 50000, Fees: 10})
	require.NoError(t, err)

	assert.InDelta(t, -10.0, state.RealizedPnLToday, 1e-9)
	assert.InDelta(t, 99990.0, state.Equity, 1e-9)
	assert.Equal(t, 0, state.OpenCount())

	closed := l.ClosedPositions("")
	require.Len(t, closed, 1)
	assert.InDelta(t, -10.0, closed[0].RealizedPnL, 1e-9)
	assert.Equal(t, StatusClosed, closed[0].Status)
}

func TestOpen_NonPositiveQuantityRejected(t *testing.T) {
	l := newTestLedger(100000)

	_, err := l.Apply(openDelta("p1", types.SideLong, 0, 50000, 49000))
	require.Error(t, err)
	assert.Equal(t, ErrCodeNonPositiveQuantity, CodeOf(err))

	_, err = l.Apply(openDelta("p2", types.SideLong, -1, 50000, 49000))
	assert.Equal(t, ErrCodeNonPositiveQuantity, CodeOf(err))
}

func TestOpen_WrongSideStopIsInvariantViolation(t *testing.T) {
	l := newTestLedger(100000)

	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 51000))
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))

	_, err = l.Apply(openDelta("p2", types.SideShort, 1.0, 50000, 49000))
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))

	// Nothing was applied.
	assert.Equal(t, 0, l.Snapshot().OpenCount())
}

func TestClose_UnknownPosition(t *testing.T) {
	l := newTestLedger(100000)

	_, err := l.Apply(Delta{Kind: DeltaClose, PositionID: "missing", Price: 50000})
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnknownPosition, CodeOf(err))
}

func TestPriceRefresh_PeakEquityIsMonotonic(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	state, err := l.Apply(Delta{Kind: DeltaPriceRefresh, PositionID: "p1", Price: 52000})
	require.NoError(t, err)
	assert.InDelta(t, 102000.0, state.Equity, 1e-9)
	assert.InDelta(t, 102000.0, state.PeakEquity, 1e-9)

	state, err = l.Apply(Delta{Kind: DeltaPriceRefresh, PositionID: "p1", Price: 48000})
	require.NoError(t, err)
	assert.InDelta(t, 98000.0, state.Equity, 1e-9)
	assert.InDelta(t, 102000.0, state.PeakEquity, 1e-9)
	assert.GreaterOrEqual(t, state.PeakEquity, state.Equity)
}

func TestPriceRefresh_OutOfOrderTickIgnored(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	t2 := time.Now().UTC()
	t1 := t2.Add(-time.Minute)

	_, err = l.Apply(Delta{Kind: DeltaPriceRefresh, PositionID: "p1", Price: 51000, Timestamp: t2})
	require.NoError(t, err)

	state, err := l.Apply(Delta{Kind: DeltaPriceRefresh, PositionID: "p1", Price: 40000, Timestamp: t1})
	require.NoError(t, err)
	assert.InDelta(t, 51000.0, state.OpenPositions["p1"].CurrentPrice, 1e-9)
}

func TestPriceRefresh_TickBehindOpenWallClockStillApplies(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	// Exchange clocks can lag the local clock that stamped the open; the
	// tick must still mark the position to market.
	backdated := time.Now().UTC().Add(-time.Hour)
	state, err := l.Apply(Delta{Kind: DeltaPriceRefresh, PositionID: "p1", Price: 49100, Timestamp: backdated})
	require.NoError(t, err)

	assert.InDelta(t, 49100.0, state.OpenPositions["p1"].CurrentPrice, 1e-9)
	assert.InDelta(t, -900.0, state.OpenPositions["p1"].UnrealizedPnL, 1e-9)
	assert.InDelta(t, 99100.0, state.Equity, 1e-9)
}

func TestPriceRefresh_StopUpdateDoesNotGateTicks(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	t1 := time.Now().UTC().Add(-2 * time.Hour)
	_, err = l.Apply(Delta{Kind: DeltaPriceRefresh, PositionID: "p1", Price: 50600, Timestamp: t1})
	require.NoError(t, err)

	// The stop update stamps LastUpdate with a later local time; the next
	// tick is still newer than the last accepted tick and must apply.
	_, err = l.Apply(Delta{Kind: DeltaStopUpdate, PositionID: "p1", NewStop: 50000, Reason: "trailing"})
	require.NoError(t, err)

	state, err := l.Apply(Delta{Kind: DeltaPriceRefresh, PositionID: "p1", Price: 50700, Timestamp: t1.Add(time.Minute)})
	require.NoError(t, err)
	assert.InDelta(t, 50700.0, state.OpenPositions["p1"].CurrentPrice, 1e-9)
}

func TestStopUpdate_LooseningRefused(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	state, err := l.Apply(Delta{Kind: DeltaStopUpdate, PositionID: "p1", NewStop: 49500, Reason: "trailing"})
	require.NoError(t, err)
	assert.InDelta(t, 49500.0, state.OpenPositions["p1"].StopPrice, 1e-9)

	_, err = l.Apply(Delta{Kind: DeltaStopUpdate, PositionID: "p1", NewStop: 49200, Reason: "trailing"})
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
	assert.InDelta(t, 49500.0, l.Snapshot().OpenPositions["p1"].StopPrice, 1e-9)
}

func TestStopUpdate_ShortSideTightensDownward(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideShort, 1.0, 50000, 51000))
	require.NoError(t, err)

	state, err := l.Apply(Delta{Kind: DeltaStopUpdate, PositionID: "p1", NewStop: 50500, Reason: "trailing"})
	require.NoError(t, err)
	assert.InDelta(t, 50500.0, state.OpenPositions["p1"].StopPrice, 1e-9)

	_, err = l.Apply(Delta{Kind: DeltaStopUpdate, PositionID: "p1", NewStop: 50800, Reason: "trailing"})
	assert.True(t, IsInvariantViolation(err))
}

func TestPendingClose_PositionStaysVisible(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	state, err := l.Apply(Delta{Kind: DeltaPendingClose, PositionID: "p1", Reason: "stop_loss"})
	require.NoError(t, err)

	require.Equal(t, 1, state.OpenCount())
	assert.Equal(t, StatusPendingClose, state.OpenPositions["p1"].Status)
	assert.Equal(t, "stop_loss", state.OpenPositions["p1"].CloseReason)
}

func TestDailyReset_ClearsRealizedPnL(t *testing.T) {
	l := newTestLedger(100000)

	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })

	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)
	state, err := l.Apply(Delta{Kind: DeltaClose, PositionID: "p1", Price: 49000, Fees: 5, Timestamp: now})
	require.NoError(t, err)
	assert.InDelta(t, -1005.0, state.RealizedPnLToday, 1e-9)

	// Cross the midnight boundary; the next mutation triggers the reset.
	now = now.Add(13 * time.Hour)
	_, err = l.Apply(openDelta("p2", types.SideLong, 1.0, 49000, 48000))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, l.Snapshot().RealizedPnLToday, 1e-9)
}

func TestRestore_RebuildsEquityAndPositions(t *testing.T) {
	l := newTestLedger(0)

	snapshots := []types.PositionSnapshot{
		{
			ID: "p1", Symbol: "BTCUSDT", Side: types.SideLong,
			Quantity: 0.5, EntryPrice: 50000, CurrentPrice: 52000, StopPrice: 49000,
		},
		{
			ID: "p2", Symbol: "ETHUSDT", Side: types.SideShort,
			Quantity: 2.0, EntryPrice: 3000, CurrentPrice: 2900, StopPrice: 3100,
		},
	}
	require.NoError(t, l.Restore(snapshots, 105000))

	state := l.Snapshot()
	assert.Equal(t, 2, state.OpenCount())
	assert.InDelta(t, 105000.0, state.Equity, 1e-9)
	// p1 unrealized +1000, p2 unrealized +200.
	assert.InDelta(t, 103800.0, state.CashBalance, 1e-9)
}

func TestRestore_RejectsBadSnapshots(t *testing.T) {
	l := newTestLedger(0)

	err := l.Restore([]types.PositionSnapshot{
		{ID: "p1", Symbol: "BTCUSDT", Side: types.SideLong, Quantity: -1, EntryPrice: 50000, CurrentPrice: 50000, StopPrice: 49000},
	}, 100000)
	assert.Equal(t, ErrCodeNonPositiveQuantity, CodeOf(err))

	err = l.Restore([]types.PositionSnapshot{
		{ID: "p1", Symbol: "BTCUSDT", Side: types.SideLong, Quantity: 1, EntryPrice: 50000, CurrentPrice: 50000, StopPrice: 51000},
	}, 100000)
	assert.True(t, IsInvariantViolation(err))
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 1.0, 50000, 49000))
	require.NoError(t, err)

	snap := l.Snapshot()
	p := snap.OpenPositions["p1"]
	p.StopPrice = 1
	snap.OpenPositions["p1"] = p

	assert.InDelta(t, 49000.0, l.Snapshot().OpenPositions["p1"].StopPrice, 1e-9)
}

func TestExposureHelpers(t *testing.T) {
	l := newTestLedger(100000)
	_, err := l.Apply(openDelta("p1", types.SideLong, 0.2, 50000, 49000))
	require.NoError(t, err)
	_, err = l.Apply(Delta{
		Kind: DeltaOpen,
		Position: &Position{
			ID: "p2", Symbol: "ETHUSDT", Side: types.SideShort,
			Quantity: 2.0, EntryPrice: 3000, StopPrice: 3100,
		},
	})
	require.NoError(t, err)

	state := l.Snapshot()
	assert.InDelta(t, 16000.0, state.TotalExposure(), 1e-9)
	bySymbol := state.ExposureBySymbol()
	assert.InDelta(t, 10000.0, bySymbol["BTCUSDT"], 1e-9)
	assert.InDelta(t, 6000.0, bySymbol["ETHUSDT"], 1e-9)

	byClass := state.ExposureByClass(func(string) string { return "crypto" })
	assert.InDelta(t, 16000.0, byClass["crypto"], 1e-9)
}
