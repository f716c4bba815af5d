package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opened(id string) PositionOpened {
	return PositionOpened{Timestamp: time.Now().UTC(), PositionID: id, Symbol: "BTCUSDT"}
}

func TestBus_DeliversInOrder(t *testing.T) {
	b := NewBus(4, nil)
	defer b.Close()

	b.Publish(opened("a"))
	b.Publish(opened("b"))

	assert.Equal(t, "a", (<-b.Events()).(PositionOpened).PositionID)
	assert.Equal(t, "b", (<-b.Events()).(PositionOpened).PositionID)
}

func TestBus_FullBufferDropsOldest(t *testing.T) {
	var dropped []Event
	b := NewBus(2, func(e Event) { dropped = append(dropped, e) })
	defer b.Close()

	b.Publish(opened("a"))
	b.Publish(opened("b"))
	b.Publish(opened("c")) // evicts "a"

	require.Len(t, dropped, 1)
	assert.Equal(t, "a", dropped[0].(PositionOpened).PositionID)

	assert.Equal(t, "b", (<-b.Events()).(PositionOpened).PositionID)
	assert.Equal(t, "c", (<-b.Events()).(PositionOpened).PositionID)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := NewBus(2, nil)
	b.Publish(opened("a"))
	b.Close()
	b.Close()

	// Publishing after close is a no-op, not a panic.
	b.Publish(opened("b"))

	ev, ok := <-b.Events()
	require.True(t, ok)
	assert.Equal(t, "a", ev.(PositionOpened).PositionID)

	_, ok = <-b.Events()
	assert.False(t, ok)
}

func TestEventKinds(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		event Event
		kind  Type
	}{
		{PositionOpened{Timestamp: now}, TypePositionOpened},
		{PositionClosed{Timestamp: now}, TypePositionClosed},
		{StopAdjusted{Timestamp: now}, TypeStopAdjusted},
		{RiskLimitBreached{Timestamp: now}, TypeRiskLimitBreached},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, tt.event.Kind())
		assert.Equal(t, now, tt.event.When())
	}
}
