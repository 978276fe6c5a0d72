package core_test

import (
	"testing"

	"github.com/holmgr/go-dismutex/pkg/dismutex/core"
	"github.com/stretchr/testify/require"
)

func TestClock_TickAdvancesByOne(t *testing.T) {
	clock := core.NewClock()
	require.Equal(t, uint64(0), clock.Tock())
	require.Equal(t, uint64(1), clock.Tick())
	require.Equal(t, uint64(2), clock.Tick())
	require.Equal(t, uint64(2), clock.Tock())
}

func TestClock_SyncLeapsPastSeenTimestamp(t *testing.T) {
	clock := core.NewClock()
	// A stamp from the future wins.
	require.Equal(t, uint64(10), clock.Sync(10))
	// A stale stamp still moves the clock by one.
	require.Equal(t, uint64(11), clock.Sync(3))
}

func TestClock_LeapNeverMovesBackwards(t *testing.T) {
	clock := core.NewClock()
	clock.Leap(5)
	require.Equal(t, uint64(5), clock.Tock())
	clock.Leap(2)
	require.Equal(t, uint64(5), clock.Tock())
}
