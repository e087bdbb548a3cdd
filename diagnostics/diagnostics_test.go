package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveOnlyTracksAtDetailedLevel(t *testing.T) {
	basic := New(DebugLevelBasic)
	basic.Observe("main", 3)
	require.Empty(t, basic.HotSpots(0))

	detailed := New(DebugLevelDetailed)
	detailed.Observe("main", 3)
	detailed.Observe("main", 3)
	detailed.Observe("main", 7)
	spots := detailed.HotSpots(0)
	require.Len(t, spots, 2)
	require.Equal(t, HotSpot{Module: "main", IP: 3, Count: 2}, spots[0])
}

func TestHotSpotsLimitsAndOrdersByCount(t *testing.T) {
	r := New(DebugLevelDetailed)
	for i := 0; i < 5; i++ {
		r.Observe("m", i)
	}
	r.Observe("m", 2)
	r.Observe("m", 2)

	top := r.HotSpots(1)
	require.Len(t, top, 1)
	require.Equal(t, 2, top[0].IP)
	require.Equal(t, 3, top[0].Count)
}

func TestObserveGCRespectsNoneLevel(t *testing.T) {
	r := New(DebugLevelNone)
	r.ObserveGC(5, 10)
	require.Equal(t, "diagnostics disabled", r.Summary())
}

func TestNilRecorderIsSafeToCall(t *testing.T) {
	var r *Recorder
	require.NotPanics(t, func() {
		r.Observe("m", 0)
		r.ObserveGC(1, 2)
		_ = r.HotSpots(0)
		_ = r.Summary()
	})
}

func TestSummaryReportsAccumulatedCounts(t *testing.T) {
	r := New(DebugLevelDetailed)
	r.Observe("main", 0)
	r.Observe("main", 1)
	r.ObserveGC(3, 12)
	require.Contains(t, r.Summary(), "instructions executed: 2")
	require.Contains(t, r.Summary(), "gc runs: 1")
}
