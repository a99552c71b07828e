package window

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(ts int64, volume, fee string) Entry {
	return Entry{Timestamp: ts, Volume: dec(volume), Fee: dec(fee)}
}

func TestRecordRequiresInit(t *testing.T) {
	tr := NewTracker(0, 0, nil)
	if err := tr.Record("pool", entry(10, "1", "0")); err == nil {
		t.Fatalf("expected error for uninitialized pool")
	}
	if _, err := tr.Totals("pool", 10); err == nil {
		t.Fatalf("expected error for uninitialized pool")
	}
}

func TestDoubleInitFails(t *testing.T) {
	tr := NewTracker(0, 0, nil)
	if err := tr.Init("pool", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Init("pool", 50); err == nil {
		t.Fatalf("expected error on second init")
	}
}

func TestZeroSwapsReportsZero(t *testing.T) {
	tr := NewTracker(0, 0, nil)
	if err := tr.Init("pool", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	totals, err := tr.Totals("pool", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Volume.IsZero() || !totals.Fees.IsZero() || totals.Count != 0 {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
}

func TestFirstSwapTriggersRecompute(t *testing.T) {
	// init backdates last by one cache interval, so a swap at t=10
	// recomputes immediately (10 > -120+120).
	tr := NewTracker(86400, 120, nil)
	if err := tr.Init("pool", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Record("pool", entry(10, "5", "0.5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	totals, err := tr.Totals("pool", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Volume.Equal(dec("5")) || !totals.Fees.Equal(dec("0.5")) || totals.Count != 1 {
		t.Fatalf("totals mismatch: %+v", totals)
	}
}

func TestCachedTotalsReusedWithinInterval(t *testing.T) {
	tr := NewTracker(86400, 120, nil)
	if err := tr.Init("pool", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Record("pool", entry(10, "5", "0.5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second swap inside the cache interval must not move the cached
	// totals, and repeated reads return identical values.
	if err := tr.Record("pool", entry(50, "7", "0.7")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		totals, err := tr.Totals("pool", 60)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !totals.Volume.Equal(dec("5")) {
			t.Fatalf("expected cached volume 5, got %s", totals.Volume)
		}
	}

	// Once the interval elapses the second swap shows up.
	totals, err := tr.Totals("pool", 131)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Volume.Equal(dec("12")) || !totals.Fees.Equal(dec("1.2")) || totals.Count != 2 {
		t.Fatalf("totals mismatch: %+v", totals)
	}
}

func TestRotationEvictsAgedEntries(t *testing.T) {
	tr := NewTracker(86400, 120, nil)
	if err := tr.Init("pool", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Record("pool", entry(10, "5", "0.5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Record("pool", entry(43200, "3", "0.3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The oldest open entry (t=10) is older than now-24h, so recording
	// rotates today into yesterday. The t=10 entry has aged out; t=43200
	// is still inside the window and must survive in yesterday.
	now := int64(10 + 86400 + 100)
	if err := tr.Record("pool", entry(now, "2", "0.2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	totals, err := tr.Totals("pool", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !totals.Volume.Equal(dec("5")) || !totals.Fees.Equal(dec("0.5")) || totals.Count != 2 {
		t.Fatalf("totals mismatch after rotation: %+v", totals)
	}
}

func TestWindowSumMatchesExact(t *testing.T) {
	// Property from the design: recompute(t_n) equals the exact sum over
	// swaps newer than t_n-24h when rotation has had a chance to run.
	tr := NewTracker(86400, 1, nil)
	if err := tr.Init("pool", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stamps := []int64{100, 5000, 40000, 86000, 90000, 170000}
	for _, ts := range stamps {
		if err := tr.Record("pool", entry(ts, "1", "0.1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	last := stamps[len(stamps)-1]
	totals, err := tr.Totals("pool", last+2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var want int64
	for _, ts := range stamps {
		if ts > last-86400 {
			want++
		}
	}
	if totals.Count != want {
		t.Fatalf("window count %d, want %d", totals.Count, want)
	}
	if !totals.Volume.Equal(decimal.NewFromInt(want)) {
		t.Fatalf("window volume %s, want %d", totals.Volume, want)
	}
}

func TestRunningSwapCountNeverResets(t *testing.T) {
	tr := NewTracker(86400, 1, nil)
	if err := tr.Init("pool", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stamps := []int64{10, 20, 200000, 400000}
	for _, ts := range stamps {
		if err := tr.Record("pool", entry(ts, "1", "0")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	count, ok := tr.SwapCount("pool")
	if !ok || count != int64(len(stamps)) {
		t.Fatalf("running count %d ok=%v, want %d", count, ok, len(stamps))
	}
}
