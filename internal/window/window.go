package window

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Default knobs. The cache interval throttles recomputation of the rolling
// totals; cached values can therefore lag exact by up to one interval.
const (
	DefaultWindowSecs int64 = 24 * 60 * 60
	DefaultCacheSecs  int64 = 2 * 60
)

// Entry is one swap's contribution to the rolling window.
type Entry struct {
	Timestamp int64
	Volume    decimal.Decimal
	Fee       decimal.Decimal
}

// State holds the per-pool rolling window. Two fixed-role buckets are
// swapped by reference on rotation instead of splicing a single array.
type State struct {
	today     []Entry
	yesterday []Entry

	dailyVolume decimal.Decimal
	dailyFees   decimal.Decimal
	dailyCount  int64
	swapCount   int64
	last        int64
}

// Totals is the cached rolling-window readout.
type Totals struct {
	Volume decimal.Decimal
	Fees   decimal.Decimal
	Count  int64
}

// Tracker maintains one State per pool.
type Tracker struct {
	windowSecs int64
	cacheSecs  int64
	states     map[string]*State
	logger     *zap.Logger
}

// NewTracker builds a tracker; zero window/cache values fall back to the
// defaults.
func NewTracker(windowSecs, cacheSecs int64, logger *zap.Logger) *Tracker {
	if windowSecs <= 0 {
		windowSecs = DefaultWindowSecs
	}
	if cacheSecs <= 0 {
		cacheSecs = DefaultCacheSecs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		windowSecs: windowSecs,
		cacheSecs:  cacheSecs,
		states:     make(map[string]*State),
		logger:     logger,
	}
}

// Init creates the window state for a pool. Called exactly once per pool at
// creation; a second call is an invariant breach. last is backdated by one
// cache interval so the first recorded swap triggers a recompute.
func (t *Tracker) Init(poolID string, now int64) error {
	if _, ok := t.states[poolID]; ok {
		return fmt.Errorf("window state already initialized for pool %s", poolID)
	}
	t.states[poolID] = &State{
		dailyVolume: decimal.Zero,
		dailyFees:   decimal.Zero,
		last:        now - t.cacheSecs,
	}
	return nil
}

// Record appends a swap to the pool's today bucket, rotating first if the
// bucket's oldest entry has aged out of the window. Recording against a pool
// that was never initialized is a configuration error.
func (t *Tracker) Record(poolID string, e Entry) error {
	state, ok := t.states[poolID]
	if !ok {
		return fmt.Errorf("no window state for pool %s", poolID)
	}

	limit := e.Timestamp - t.windowSecs
	if len(state.today) > 0 && state.today[0].Timestamp < limit {
		state.yesterday = state.today
		state.today = nil
		t.logger.Debug("window rotated",
			zap.String("pool", poolID),
			zap.Int64("oldest", state.yesterday[0].Timestamp),
			zap.Int64("now", e.Timestamp),
		)
	}
	state.today = append(state.today, e)
	state.swapCount++

	t.maybeRecompute(state, e.Timestamp)
	return nil
}

// Totals returns the cached rolling totals, recomputing first if the cache
// interval has elapsed. A pool with zero swaps reports zeros.
func (t *Tracker) Totals(poolID string, now int64) (Totals, error) {
	state, ok := t.states[poolID]
	if !ok {
		return Totals{}, fmt.Errorf("no window state for pool %s", poolID)
	}
	t.maybeRecompute(state, now)
	return Totals{
		Volume: state.dailyVolume,
		Fees:   state.dailyFees,
		Count:  state.dailyCount,
	}, nil
}

// SwapCount is the running counter; it accumulates for the life of the pool
// and is never reset on rotation.
func (t *Tracker) SwapCount(poolID string) (int64, bool) {
	state, ok := t.states[poolID]
	if !ok {
		return 0, false
	}
	return state.swapCount, true
}

// WindowSecs returns the configured rolling-window length.
func (t *Tracker) WindowSecs() int64 {
	return t.windowSecs
}

// Initialized reports whether the pool has window state.
func (t *Tracker) Initialized(poolID string) bool {
	_, ok := t.states[poolID]
	return ok
}

func (t *Tracker) maybeRecompute(state *State, now int64) {
	if now <= state.last+t.cacheSecs {
		return
	}
	volume, fees, count := state.recompute(now - t.windowSecs)
	state.dailyVolume = volume
	state.dailyFees = fees
	state.dailyCount = count
	state.last = now
}

// recompute sums yesterday's entries still inside the window plus all of
// today's. Today entries are assumed in-window because rotation already
// evicted a stale bucket; the window is therefore exact only up to one
// rotation plus the cache interval.
func (s *State) recompute(limit int64) (decimal.Decimal, decimal.Decimal, int64) {
	volume := decimal.Zero
	fees := decimal.Zero
	var count int64
	for _, e := range s.yesterday {
		if e.Timestamp > limit {
			volume = volume.Add(e.Volume)
			fees = fees.Add(e.Fee)
			count++
		}
	}
	for _, e := range s.today {
		volume = volume.Add(e.Volume)
		fees = fees.Add(e.Fee)
		count++
	}
	return volume, fees, count
}
