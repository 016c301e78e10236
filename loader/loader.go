// Package loader owns the chart's in-memory candle dataset: initial and
// backward fetches merge into it, and live bars fold into its tail.
package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chaitanyamurarka/trading-platform-v3.1/backend"
	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

// ErrFetchInFlight reports that a fetch was skipped because another one
// holds the single in-flight slot.
var ErrFetchInFlight = errors.New("loader: fetch already in flight")

// Loader merges backend responses into one ascending candle sequence with
// a lockstep volume series. At most one fetch-and-merge runs at a time,
// and a result that lost a race with Reset is discarded whole.
type Loader struct {
	client *backend.Client
	token  func() string

	fetching atomic.Bool

	mu        sync.Mutex
	query     backend.Query
	candles   []candle.Candle
	volume    []candle.VolumePoint
	total     int
	exhausted bool
	gen       uint64
}

// New creates a Loader for q. The token func supplies the session token
// at request time, so a session restart needs no loader surgery.
func New(client *backend.Client, token func() string, q backend.Query) *Loader {
	return &Loader{client: client, token: token, query: q}
}

// State is a point-in-time view of the load window, consumed by the
// scroll controller.
type State struct {
	Len       int
	Oldest    int64 // open time of the oldest loaded bar; 0 when empty
	Total     int   // rows the backend reports for the active range
	Exhausted bool
	Fetching  bool
}

// Result describes one applied fetch.
type Result struct {
	Replaced  bool   // dataset was replaced rather than extended
	Prepended int    // bars added in front; 0 on a replace
	Empty     bool   // the requested window held no rows
	Stale     bool   // discarded, a Reset superseded this fetch
	Complete  bool   // backend marked the range fully delivered
	Len       int    // dataset length after the merge
	Message   string // backend notice, when present
}

// Query returns the active chart query.
func (l *Loader) Query() backend.Query {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// State reports the current load window.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := State{
		Len:       len(l.candles),
		Total:     l.total,
		Exhausted: l.exhausted,
		Fetching:  l.fetching.Load(),
	}
	if len(l.candles) > 0 {
		st.Oldest = l.candles[0].Time
	}
	return st
}

// Snapshot returns copies of both series. Callers may keep them across
// further mutations.
func (l *Loader) Snapshot() ([]candle.Candle, []candle.VolumePoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cs := make([]candle.Candle, len(l.candles))
	copy(cs, l.candles)
	vs := make([]candle.VolumePoint, len(l.volume))
	copy(vs, l.volume)
	return cs, vs
}

// Reset installs a new chart query and clears all load-window state. A
// fetch still in flight keeps its old generation and will be thrown away
// when it completes.
func (l *Loader) Reset(q backend.Query) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.query = q
	l.candles = nil
	l.volume = nil
	l.total = 0
	l.exhausted = false
	log.Info().
		Str("exchange", q.Exchange).
		Str("token", q.Token).
		Str("interval", string(q.Interval)).
		Uint64("gen", l.gen).
		Msg("loader reset")
}

// MarkExhausted sets the one-way backfill latch without a fetch. The
// scroll controller uses this when the next older window collapses to
// nothing.
func (l *Loader) MarkExhausted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.exhausted {
		l.exhausted = true
		log.Debug().Msg("backfill exhausted without fetch")
	}
}

// Load fetches [start, end] for the active query and merges the rows in.
// prepend extends the dataset in front of the oldest bar; otherwise the
// dataset is replaced. Only one Load may run at a time: a call made while
// another is in flight returns ErrFetchInFlight and touches nothing.
func (l *Loader) Load(ctx context.Context, start, end time.Time, prepend bool) (*Result, error) {
	if !l.fetching.CompareAndSwap(false, true) {
		log.Warn().Bool("prepend", prepend).Msg("fetch skipped, another is in flight")
		return nil, ErrFetchInFlight
	}
	defer l.fetching.Store(false)

	l.mu.Lock()
	gen := l.gen
	q := l.query
	l.mu.Unlock()
	q.Start, q.End = start, end

	resp, err := l.client.FetchHistorical(ctx, l.token(), q)
	if err != nil {
		log.Error().Err(err).Bool("prepend", prepend).Msg("historical fetch failed")
		return nil, err
	}
	return l.apply(gen, resp, prepend), nil
}

// apply merges one response under the dataset lock.
func (l *Loader) apply(gen uint64, resp *backend.HistoricalResponse, prepend bool) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen {
		log.Debug().Uint64("fetch_gen", gen).Uint64("gen", l.gen).Msg("discarding stale fetch result")
		return &Result{Stale: true}
	}

	res := &Result{Replaced: !prepend, Message: resp.Message, Complete: !resp.IsPartial}

	fresh := resp.Candles
	if prepend && len(l.candles) > 0 {
		// Trim overlap with the current head so the sequence stays
		// strictly ascending.
		oldest := l.candles[0].Time
		cut := len(fresh)
		for cut > 0 && fresh[cut-1].Time >= oldest {
			cut--
		}
		fresh = fresh[:cut]
	}

	if len(fresh) == 0 {
		res.Empty = true
		res.Len = len(l.candles)
		if prepend || !resp.IsPartial {
			l.exhausted = true
		}
		log.Info().Bool("prepend", prepend).Msg("window held no new rows")
		return res
	}

	vols := candle.Volumes(fresh)
	if prepend {
		merged := make([]candle.Candle, 0, len(fresh)+len(l.candles))
		merged = append(merged, fresh...)
		merged = append(merged, l.candles...)
		l.candles = merged

		volMerged := make([]candle.VolumePoint, 0, len(vols)+len(l.volume))
		volMerged = append(volMerged, vols...)
		volMerged = append(volMerged, l.volume...)
		l.volume = volMerged

		res.Prepended = len(fresh)
	} else {
		l.candles = fresh
		l.volume = vols
	}

	l.total = resp.TotalAvailable
	if !resp.IsPartial {
		l.exhausted = true
	}
	res.Len = len(l.candles)

	log.Info().
		Bool("prepend", prepend).
		Int("rows", len(fresh)).
		Int("len", res.Len).
		Int("total_available", resp.TotalAvailable).
		Bool("is_partial", resp.IsPartial).
		Str("request_id", resp.RequestID).
		Msg("historical data merged")
	return res
}

// ApplyLive folds a streamed bar into the tail of the dataset: same open
// time as the last bar replaces it, a newer one appends. Bars older than
// the tail are dropped, so live traffic never disturbs the backfill
// state. Returns false when nothing changed.
func (l *Loader) ApplyLive(c candle.Candle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.candles)
	if n == 0 {
		return false
	}
	switch last := l.candles[n-1].Time; {
	case c.Time == last:
		l.candles[n-1] = c
		l.volume[n-1] = candle.VolumeOf(c)
	case c.Time > last:
		l.candles = append(l.candles, c)
		l.volume = append(l.volume, candle.VolumeOf(c))
	default:
		return false
	}
	return true
}
