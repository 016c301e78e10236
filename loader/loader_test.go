package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chaitanyamurarka/trading-platform-v3.1/backend"
	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

const t0 = int64(1700000000)

// barJSON renders one wire candle at t0 + i minutes. Even bars close up,
// odd bars close down.
func barJSON(i int) string {
	open, close := 10.0, 11.0
	if i%2 == 1 {
		open, close = 11.0, 10.0
	}
	return fmt.Sprintf(`{"unix_timestamp": %d, "open": %g, "high": 12, "low": 9, "close": %g, "volume": %d}`,
		t0+int64(i)*60, open, close, 100+i)
}

func barsJSON(from, to int) string {
	var parts []string
	for i := from; i <= to; i++ {
		parts = append(parts, barJSON(i))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func respJSON(candles string, isPartial bool) string {
	return fmt.Sprintf(`{"request_id": "req-1", "candles": %s, "offset": 0, "total_available": 9, "is_partial": %v}`,
		candles, isPartial)
}

func testQuery() backend.Query {
	return backend.Query{
		Exchange: "NASDAQ",
		Token:    "AAPL",
		Interval: candle.Interval1m,
		Start:    time.Unix(t0, 0).UTC(),
		End:      time.Unix(t0+9*60, 0).UTC(),
	}
}

func newLoader(srvURL string) *Loader {
	return New(backend.New(srvURL), func() string { return "tok" }, testQuery())
}

func window(i, j int) (time.Time, time.Time) {
	return time.Unix(t0+int64(i)*60, 0).UTC(), time.Unix(t0+int64(j)*60, 0).UTC()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestInitialLoadReplacesDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, respJSON(barsJSON(6, 8), true))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)
	res, err := l.Load(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !res.Replaced || res.Len != 3 || res.Empty || res.Stale {
		t.Errorf("result %+v, want replace of 3 bars", res)
	}

	cs, vs := l.Snapshot()
	if len(cs) != 3 || len(vs) != 3 {
		t.Fatalf("snapshot %d/%d, want 3/3", len(cs), len(vs))
	}
	for i := range cs {
		if vs[i].Time != cs[i].Time || vs[i].Value != cs[i].Volume || vs[i].Up != cs[i].Up() {
			t.Errorf("volume[%d] out of lockstep: %+v vs %+v", i, vs[i], cs[i])
		}
	}
	if st := l.State(); st.Oldest != t0+6*60 || st.Exhausted {
		t.Errorf("state %+v, want oldest=%d not exhausted", st, t0+6*60)
	}
}

func TestPrependTrimsOverlapAndStaysAscending(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, respJSON(barsJSON(6, 8), true))
			return
		}
		// Older window, deliberately including the current oldest bar.
		fmt.Fprint(w, respJSON(barsJSON(3, 6), true))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)
	if _, err := l.Load(context.Background(), start, end, false); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	pStart, pEnd := window(0, 5)
	res, err := l.Load(context.Background(), pStart, pEnd, true)
	if err != nil {
		t.Fatalf("prepend Load: %v", err)
	}
	if res.Prepended != 3 || res.Replaced {
		t.Errorf("result %+v, want 3 prepended after overlap trim", res)
	}

	cs, vs := l.Snapshot()
	if len(cs) != 6 || len(vs) != 6 {
		t.Fatalf("snapshot %d bars, want 6", len(cs))
	}
	for i := 1; i < len(cs); i++ {
		if cs[i].Time <= cs[i-1].Time {
			t.Fatalf("not strictly ascending at %d: %d then %d", i, cs[i-1].Time, cs[i].Time)
		}
	}
	if st := l.State(); st.Oldest != t0+3*60 {
		t.Errorf("oldest %d, want %d", st.Oldest, t0+3*60)
	}
}

func TestLoadWhileInFlightIsRejected(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, respJSON(barsJSON(0, 2), false))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)

	firstDone := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background(), start, end, false)
		firstDone <- err
	}()
	waitFor(t, func() bool { return l.State().Fetching }, "first fetch never took the slot")

	if _, err := l.Load(context.Background(), start, end, true); !errors.Is(err, ErrFetchInFlight) {
		t.Fatalf("got %v, want ErrFetchInFlight", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if l.State().Fetching {
		t.Error("fetch slot still held after completion")
	}
	// The slot must be free again for the next call.
	if _, err := l.Load(context.Background(), start, end, false); err != nil {
		t.Fatalf("Load after release: %v", err)
	}
}

func TestFetchSlotClearsAfterFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"detail":"boom"}`)
			return
		}
		fmt.Fprint(w, respJSON(barsJSON(0, 2), false))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)

	_, err := l.Load(context.Background(), start, end, false)
	var se *backend.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want *StatusError", err)
	}
	if l.State().Fetching {
		t.Fatal("fetch slot still held after a failed fetch")
	}
	if _, err := l.Load(context.Background(), start, end, false); err != nil {
		t.Fatalf("Load after failure: %v", err)
	}
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, respJSON(barsJSON(0, 8), false))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)

	done := make(chan *Result, 1)
	go func() {
		res, err := l.Load(context.Background(), start, end, false)
		if err != nil {
			t.Errorf("Load: %v", err)
		}
		done <- res
	}()
	waitFor(t, func() bool { return l.State().Fetching }, "fetch never started")

	l.Reset(testQuery())
	close(release)

	res := <-done
	if res == nil || !res.Stale {
		t.Fatalf("result %+v, want stale discard", res)
	}
	cs, _ := l.Snapshot()
	if len(cs) != 0 {
		t.Errorf("stale result leaked %d bars into the dataset", len(cs))
	}
	if st := l.State(); st.Exhausted {
		t.Error("stale complete response latched exhaustion")
	}
}

func TestEmptyPrependLatchesExhaustion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, respJSON(barsJSON(6, 8), true))
			return
		}
		fmt.Fprint(w, respJSON("[]", true))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)
	if _, err := l.Load(context.Background(), start, end, false); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	pStart, pEnd := window(0, 5)
	res, err := l.Load(context.Background(), pStart, pEnd, true)
	if err != nil {
		t.Fatalf("prepend Load: %v", err)
	}
	if !res.Empty {
		t.Errorf("result %+v, want empty", res)
	}
	if !l.State().Exhausted {
		t.Error("empty prepend should latch exhaustion")
	}

	// Only Reset may clear the latch.
	l.Reset(testQuery())
	if l.State().Exhausted {
		t.Error("Reset should clear the latch")
	}
}

func TestCompleteResponseLatchesExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, respJSON(barsJSON(0, 8), false))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)
	res, err := l.Load(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !res.Complete {
		t.Errorf("result %+v, want complete", res)
	}
	if !l.State().Exhausted {
		t.Error("non-partial response should latch exhaustion")
	}
}

func TestApplyLiveTouchesOnlyTheTail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, respJSON(barsJSON(0, 2), true))
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)
	if _, err := l.Load(context.Background(), start, end, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	oldestBefore := l.State().Oldest

	// Same bucket as the tail: update in place.
	last := t0 + 2*60
	if !l.ApplyLive(candle.Candle{Time: last, Open: 10, High: 15, Low: 9, Close: 14, Volume: 500}) {
		t.Fatal("in-place live update rejected")
	}
	cs, vs := l.Snapshot()
	if len(cs) != 3 || cs[2].Close != 14 || vs[2].Value != 500 || !vs[2].Up {
		t.Errorf("tail after in-place update: %+v / %+v", cs[2], vs[2])
	}

	// Newer bucket: append.
	if !l.ApplyLive(candle.Candle{Time: last + 60, Open: 14, High: 14, Low: 13, Close: 13, Volume: 50}) {
		t.Fatal("appending live update rejected")
	}
	cs, vs = l.Snapshot()
	if len(cs) != 4 || len(vs) != 4 || vs[3].Up {
		t.Errorf("append left %d bars, tail %+v", len(cs), vs[len(vs)-1])
	}

	// Older than the tail: dropped.
	if l.ApplyLive(candle.Candle{Time: last - 60, Close: 1}) {
		t.Error("out-of-order live bar should be dropped")
	}
	if got := l.State().Oldest; got != oldestBefore {
		t.Errorf("live updates moved oldest from %d to %d", oldestBefore, got)
	}
}

func TestApplyLiveIgnoredWhileEmpty(t *testing.T) {
	l := newLoader("http://unused")
	if l.ApplyLive(candle.Candle{Time: t0, Close: 1}) {
		t.Error("live bar on an empty dataset should be dropped")
	}
}

func TestSummaryUsesPreviousClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candles": [
			{"unix_timestamp": 1700000000, "open": 10, "high": 12, "low": 9, "close": 10},
			{"unix_timestamp": 1700000060, "open": 10, "high": 13, "low": 10, "close": 12.5}
		], "total_available": 2, "is_partial": false}`)
	}))
	defer srv.Close()

	l := newLoader(srv.URL)
	start, end := window(0, 9)
	if _, err := l.Load(context.Background(), start, end, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	s, ok := l.Summary()
	if !ok {
		t.Fatal("summary missing after load")
	}
	if s.Change != 2.5 || s.ChangePct != 25 {
		t.Errorf("change %+.2f (%+.2f%%), want +2.50 (+25.00%%)", s.Change, s.ChangePct)
	}
	if s.Exchange != "NASDAQ" || s.Token != "AAPL" || s.Interval != candle.Interval1m {
		t.Errorf("summary identity %s:%s %s wrong", s.Exchange, s.Token, s.Interval)
	}

	line := s.String()
	for _, want := range []string{"NASDAQ:AAPL", "C:12.50", "+2.50", "+25.00%"} {
		if !strings.Contains(line, want) {
			t.Errorf("summary line %q missing %q", line, want)
		}
	}
}

func TestSummaryEmptyDataset(t *testing.T) {
	l := newLoader("http://unused")
	if _, ok := l.Summary(); ok {
		t.Error("summary should be absent while the dataset is empty")
	}
}

func TestFormatVolumeShortens(t *testing.T) {
	cases := map[float64]string{
		0:         "0",
		950:       "950",
		1500:      "1.5K",
		2_400_000: "2.40M",
		3.1e9:     "3.10B",
	}
	for in, want := range cases {
		if got := FormatVolume(in); got != want {
			t.Errorf("FormatVolume(%v) = %q, want %q", in, got, want)
		}
	}
}
