package indicator

import (
	"math"
	"testing"

	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

func closesAsCandles(closes ...float64) []candle.Candle {
	out := make([]candle.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle.Candle{Time: 1700000000 + int64(i)*60, Close: c}
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMASkipsWarmupBars(t *testing.T) {
	candles := closesAsCandles(1, 2, 3, 4, 5)
	s := Compute(SMA, 3, candles)
	if s == nil {
		t.Fatal("no series computed")
	}
	if s.Name != "SMA (3)" {
		t.Errorf("name %q, want SMA (3)", s.Name)
	}
	if len(s.Points) != 3 {
		t.Fatalf("%d points, want 3 (two warm-up bars skipped)", len(s.Points))
	}

	want := []float64{2, 3, 4}
	for i, p := range s.Points {
		if wantTime := candles[i+2].Time; p.Time != wantTime {
			t.Errorf("point %d time %d, want %d", i, p.Time, wantTime)
		}
		if !approx(p.Value, want[i]) {
			t.Errorf("point %d value %v, want %v", i, p.Value, want[i])
		}
	}
}

func TestEMASeedsFromSMA(t *testing.T) {
	s := Compute(EMA, 3, closesAsCandles(1, 2, 3, 4, 5))
	if s == nil {
		t.Fatal("no series computed")
	}
	// Seed is SMA(1,2,3)=2, smoothing factor 2/(3+1)=0.5.
	want := []float64{2, 3, 4}
	for i, p := range s.Points {
		if !approx(p.Value, want[i]) {
			t.Errorf("point %d value %v, want %v", i, p.Value, want[i])
		}
	}
}

func TestComputeNilCases(t *testing.T) {
	candles := closesAsCandles(1, 2, 3)
	if Compute(None, 20, candles) != nil {
		t.Error("disabled overlay should yield nil")
	}
	if Compute(SMA, 0, candles) != nil {
		t.Error("non-positive period should yield nil")
	}
	if Compute(SMA, 4, candles) != nil {
		t.Error("fewer bars than the period should yield nil")
	}
}

func TestAtFindsAlignedValues(t *testing.T) {
	s := Compute(SMA, 3, closesAsCandles(1, 2, 3, 4, 5))
	if v, ok := s.At(1700000000 + 2*60); !ok || !approx(v, 2) {
		t.Errorf("At(third bar) = %v,%v, want 2,true", v, ok)
	}
	if _, ok := s.At(1700000000); ok {
		t.Error("warm-up bar should have no value")
	}

	var nilSeries *Series
	if _, ok := nilSeries.At(1700000000); ok {
		t.Error("nil series should have no values")
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": None, "none": None, "sma": SMA, "ema": EMA} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v,%v", in, got, err)
		}
	}
	if _, err := ParseKind("wma"); err == nil {
		t.Error("unknown kind should fail")
	}
}

func TestKindCycle(t *testing.T) {
	if None.Next() != SMA || SMA.Next() != EMA || EMA.Next() != None {
		t.Error("display cycle should be none, sma, ema, none")
	}
}
