package candle

// Candle is one OHLCV sample for a fixed time bucket as served by the
// historical data API. Time is the bucket open in Unix seconds (UTC).
// Datasets keep candles strictly ascending by Time with no duplicates.
type Candle struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Up reports whether the candle closed above its open. Candle bodies and
// volume bars share this single direction convention.
func (c Candle) Up() bool { return c.Close > c.Open }

// VolumePoint is the volume-pane companion of a candle. A dataset keeps
// its volume points in lockstep with the candle sequence: equal length
// and ordering, with matching Time at every index.
type VolumePoint struct {
	Time  int64
	Value float64
	Up    bool
}

// VolumeOf derives the volume point for c.
func VolumeOf(c Candle) VolumePoint {
	return VolumePoint{Time: c.Time, Value: c.Volume, Up: c.Up()}
}

// Volumes derives the volume series for a candle sequence.
func Volumes(candles []Candle) []VolumePoint {
	if len(candles) == 0 {
		return nil
	}
	out := make([]VolumePoint, len(candles))
	for i, c := range candles {
		out[i] = VolumeOf(c)
	}
	return out
}
