package candle

import (
	"fmt"
	"time"
)

// Interval is a candle timeframe accepted by the historical data API.
type Interval string

const (
	Interval1s  Interval = "1s"
	Interval5s  Interval = "5s"
	Interval10s Interval = "10s"
	Interval15s Interval = "15s"
	Interval30s Interval = "30s"
	Interval45s Interval = "45s"
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval10m Interval = "10m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval45m Interval = "45m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
)

// intervalSeconds mirrors the backend's timeframe table. Anything missing
// here is rejected before a request is built.
var intervalSeconds = map[Interval]int64{
	Interval1s:  1,
	Interval5s:  5,
	Interval10s: 10,
	Interval15s: 15,
	Interval30s: 30,
	Interval45s: 45,
	Interval1m:  60,
	Interval5m:  300,
	Interval10m: 600,
	Interval15m: 900,
	Interval30m: 1800,
	Interval45m: 2700,
	Interval1h:  3600,
	Interval1d:  86400,
}

// ParseInterval validates s against the supported timeframe set.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalSeconds[iv]; !ok {
		return "", fmt.Errorf("candle: unsupported interval %q", s)
	}
	return iv, nil
}

// Seconds returns the bucket length in seconds, or 0 for an unknown
// interval.
func (iv Interval) Seconds() int64 {
	return intervalSeconds[iv]
}

// Duration returns the bucket length as a time.Duration.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.Seconds()) * time.Second
}

// String implements fmt.Stringer.
func (iv Interval) String() string { return string(iv) }
