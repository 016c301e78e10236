package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

// HistoricalResponse is the structured /historical/ payload. A capped
// response has IsPartial set, carries the newest slice of the range, and
// names a RequestID for /historical/chunk paging; Offset is the position
// of the first returned bar within the full ascending dataset.
type HistoricalResponse struct {
	RequestID      string
	Candles        []candle.Candle
	Offset         int
	TotalAvailable int
	IsPartial      bool
	Message        string
}

// ChunkResponse is one /historical/chunk page of a cached request.
type ChunkResponse struct {
	Candles        []candle.Candle
	Offset         int
	Limit          int
	TotalAvailable int
}

// wireCandle is one candle record as the API serializes it.
//
// Field layout:
//
//	unix_timestamp  bucket open, Unix seconds (may carry a fraction)
//	open, high, low, close  prices
//	volume          bucket volume, null for instruments without one
type wireCandle struct {
	UnixTimestamp float64  `json:"unix_timestamp"`
	Open          float64  `json:"open"`
	High          float64  `json:"high"`
	Low           float64  `json:"low"`
	Close         float64  `json:"close"`
	Volume        *float64 `json:"volume"`
}

func (w wireCandle) toCandle() candle.Candle {
	c := candle.Candle{
		Time:  int64(w.UnixTimestamp),
		Open:  w.Open,
		High:  w.High,
		Low:   w.Low,
		Close: w.Close,
	}
	if w.Volume != nil {
		c.Volume = *w.Volume
	}
	return c
}

func toCandles(ws []wireCandle) []candle.Candle {
	if len(ws) == 0 {
		return nil
	}
	out := make([]candle.Candle, len(ws))
	for i, w := range ws {
		out[i] = w.toCandle()
	}
	return out
}

// FetchHistorical requests candles for q. Timestamps go on the wire in
// the canonical second-precision form regardless of how they were given.
func (c *Client) FetchHistorical(ctx context.Context, sessionToken string, q Query) (*HistoricalResponse, error) {
	u, err := url.Parse(c.baseURL + historicalPath)
	if err != nil {
		return nil, fmt.Errorf("backend: parse url: %w", err)
	}

	qs := u.Query()
	qs.Set("session_token", sessionToken)
	qs.Set("exchange", q.Exchange)
	qs.Set("token", q.Token)
	qs.Set("interval", string(q.Interval))
	qs.Set("start_time", candle.FormatTime(q.Start))
	qs.Set("end_time", candle.FormatTime(q.End))
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}

	log.Debug().
		Str("exchange", q.Exchange).
		Str("token", q.Token).
		Str("interval", string(q.Interval)).
		Str("start", candle.FormatTime(q.Start)).
		Str("end", candle.FormatTime(q.End)).
		Msg("requesting historical range")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: historical: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	var wire struct {
		RequestID      *string      `json:"request_id"`
		Candles        []wireCandle `json:"candles"`
		Offset         *int         `json:"offset"`
		TotalAvailable int          `json:"total_available"`
		IsPartial      bool         `json:"is_partial"`
		Message        *string      `json:"message"`
	}
	if err := decodeObject(resp, &wire); err != nil {
		return nil, fmt.Errorf("backend: historical: %w", err)
	}

	out := &HistoricalResponse{
		Candles:        toCandles(wire.Candles),
		TotalAvailable: wire.TotalAvailable,
		IsPartial:      wire.IsPartial,
	}
	if wire.RequestID != nil {
		out.RequestID = *wire.RequestID
	}
	if wire.Offset != nil {
		out.Offset = *wire.Offset
	}
	if wire.Message != nil {
		out.Message = *wire.Message
	}
	return out, nil
}

// FetchChunk retrieves one page of a cached request by dataset offset.
func (c *Client) FetchChunk(ctx context.Context, requestID string, offset, limit int) (*ChunkResponse, error) {
	u, err := url.Parse(c.baseURL + chunkPath)
	if err != nil {
		return nil, fmt.Errorf("backend: parse url: %w", err)
	}

	qs := u.Query()
	qs.Set("request_id", requestID)
	qs.Set("offset", strconv.Itoa(offset))
	qs.Set("limit", strconv.Itoa(limit))
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	var wire struct {
		Candles        []wireCandle `json:"candles"`
		Offset         int          `json:"offset"`
		Limit          int          `json:"limit"`
		TotalAvailable int          `json:"total_available"`
	}
	if err := decodeObject(resp, &wire); err != nil {
		return nil, fmt.Errorf("backend: chunk: %w", err)
	}

	return &ChunkResponse{
		Candles:        toCandles(wire.Candles),
		Offset:         wire.Offset,
		Limit:          wire.Limit,
		TotalAvailable: wire.TotalAvailable,
	}, nil
}

// FetchFullRange retrieves every candle in q, following /historical/chunk
// pagination when the initial response is capped. The capped response
// holds the newest slice; older bars live at offsets [0, Offset) and are
// paged front to back, then joined with the initial slice.
func (c *Client) FetchFullRange(ctx context.Context, sessionToken string, q Query) ([]candle.Candle, error) {
	first, err := c.FetchHistorical(ctx, sessionToken, q)
	if err != nil {
		return nil, err
	}
	if !first.IsPartial || first.RequestID == "" || first.Offset <= 0 {
		return first.Candles, nil
	}

	var head []candle.Candle
	for off := 0; off < first.Offset; {
		limit := ChunkLimit
		if rest := first.Offset - off; rest < limit {
			limit = rest
		}
		chunk, err := c.FetchChunk(ctx, first.RequestID, off, limit)
		if err != nil {
			return nil, err
		}
		if len(chunk.Candles) == 0 {
			// Server ran dry before the promised offset.
			break
		}
		head = append(head, chunk.Candles...)
		off += len(chunk.Candles)
	}

	merged := make([]candle.Candle, 0, len(head)+len(first.Candles))
	merged = append(merged, head...)
	merged = append(merged, first.Candles...)
	merged = dedupeAscending(merged)

	log.Debug().
		Int("bars", len(merged)).
		Int("total_available", first.TotalAvailable).
		Str("request_id", first.RequestID).
		Msg("full range assembled")
	return merged, nil
}

// dedupeAscending drops any candle that does not advance the clock,
// keeping the first occurrence of each bucket.
func dedupeAscending(in []candle.Candle) []candle.Candle {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, c := range in[1:] {
		if c.Time > out[len(out)-1].Time {
			out = append(out, c)
		}
	}
	return out
}
