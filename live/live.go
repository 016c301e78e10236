// Package live maintains the WebSocket stream of in-progress candles for
// one chart query, reconnecting with jittered exponential backoff.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"

	"github.com/chaitanyamurarka/trading-platform-v3.1/backend"
	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

const streamPath = "/ws/live"

// Bar is one streamed candle update.
//
// Wire layout (one JSON object per text frame):
//
//	unix_timestamp  bucket open, Unix seconds
//	open, high, low, close, volume  as floats
//	is_closed       true once the bucket is final
type Bar struct {
	UnixTimestamp float64 `json:"unix_timestamp"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	IsClosed      bool    `json:"is_closed"`
}

// Candle converts the wire bar to the dataset type.
func (b Bar) Candle() candle.Candle {
	return candle.Candle{
		Time:   int64(b.UnixTimestamp),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// Handler receives every streamed bar.
type Handler func(Bar)

// StreamURL derives the stream address from the API base URL: http maps
// to ws, https to wss, with the chart identity in the query string.
// overrideURL, when non-empty, replaces the derived scheme://host/path
// and only the query string is appended.
func StreamURL(apiBaseURL, overrideURL, sessionToken string, q backend.Query) (string, error) {
	raw := overrideURL
	if raw == "" {
		raw = apiBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("live: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("live: unsupported scheme %q", u.Scheme)
	}
	if overrideURL == "" {
		u.Path = streamPath
	}

	qs := u.Query()
	qs.Set("session_token", sessionToken)
	qs.Set("exchange", q.Exchange)
	qs.Set("token", q.Token)
	qs.Set("interval", string(q.Interval))
	u.RawQuery = qs.Encode()
	return u.String(), nil
}

// Subscribe opens the live stream at streamURL, invoking handler for
// every update. It reconnects automatically on error; the returned stop
// function cancels the subscription and is safe to call twice.
func Subscribe(ctx context.Context, streamURL string, handler Handler) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
		for {
			if ctx.Err() != nil {
				return
			}
			err := connectAndRead(ctx, streamURL, b, handler)
			if err == nil || ctx.Err() != nil {
				return
			}
			wait := b.Duration()
			log.Warn().Err(err).Dur("retry_in", wait).Msg("live stream disconnected")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}

// connectAndRead maintains a single WebSocket session until the context
// is cancelled or an error occurs.
func connectAndRead(ctx context.Context, streamURL string, b *backoff.Backoff, handler Handler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	b.Reset()
	log.Info().Msg("live stream connected")

	// Close the connection when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("read: %w", err)
		}

		var bar Bar
		if err := json.Unmarshal(msg, &bar); err != nil {
			log.Warn().Err(err).Msg("live stream: bad frame")
			continue
		}
		handler(bar)
	}
}
