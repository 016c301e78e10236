// Package backend is the REST client for the trading platform API: session
// lifecycle plus historical candle retrieval with chunked pagination.
package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chaitanyamurarka/trading-platform-v3.1/model/candle"
)

const (
	initiatePath   = "/utils/session/initiate"
	heartbeatPath  = "/utils/session/heartbeat"
	historicalPath = "/historical/"
	chunkPath      = "/historical/chunk"

	// ChunkLimit is the page size for /historical/chunk requests. The
	// backend caps initial /historical/ payloads at the same size.
	ChunkLimit = 5000
)

// Client talks to one trading platform API server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the API at baseURL (scheme://host[:port]).
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the configured API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Query identifies one historical chart request. Start and End bound the
// candle open times, inclusive on both sides.
type Query struct {
	Exchange string
	Token    string
	Interval candle.Interval
	Start    time.Time
	End      time.Time
}

// StatusError is returned for any non-2xx API response. Detail carries the
// backend's own description when the error body could be parsed, otherwise
// the HTTP status text.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Detail)
}

// statusError builds a StatusError from a non-2xx response. The API
// serializes errors as {"detail": "..."}; anything else falls back to the
// status text.
func statusError(resp *http.Response) *StatusError {
	e := &StatusError{Code: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return e
	}
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Detail != "":
			e.Detail = payload.Detail
		case payload.Message != "":
			e.Detail = payload.Message
		}
	}
	return e
}

// decodeObject reads the full body and decodes exactly one JSON object.
// Each endpoint has a single accepted payload shape; a bare-array body is
// a contract violation, never a fallback format.
func decodeObject(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if !strings.HasPrefix(strings.TrimLeft(string(body), " \t\r\n"), "{") {
		return fmt.Errorf("unexpected payload shape, want a JSON object")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
