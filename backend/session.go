package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionRejected is returned by Heartbeat when the backend answers
// the request but no longer recognizes the token.
var ErrSessionRejected = errors.New("session rejected")

// SessionInfo is the /utils/session/initiate payload.
type SessionInfo struct {
	SessionToken string `json:"session_token"`
}

// InitiateSession obtains a fresh session token. Every historical request
// must carry one.
func (c *Client) InitiateSession(ctx context.Context) (*SessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+initiatePath, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: initiate session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	var info SessionInfo
	if err := decodeObject(resp, &info); err != nil {
		return nil, fmt.Errorf("backend: initiate session: %w", err)
	}
	if info.SessionToken == "" {
		return nil, fmt.Errorf("backend: initiate session: empty session token")
	}
	return &info, nil
}

// Heartbeat tells the backend the session is still alive. A reachable
// backend that refuses the token yields ErrSessionRejected; transport and
// HTTP failures come back as their own error kinds.
func (c *Client) Heartbeat(ctx context.Context, sessionToken string) error {
	payload, err := json.Marshal(map[string]string{"session_token": sessionToken})
	if err != nil {
		return fmt.Errorf("backend: encode heartbeat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+heartbeatPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: heartbeat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := decodeObject(resp, &reply); err != nil {
		return fmt.Errorf("backend: heartbeat: %w", err)
	}
	if reply.Status != "ok" {
		if reply.Message == "" {
			reply.Message = "session expired or not found"
		}
		return fmt.Errorf("backend: %w: %s", ErrSessionRejected, reply.Message)
	}
	return nil
}
