// Package replay talks to the local replay playback API, which serves as
// both the authoritative time source queried by the main observer and the
// time-application sink used by a synced observer.
package replay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is where the replay client exposes its playback API.
const DefaultBaseURL = "https://127.0.0.1:2999"

const playbackEndpoint = "/replay/playback"

// Client is an HTTPS client for the playback API. The endpoint presents a
// self-signed certificate, so verification is disabled.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a playback client. An empty baseURL selects the local
// default.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

type playbackState struct {
	Time float64 `json:"time"` // seconds
}

type seekRequest struct {
	Length  float64 `json:"length"`
	Paused  bool    `json:"paused"`
	Seeking bool    `json:"seeking"`
	Speed   float64 `json:"speed"`
	Time    float64 `json:"time"`
}

// CurrentTimeMillis returns the current playback position in milliseconds.
func (c *Client) CurrentTimeMillis(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+playbackEndpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build playback request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query playback time: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("playback API returned status %d: %s", resp.StatusCode, string(body))
	}

	var state playbackState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return 0, fmt.Errorf("decode playback state: %w", err)
	}
	return int64(state.Time * 1000), nil
}

// ApplyOffset seeks playback to the given position in seconds, unpaused.
// Fire-and-forget from the protocol's point of view; the caller only logs
// failures.
func (c *Client) ApplyOffset(ctx context.Context, seconds float64) error {
	body, err := json.Marshal(seekRequest{Paused: false, Seeking: true, Speed: 1, Time: seconds})
	if err != nil {
		return fmt.Errorf("marshal seek request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+playbackEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build seek request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("apply playback offset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("playback API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
