// Package bridge talks to the running game through a page-side element
// bridge. Readings are element texts parsed as numbers; actions are clicks
// on button elements. Reads never fail past this package: a failed read is
// logged, counted and reported as 0.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/atomic"
)

// Reading names an observable game value by its element id.
type Reading string

const (
	Clips           Reading = "clips"
	Wire            Reading = "wire"
	Funds           Reading = "funds"
	WireCost        Reading = "wireCost"
	Price           Reading = "margin"
	Demand          Reading = "demand"
	UnsoldClips     Reading = "unsoldClips"
	ClipMakerRate   Reading = "clipmakerRate"
	Clippers        Reading = "clipmakerLevel2"
	MegaClippers    Reading = "megaClipperLevel"
	ClipperCost     Reading = "clipperCost"
	MegaClipperCost Reading = "megaClipperCost"
	AdCost          Reading = "adCost"
	Operations      Reading = "operations"
	Creativity      Reading = "creativity"
)

// Counters that are hidden or blank until unlocked in the game. Blank text
// for these reads as 0 and is not a failure.
var optional = map[Reading]bool{
	Clippers:     true,
	MegaClippers: true,
	Operations:   true,
	Creativity:   true,
}

// Wait is the universal no-op action. It always succeeds and never
// reaches the game.
const Wait = "wait"

// Observer reads numeric game values. Implementations return 0 on failure.
type Observer interface {
	Read(ctx context.Context, r Reading) float64
}

// Actuator applies named actions to the game.
type Actuator interface {
	Invoke(ctx context.Context, action string) bool
	IsInvokable(ctx context.Context, action string) bool
}

// Element mirrors GET /elements/{id} on the bridge.
type Element struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
}

// Client implements Observer and Actuator against the bridge HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	failures *atomic.Uint64
	rejected *atomic.Uint64
}

// NewClient creates a Client targeting the bridge at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		failures: atomic.NewUint64(0),
		rejected: atomic.NewUint64(0),
	}
}

// Failures returns how many reads have fallen back to the default value.
func (c *Client) Failures() uint64 {
	return c.failures.Load()
}

// Rejected returns how many non-wait actions were not carried out.
func (c *Client) Rejected() uint64 {
	return c.rejected.Load()
}

// Element fetches the current state of one element.
func (c *Client) Element(ctx context.Context, id string) (*Element, error) {
	var el Element
	if err := c.doJSON(ctx, http.MethodGet, "/elements/"+url.PathEscape(id), &el); err != nil {
		return nil, err
	}
	return &el, nil
}

// doJSON performs a request and decodes the JSON response into target.
func (c *Client) doJSON(ctx context.Context, method, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
