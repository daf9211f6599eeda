package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// ClickResult is the response from POST /elements/{id}/click.
type ClickResult struct {
	Success bool `json:"success"`
}

// IsInvokable reports whether the action's button exists, is displayed
// and is enabled.
func (c *Client) IsInvokable(ctx context.Context, action string) bool {
	if action == Wait {
		return true
	}
	el, err := c.Element(ctx, action)
	if err != nil {
		slog.Debug("action lookup failed", "action", action, "error", err)
		return false
	}
	return el.Visible && el.Enabled
}

// Invoke clicks the action's button if it is invokable and reports whether
// the click went through. Wait succeeds without contacting the bridge.
func (c *Client) Invoke(ctx context.Context, action string) bool {
	if action == Wait {
		return true
	}
	if !c.IsInvokable(ctx, action) {
		c.rejected.Inc()
		return false
	}

	var result ClickResult
	if err := c.doJSON(ctx, http.MethodPost, "/elements/"+url.PathEscape(action)+"/click", &result); err != nil {
		c.rejected.Inc()
		slog.Warn("action failed", "action", action, "error", err)
		return false
	}
	if !result.Success {
		c.rejected.Inc()
	}
	return result.Success
}
