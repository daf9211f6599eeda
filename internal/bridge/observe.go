package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

var errBlank = errors.New("blank element text")

// Read returns the numeric value of r, or 0 if it cannot be obtained.
func (c *Client) Read(ctx context.Context, r Reading) float64 {
	el, err := c.Element(ctx, string(r))
	if err != nil {
		return c.fail(r, err)
	}

	text := strings.TrimSpace(el.Text)
	if text == "" {
		if optional[r] {
			return 0
		}
		return c.fail(r, errBlank)
	}

	v, err := ParseNumber(text)
	if err != nil {
		return c.fail(r, err)
	}
	return v
}

func (c *Client) fail(r Reading, err error) float64 {
	c.failures.Inc()
	slog.Warn("observation failed, using 0", "reading", string(r), "error", err)
	return 0
}

// ParseNumber converts game display text such as "1,000", "1 000",
// "$12.50" or "1.000.5" to a float. Thousands separators are dropped and
// only the last dot is kept as the decimal point. NaN and infinities are
// rejected.
func ParseNumber(text string) (float64, error) {
	s := strings.NewReplacer(",", "", " ", "", "\u00a0", "", "$", "").Replace(strings.TrimSpace(text))
	if n := strings.Count(s, "."); n > 1 {
		s = strings.Replace(s, ".", "", n-1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("cannot convert %q to a number", text)
	}
	return v, nil
}
