package api

import (
	"time"

	"github.com/rickgao/linkpulse/internal/model"
)

// ToLinkStats converts an API response to the model type.
func ToLinkStats(r LinkStatsResponse) model.LinkStats {
	return model.LinkStats{
		ShortCode:      r.ShortCode,
		OriginalURL:    r.OriginalURL,
		TotalClicks:    r.TotalClicks,
		UniqueVisitors: r.UniqueVisitors,
		LastClickAt:    ParseTimestamp(r.LastClickAt),
	}
}

// ParseTimestamp parses an ISO 8601 timestamp to UTC.
// Returns the zero time for empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}

	return t.UTC()
}
