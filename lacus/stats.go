package lacus

import (
	"context"
	"net/url"
	"time"
)

// DailyStats returns the statistics Lacus keeps for a day, only the last few
// days are stored. A zero day asks for today. With cardinalityOnly the lists of
// captures, retries and failures are replaced by their length.
func (c *Client) DailyStats(ctx context.Context, day time.Time, cardinalityOnly bool) (map[string]any, error) {
	path := "daily_stats_details"
	if cardinalityOnly {
		path = "daily_stats"
	}

	var elem []string
	if !day.IsZero() {
		elem = append(elem, day.Format(time.DateOnly))
	}

	var stats map[string]any
	if err := c.get(ctx, path, nil, &stats, path, elem...); err != nil {
		return nil, err
	}
	return stats, nil
}

// DBStatus returns the number of keys and memory usage of the database.
func (c *Client) DBStatus(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.get(ctx, "db_status", nil, &status, "db_status"); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.get(ctx, "lacus_status", nil, &status, "lacus_status"); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) IsBusy(ctx context.Context) (bool, error) {
	var busy bool
	if err := c.get(ctx, "is_busy", nil, &busy, "is_busy"); err != nil {
		return false, err
	}
	return busy, nil
}

// Proxies lists the proxies configured on the instance, by name.
func (c *Client) Proxies(ctx context.Context) (map[string]any, error) {
	var proxies map[string]any
	if err := c.get(ctx, "proxies", nil, &proxies, "proxies"); err != nil {
		return nil, err
	}
	return proxies, nil
}

func (c *Client) OngoingCaptures(ctx context.Context, withSettings bool) ([]any, error) {
	return c.listCaptures(ctx, "ongoing_captures", withSettings)
}

func (c *Client) EnqueuedCaptures(ctx context.Context, withSettings bool) ([]any, error) {
	return c.listCaptures(ctx, "enqueued_captures", withSettings)
}

func (c *Client) listCaptures(ctx context.Context, path string, withSettings bool) ([]any, error) {
	var query url.Values
	if withSettings {
		query = url.Values{"with_settings": []string{"True"}}
	}
	var captures []any
	if err := c.get(ctx, path, query, &captures, path); err != nil {
		return nil, err
	}
	return captures, nil
}
