package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/linkpulse/internal/model"
)

// DefaultPaginationTimeout bounds GetAllLinks when ctx has no deadline.
const DefaultPaginationTimeout = 2 * time.Minute

// GetLinkStats fetches click totals for one short code.
func (c *Client) GetLinkStats(ctx context.Context, code string) (model.LinkStats, error) {
	var resp LinkStatsResponse
	if err := c.get(ctx, "/api/links/"+url.PathEscape(code)+"/stats", nil, &resp); err != nil {
		return model.LinkStats{}, fmt.Errorf("get link stats %s: %w", code, err)
	}
	return ToLinkStats(resp), nil
}

// ListLinks fetches a page of links.
func (c *Client) ListLinks(ctx context.Context, opts ListLinksOptions) (*LinksResponse, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	var resp LinksResponse
	if err := c.get(ctx, "/api/links", query, &resp); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return &resp, nil
}

// GetAllLinks fetches every link by paginating through results.
// Uses DefaultPaginationTimeout if the context has no deadline.
func (c *Client) GetAllLinks(ctx context.Context) ([]APILink, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPaginationTimeout)
		defer cancel()
	}

	var all []APILink
	opts := ListLinksOptions{Limit: 100}

	for {
		resp, err := c.ListLinks(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Links...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return all, nil
}
