package api

// LinkStatsResponse from GET /api/links/{code}/stats
type LinkStatsResponse struct {
	ShortCode      string `json:"shortCode"`
	OriginalURL    string `json:"originalUrl"`
	TotalClicks    int64  `json:"totalClicks"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
	LastClickAt    string `json:"lastClickAt,omitempty"` // ISO 8601, absent if never clicked
}

// LinksResponse from GET /api/links
type LinksResponse struct {
	Links  []APILink `json:"links"`
	Cursor string    `json:"cursor"`
}

// APILink represents a short link from the API.
type APILink struct {
	ShortCode   string `json:"shortCode"`
	OriginalURL string `json:"originalUrl"`
	CreatedAt   string `json:"createdAt"`
	TotalClicks int64  `json:"totalClicks"`
}

// ListLinksOptions configures a ListLinks request.
type ListLinksOptions struct {
	Limit  int
	Cursor string
}
