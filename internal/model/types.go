package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ClickEvent is a single click on a short link, as delivered by the realtime feed.
type ClickEvent struct {
	ID         uuid.UUID // Assigned on receipt; primary key for the recorder
	Topic      string    // Short code the click belongs to
	Timestamp  time.Time // Server-side click time
	ReceivedAt time.Time // Local receive time
	IPAddress  string    // Optional
	UserAgent  string    // Optional
	Referrer   string    // Optional
	Country    string    // Optional

	// Extra holds payload fields this client does not model explicitly.
	Extra map[string]json.RawMessage
}

// LinkStats is the REST-side aggregate for one short code.
type LinkStats struct {
	ShortCode      string
	OriginalURL    string
	TotalClicks    int64
	UniqueVisitors int64
	LastClickAt    time.Time // Zero if the link was never clicked
}
