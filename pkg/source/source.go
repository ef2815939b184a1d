package source

import (
	"context"
	"time"
)

// DefaultWeight is the amplification factor of a source with no explicit weight.
const DefaultWeight = 1.0

// Event is a single timestamped piece of content (post or repost) from a followed source.
type Event struct {
	ID         string    `json:"id" db:"id"`
	SourceID   string    `json:"source_id" db:"source_id"`
	Tags       []string  `json:"tags" db:"-"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	RepostOfID string    `json:"repost_of_id,omitempty" db:"repost_of_id"`
	Engaged    bool      `json:"engaged" db:"engaged"`
	Dropped    bool      `json:"dropped" db:"dropped"`
	TagsJSON   string    `json:"-" db:"tags"`
}

// IsRepost reports whether the event re-shares another post.
func (e Event) IsRepost() bool {
	return e.RepostOfID != ""
}

// TrackedSource is a followed account as known to the follow registry.
// Weight 0 marks a source that is no longer followed.
type TrackedSource struct {
	ID           string    `json:"id" db:"id"`
	Handle       string    `json:"handle" db:"handle"`
	FeedURL      string    `json:"feed_url,omitempty" db:"feed_url"`
	Weight       float64   `json:"weight" db:"weight"`
	Topics       []string  `json:"topics" db:"-"`
	TrackedSince time.Time `json:"tracked_since" db:"tracked_since"`
	TopicsJSON   string    `json:"-" db:"topics"`
}

// NewTrackedSource returns a followed source with the default weight.
func NewTrackedSource(id, handle, feedURL string, topics []string, since time.Time) TrackedSource {
	return TrackedSource{
		ID:           id,
		Handle:       handle,
		FeedURL:      feedURL,
		Weight:       DefaultWeight,
		Topics:       topics,
		TrackedSince: since.UTC(),
	}
}

// Followed reports whether the source currently takes part in allocation.
func (t TrackedSource) Followed() bool {
	return t.Weight > 0
}

// ClampWeight bounds a weight into [lo, hi]. Zero and negative weights map to 0 (unfollowed).
func ClampWeight(w, lo, hi float64) float64 {
	if w <= 0 {
		return 0
	}
	if w < lo {
		return lo
	}
	if w > hi {
		return hi
	}
	return w
}

// Collector fetches recent events for the tracked sources.
type Collector interface {
	Name() string
	Collect(ctx context.Context, sources []TrackedSource) ([]Event, error)
}
