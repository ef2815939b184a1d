package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const hnSearchURL = "https://hn.algolia.com/api/v1/search_by_date"

// hnScheme prefixes the feed URL of follows that are Hacker News users,
// e.g. "hn:pg".
const hnScheme = "hn:"

// HNUser returns the Hacker News username of a feed URL, if it is one.
func HNUser(feedURL string) (string, bool) {
	if !strings.HasPrefix(feedURL, hnScheme) {
		return "", false
	}
	user := strings.TrimSpace(strings.TrimPrefix(feedURL, hnScheme))
	return user, user != ""
}

// HackerNews collects the stories and comments of followed Hacker News users.
type HackerNews struct {
	client  *http.Client
	baseURL string
	since   time.Duration
	limit   int
	log     logrus.FieldLogger
}

// NewHackerNews creates a new HN collector. Items older than since are ignored.
func NewHackerNews(timeout, since time.Duration, log logrus.FieldLogger) *HackerNews {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HackerNews{
		client:  &http.Client{Timeout: timeout},
		baseURL: hnSearchURL,
		since:   since,
		limit:   1000,
		log:     log,
	}
}

func (h *HackerNews) Name() string { return "hackernews" }

func (h *HackerNews) Collect(ctx context.Context, sources []TrackedSource) ([]Event, error) {
	var (
		mu     sync.Mutex
		events []Event
		wg     sync.WaitGroup
		sem    = make(chan struct{}, 10) // concurrency limit
	)

	for _, src := range sources {
		user, ok := HNUser(src.FeedURL)
		if !ok || !src.Followed() {
			continue
		}

		wg.Add(1)
		go func(src TrackedSource, user string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			got, err := h.fetchUser(ctx, src, user, time.Now().UTC())
			if err != nil {
				h.log.WithFields(logrus.Fields{"source": src.ID, "hn_user": user}).
					WithError(err).Warn("hn collection failed")
				return
			}

			mu.Lock()
			events = append(events, got...)
			mu.Unlock()
		}(src, user)
	}

	wg.Wait()
	return events, nil
}

type hnHit struct {
	ObjectID  string   `json:"objectID"`
	CreatedAt int64    `json:"created_at_i"`
	Title     string   `json:"title"`
	StoryText string   `json:"story_text"`
	Tags      []string `json:"_tags"`
}

type hnSearchResult struct {
	Hits []hnHit `json:"hits"`
}

func (h *HackerNews) fetchUser(ctx context.Context, src TrackedSource, user string, now time.Time) ([]Event, error) {
	q := url.Values{
		"tags":        {"author_" + user},
		"hitsPerPage": {fmt.Sprintf("%d", h.limit)},
	}
	if h.since > 0 {
		q.Set("numericFilters", fmt.Sprintf("created_at_i>%d", now.Add(-h.since).Unix()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create hn request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hn user %s: %w", user, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hn user %s status %d", user, resp.StatusCode)
	}

	var result hnSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode hn user %s: %w", user, err)
	}

	events := make([]Event, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.ObjectID == "" {
			continue
		}
		events = append(events, Event{
			ID:        fmt.Sprintf("%s:hn:%s", src.ID, hit.ObjectID),
			SourceID:  src.ID,
			Tags:      ExtractTags(hit.Title+" "+hit.StoryText, hnKinds(hit.Tags)),
			Timestamp: time.Unix(hit.CreatedAt, 0).UTC(),
		})
	}
	return events, nil
}

// hnKinds keeps the item kind tags ("story", "comment", ...) and drops the
// author_ and story_ bookkeeping tags Algolia adds.
func hnKinds(tags []string) []string {
	var kinds []string
	for _, t := range tags {
		if strings.HasPrefix(t, "author_") || strings.HasPrefix(t, "story_") {
			continue
		}
		kinds = append(kinds, t)
	}
	return kinds
}
