package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

// repostPrefix marks re-shared entries in nitter-style account feeds.
const repostPrefix = "RT by "

// FeedCollector reads each followed source's RSS/Atom feed and turns entries into events.
type FeedCollector struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	since     time.Duration
	log       logrus.FieldLogger
}

// NewFeedCollector creates a feed collector. Entries older than since are ignored.
func NewFeedCollector(timeout time.Duration, userAgent string, since time.Duration, log logrus.FieldLogger) *FeedCollector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "skylimit/1.0"
	}
	return &FeedCollector{
		client:    &http.Client{Timeout: timeout},
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
		since:     since,
		log:       log,
	}
}

func (f *FeedCollector) Name() string { return "feed" }

// Collect fetches every source that has a feed URL, a few at a time. A
// failing feed is logged and skipped.
func (f *FeedCollector) Collect(ctx context.Context, sources []TrackedSource) ([]Event, error) {
	var (
		results = make([][]Event, len(sources))
		wg      sync.WaitGroup
		sem     = make(chan struct{}, 10) // concurrency limit
	)

	for i, src := range sources {
		if src.FeedURL == "" || strings.HasPrefix(src.FeedURL, hnScheme) || !src.Followed() {
			continue
		}

		wg.Add(1)
		go func(i int, src TrackedSource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			events, err := f.collectSource(ctx, src)
			if err != nil {
				f.log.WithFields(logrus.Fields{"source": src.ID, "feed": src.FeedURL}).
					WithError(err).Warn("feed collection failed")
				return
			}
			results[i] = events
		}(i, src)
	}

	wg.Wait()

	var all []Event
	for _, events := range results {
		all = append(all, events...)
	}
	return all, nil
}

func (f *FeedCollector) collectSource(ctx context.Context, src TrackedSource) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", src.ID, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", src.ID, resp.StatusCode)
	}

	return f.Parse(src, resp.Body, time.Now().UTC())
}

// Parse converts a feed document into events for src. Entries published
// before now minus the collector's lookback are dropped.
func (f *FeedCollector) Parse(src TrackedSource, r io.Reader, now time.Time) ([]Event, error) {
	parsed, err := f.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.ID, err)
	}

	var cutoff time.Time
	if f.since > 0 {
		cutoff = now.Add(-f.since)
	}

	var events []Event
	for _, entry := range parsed.Items {
		published := now
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}

		guid := entry.GUID
		if guid == "" {
			guid = entry.Link
		}
		if guid == "" {
			continue
		}

		ev := Event{
			ID:        fmt.Sprintf("%s:%s", src.ID, guid),
			SourceID:  src.ID,
			Tags:      ExtractTags(entry.Title+" "+entry.Description, entry.Categories),
			Timestamp: published,
		}
		// The original post id is not in the feed; the link is stable per repost target.
		if strings.HasPrefix(entry.Title, repostPrefix) {
			ev.RepostOfID = entry.Link
			if ev.RepostOfID == "" {
				ev.RepostOfID = guid
			}
		}
		events = append(events, ev)
	}

	return events, nil
}
