package quota

import (
	"fmt"
	"time"

	"github.com/elonfeng/skylimit/pkg/source"
)

var day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func post(id, src string, ts time.Time, tags ...string) source.Event {
	return source.Event{ID: id, SourceID: src, Tags: tags, Timestamp: ts}
}

func repost(id, src string, ts time.Time, of string) source.Event {
	return source.Event{ID: id, SourceID: src, Timestamp: ts, RepostOfID: of}
}

// steadyEvents returns one regular post from src in every 2h window of day.
// With testParams that makes windows 1..10 complete and 0, 11 boundaries.
func steadyEvents(src string) []source.Event {
	var events []source.Event
	for h := 0; h < 24; h += 2 {
		events = append(events, post(fmt.Sprintf("%s-%02d", src, h), src, at(h+1, 0)))
	}
	return events
}

func testParams() Params {
	p := DefaultParams()
	p.Viewer = "me"
	p.DaysOfData = 1
	p.IntervalHours = 2
	p.SecretKey = "s3cret"
	return p
}
