package quota

import (
	"context"
	"errors"
	"io"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/elonfeng/skylimit/pkg/source"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	events  []source.Event
	follows []source.TrackedSource
	saved   []*Snapshot
	err     error
	saveErr error
}

func (f *fakeStore) ListEvents(ctx context.Context) ([]source.Event, error) {
	return f.events, f.err
}

func (f *fakeStore) ListFollows(ctx context.Context) ([]source.TrackedSource, error) {
	return f.follows, nil
}

func (f *fakeStore) ReplaceSnapshot(ctx context.Context, s *Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, s)
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func scenarioStore() *fakeStore {
	var events []source.Event
	for _, id := range []string{"alice", "bob", "carol"} {
		events = append(events, steadyEvents(id)...)
	}
	// bob posts a lot more.
	for h := 2; h < 22; h++ {
		for i := 0; i < 4; i++ {
			events = append(events, post("", "bob", at(h, i), "news"))
		}
	}
	events = append(events,
		post("p1", "alice", at(9, 0), "pinned"),
		post("m1", "me", at(9, 0)),
		repost("r1", "carol", at(9, 0), "bob-1"),
	)
	return &fakeStore{
		events: events,
		follows: []source.TrackedSource{
			{ID: "alice", Handle: "alice", Weight: 1, Topics: []string{"news"}},
			{ID: "bob", Handle: "bob", Weight: 0.5},
			{ID: "carol", Handle: "carol", Weight: 0},
		},
	}
}

func TestComputeNoEvents(t *testing.T) {
	_, err := Compute(testParams(), nil, nil, at(23, 0))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestComputeNoCompleteIntervals(t *testing.T) {
	p := testParams()
	p.IntervalHours = 8
	var events []source.Event
	for i := 0; i < 5; i++ {
		events = append(events, post("", "alice", at(1, i)), post("", "alice", at(17, i)))
	}
	_, err := Compute(p, events, nil, at(23, 0))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestComputeRejectsBadParams(t *testing.T) {
	p := testParams()
	p.IntervalHours = 5
	_, err := Compute(p, steadyEvents("alice"), nil, at(23, 0))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestComputeSnapshot(t *testing.T) {
	fs := scenarioStore()
	p := testParams()
	p.ViewsPerDay = 20

	snap, err := Compute(p, fs.events, fs.follows, at(23, 30))
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, at(23, 30), snap.ComputedAt)
	assert.Equal(t, 10, snap.Intervals.Complete)
	assert.InDelta(t, 20.0/24.0, snap.DayTotal, 1e-12)
	assert.Equal(t, at(1, 0), snap.OldestEvent)
	assert.Equal(t, at(23, 0), snap.NewestEvent)

	require.Len(t, snap.Entries, 4)
	ids := []string{}
	for _, e := range snap.Entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "me"}, ids)

	carol, ok := snap.Entry("carol")
	require.True(t, ok)
	assert.False(t, carol.Followed)
	assert.Greater(t, carol.RepostDaily, 0.0)

	// Water-filling never spends more than the daily budget.
	used := 0.0
	for _, e := range snap.Entries {
		if e.Followed {
			used += math.Min(e.NormalizedRate, snap.QuotaNumber) * e.Weight
		}
	}
	assert.LessOrEqual(t, used, p.ViewsPerDay+1e-9)

	bob, _ := snap.Entry("bob")
	alice, _ := snap.Entry("alice")
	assert.Less(t, bob.NetProb, alice.NetProb)

	for _, e := range snap.Entries {
		for _, v := range []float64{e.NetProb, e.PriorityProb, e.RegularProb} {
			assert.GreaterOrEqual(t, v, 0.0, e.ID)
			assert.LessOrEqual(t, v, 1.0, e.ID)
		}
	}
}

func TestComputeBackfilledFollowMatchesLongStanding(t *testing.T) {
	p := testParams()
	registry := []source.TrackedSource{
		{ID: "fresh", Weight: 1, TrackedSince: at(23, 0)},
		{ID: "veteran", Weight: 1, TrackedSince: day.Add(-30 * 24 * time.Hour)},
	}
	events := append(steadyEvents("fresh"), steadyEvents("veteran")...)

	snap, err := Compute(p, events, registry, at(23, 30))
	require.NoError(t, err)

	fresh, ok := snap.Entry("fresh")
	require.True(t, ok)
	veteran, ok := snap.Entry("veteran")
	require.True(t, ok)

	// Ten posts over ten complete two-hour windows is 12 a day for both.
	assert.InDelta(t, 12.0, veteran.TotalDaily, 1e-9)
	assert.InDelta(t, veteran.TotalDaily, fresh.TotalDaily, 1e-9)
	assert.InDelta(t, veteran.NetProb, fresh.NetProb, 1e-12)
}

func TestComputeAnonymizedHidesIDs(t *testing.T) {
	fs := scenarioStore()
	p := testParams()
	p.Anonymize = true

	snap, err := Compute(p, fs.events, fs.follows, at(23, 30))
	require.NoError(t, err)

	plain := map[string]bool{"alice": true, "bob": true, "carol": true, "me": true}
	var ids []string
	for _, e := range snap.Entries {
		assert.False(t, plain[e.ID], e.ID)
		assert.False(t, plain[e.Name], e.Name)
		assert.Equal(t, e.Alias, e.ID)
		ids = append(ids, e.ID)
	}
	assert.True(t, sort.StringsAreSorted(ids))

	_, ok := snap.Entry(Alias(p.SecretKey, "bob"))
	assert.True(t, ok)
	_, ok = snap.Entry("bob")
	assert.False(t, ok)
}

func TestComputeIdempotent(t *testing.T) {
	fs := scenarioStore()
	p := testParams()

	first, err := Compute(p, fs.events, fs.follows, at(23, 30))
	require.NoError(t, err)
	second, err := Compute(p, fs.events, fs.follows, at(23, 30))
	require.NoError(t, err)

	first.ID, second.ID = "", ""
	assert.Equal(t, first, second)
}

func TestEngineRun(t *testing.T) {
	fs := scenarioStore()
	e := NewEngine(fs, fs, fs, testParams(), quietLogger())

	snap, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fs.saved, 1)
	assert.Same(t, snap, fs.saved[0])
}

func TestEngineRunNoDataKeepsPrevious(t *testing.T) {
	fs := &fakeStore{}
	e := NewEngine(fs, fs, fs, testParams(), quietLogger())

	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
	assert.Empty(t, fs.saved)
}

func TestEngineRunPersistenceFailure(t *testing.T) {
	fs := scenarioStore()
	fs.saveErr = errors.New("disk full")
	e := NewEngine(fs, fs, fs, testParams(), quietLogger())

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.saveErr)
	assert.Contains(t, err.Error(), "replace snapshot")
}

func TestEngineRunListError(t *testing.T) {
	fs := scenarioStore()
	fs.err = errors.New("locked")
	e := NewEngine(fs, fs, fs, testParams(), quietLogger())

	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, fs.err)
	assert.Empty(t, fs.saved)
}
