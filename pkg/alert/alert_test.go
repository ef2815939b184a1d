package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elonfeng/skylimit/pkg/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *quota.Snapshot {
	return &quota.Snapshot{
		ID:          "01JSNAP",
		QuotaNumber: 12.5,
		DayTotal:    29.5,
		Intervals:   quota.IntervalStats{Expected: 360, Complete: 354},
		ComputedAt:  time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Entries: []quota.UserEntry{
			{ID: "a", Name: "quiet", TotalDaily: 1, NetProb: 1},
			{ID: "b", Name: "loud", TotalDaily: 90, NetProb: 0.13},
			{ID: "c", Name: "medium", TotalDaily: 20, NetProb: 0.6},
		},
	}
}

func TestFromSnapshot(t *testing.T) {
	n := FromSnapshot(testSnapshot(), 2)

	assert.Equal(t, "Skylimit 12.5 views/day", n.Title)
	assert.Equal(t, "01JSNAP", n.SnapshotID)
	assert.Equal(t, 3, n.Sources)
	assert.Equal(t, 354, n.Complete)
	require.Len(t, n.Loudest, 2)
	assert.Equal(t, "loud", n.Loudest[0].Name)
	assert.Equal(t, "medium", n.Loudest[1].Name)

	assert.Len(t, FromSnapshot(testSnapshot(), 10).Loudest, 3)
}

func TestWebhookSignsBody(t *testing.T) {
	var got Notification
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "sha256="+Sign("hush", body), r.Header.Get("X-Signature-256"))
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	err := NewWebhook(ts.URL, "hush").Send(context.Background(), FromSnapshot(testSnapshot(), 1))
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.QuotaNumber)
}

func TestSlackAndDiscordPayloads(t *testing.T) {
	var payloads []map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		payloads = append(payloads, p)
	}))
	defer ts.Close()

	m := NewManager([]Notifier{NewSlack(ts.URL), NewDiscord(ts.URL)})
	require.True(t, m.HasNotifiers())
	require.NoError(t, m.Broadcast(context.Background(), FromSnapshot(testSnapshot(), 3)))

	require.Len(t, payloads, 2)
	assert.Contains(t, payloads[0], "blocks")
	assert.Contains(t, payloads[1], "embeds")
}

type failing struct{}

func (failing) Name() string { return "failing" }
func (failing) Send(context.Context, *Notification) error {
	return errors.New("unreachable")
}

func TestBroadcastJoinsErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	m := NewManager([]Notifier{failing{}, NewWebhook(ts.URL, "")})
	err := m.Broadcast(context.Background(), FromSnapshot(testSnapshot(), 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: unreachable")
	assert.Contains(t, err.Error(), "webhook status 500")
	assert.False(t, NewManager(nil).HasNotifiers())
}
