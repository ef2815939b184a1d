package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var lines []string
	for _, l := range n.Loudest {
		lines = append(lines, fmt.Sprintf("• **%s** %.1f/day, shown %.0f%%", l.Name, l.TotalDaily, l.NetProb*100))
	}

	embed := map[string]any{
		"title":       n.Title,
		"description": n.Body + "\n\n" + strings.Join(lines, "\n"),
		"color":       0x1185FE,
		"timestamp":   n.ComputedAt.UTC().Format(time.RFC3339),
		"footer":      map[string]any{"text": n.SnapshotID},
	}

	return postJSON(ctx, d.client, "discord webhook", d.webhookURL, map[string]any{"embeds": []map[string]any{embed}}, nil)
}
