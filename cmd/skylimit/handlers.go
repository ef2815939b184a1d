package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/skylimit/internal/config"
	"github.com/elonfeng/skylimit/internal/logging"
	"github.com/elonfeng/skylimit/internal/metrics"
	"github.com/elonfeng/skylimit/internal/scheduler"
	"github.com/elonfeng/skylimit/internal/store"
	"github.com/elonfeng/skylimit/pkg/alert"
	"github.com/elonfeng/skylimit/pkg/quota"
	"github.com/elonfeng/skylimit/pkg/server"
	"github.com/elonfeng/skylimit/pkg/source"
	"github.com/sirupsen/logrus"
)

// app holds what every command needs once config is loaded.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	db  *store.SQLiteStore
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) engine() *quota.Engine {
	return quota.NewEngine(a.db, a.db, a.db, a.cfg.Quota.Params(), a.log)
}

func (a *app) collector() source.Collector {
	timeout := a.cfg.Ingest.ParseTimeout()
	lookback := a.cfg.Quota.Retention()
	return source.NewMulti(
		source.NewFeedCollector(timeout, a.cfg.Ingest.UserAgent, lookback, a.log),
		source.NewHackerNews(timeout, lookback, a.log),
	)
}

func (a *app) scheduler(m *metrics.Collector, alerts *alert.Manager) *scheduler.Scheduler {
	return scheduler.New(a.db, a.collector(), a.engine(), alerts, m, a.log,
		a.cfg.Schedule.ParseIngestInterval(),
		a.cfg.Schedule.ParseComputeInterval(),
		a.cfg.Quota.Retention(),
	)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runIngest(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Alerts and metrics stay off for one-shot commands.
	n, err := a.scheduler(nil, nil).Ingest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "ingested %d events\n", n)
	return nil
}

func runCompute(ctx context.Context, limit int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.engine().Run(ctx)
	if errors.Is(err, quota.ErrNoData) {
		fmt.Println("no complete intervals yet (try ingesting first: skylimit ingest)")
		return nil
	}
	if err != nil {
		return err
	}
	return printSnapshot(snap, limit)
}

func runSnapshot(ctx context.Context, jsonOutput bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.db.CurrentSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Println("no snapshot yet (try: skylimit compute)")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return printSnapshot(snap, 0)
}

func printSnapshot(snap *quota.Snapshot, limit int) error {
	fmt.Printf("snapshot %s  quota %.2f views/day per unit weight  (%d/%d intervals complete, %.1f days)\n\n",
		snap.ID, snap.QuotaNumber, snap.Intervals.Complete, snap.Intervals.Expected, snap.DayTotal)

	entries := make([]quota.UserEntry, len(snap.Entries))
	copy(entries, snap.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalDaily > entries[j].TotalDaily
	})
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tWEIGHT\tPOSTS/DAY\tALLOWED/DAY\tSHOW\tPRIORITY\tREGULAR")
	for _, e := range entries {
		name := e.Name
		if e.Self {
			name += " (you)"
		}
		fmt.Fprintf(w, "%s\t%.3g\t%.2f\t%.2f\t%.0f%%\t%.0f%%\t%.0f%%\n",
			name, e.Weight, e.TotalDaily, e.NormalizedRate,
			e.NetProb*100, e.PriorityProb*100, e.RegularProb*100)
	}
	return w.Flush()
}

func runFollowAdd(ctx context.Context, id, handle, feed string, topics []string, weight float64) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if handle == "" {
		handle = id
	}
	for i := range topics {
		topics[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(topics[i]), "#"))
	}

	f := source.NewTrackedSource(id, handle, feed, topics, time.Now())
	f.Weight = source.ClampWeight(weight, a.cfg.Quota.MinWeight, a.cfg.Quota.MaxWeight)
	if err := a.db.UpsertFollow(ctx, &f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "following %s (weight %.3g)\n", id, f.Weight)
	return nil
}

func runFollowWeight(ctx context.Context, id, raw string) error {
	weight, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse weight %q: %w", raw, err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	weight = source.ClampWeight(weight, a.cfg.Quota.MinWeight, a.cfg.Quota.MaxWeight)
	if err := a.db.SetWeight(ctx, id, weight); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s weight set to %.3g\n", id, weight)
	return nil
}

func runFollowRm(ctx context.Context, id string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.db.SetWeight(ctx, id, 0); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "unfollowed %s\n", id)
	return nil
}

func runFollowLs(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	follows, err := a.db.ListFollows(ctx)
	if err != nil {
		return err
	}
	counts, err := a.db.CountEventsBySource(ctx)
	if err != nil {
		return err
	}

	if len(follows) == 0 {
		fmt.Println("no follows (add one: skylimit follow add <id> --feed <url>)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHANDLE\tWEIGHT\tEVENTS\tTOPICS\tSINCE")
	for _, f := range follows {
		weight := fmt.Sprintf("%.3g", f.Weight)
		if !f.Followed() {
			weight = "unfollowed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			f.ID, f.Handle, weight, counts[f.ID],
			strings.Join(f.Topics, ","), f.TrackedSince.Format(time.RFC3339))
	}
	return w.Flush()
}

func runServe(port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	sched := a.scheduler(m, buildAlertManager(a.cfg))
	srv := server.New(a.db, sched, m.Registry(), a.log)
	return srv.ListenAndServe(ctx, port)
}

func runDaemon(port int) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	sched := a.scheduler(m, buildAlertManager(a.cfg))

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.WithError(err).Error("scheduler stopped")
		}
	}()

	srv := server.New(a.db, sched, m.Registry(), a.log)
	err = srv.ListenAndServe(ctx, port)
	a.log.Info("shutting down")
	return err
}
