package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/api"
	"github.com/JakeFAU/reddit-collector/internal/artifact"
	"github.com/JakeFAU/reddit-collector/internal/collector"
	"github.com/JakeFAU/reddit-collector/internal/fetcher"
	"github.com/JakeFAU/reddit-collector/internal/governor"
	"github.com/JakeFAU/reddit-collector/internal/ingest"
	"github.com/JakeFAU/reddit-collector/internal/metrics"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
	"github.com/JakeFAU/reddit-collector/internal/scheduler"
)

// Mode selects which phases a run executes.
type Mode string

// Supported modes.
const (
	ModeCollect Mode = "collect"
	ModeIngest  Mode = "ingest"
	ModeRun     Mode = "run"
)

// EventRunCompleted is the notification published after every run.
const EventRunCompleted = "run.completed"

// RunCompleted is the payload of EventRunCompleted.
type RunCompleted struct {
	RunID       string               `json:"run_id,omitempty"`
	Mode        Mode                 `json:"mode"`
	Succeeded   bool                 `json:"succeeded"`
	Error       string               `json:"error,omitempty"`
	Collect     *reddit.CollectStats `json:"collect,omitempty"`
	Ingest      *reddit.IngestStats  `json:"ingest,omitempty"`
	Manifest    *artifact.Manifest   `json:"manifest,omitempty"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Execute runs mode end to end: the phases themselves, then the summary log,
// the completion notification and the metrics push. The summary is logged
// even when a phase fails.
func (a *App) Execute(ctx context.Context, mode Mode) (err error) {
	stopOperator := a.startOperator(ctx)
	defer stopOperator()

	done := RunCompleted{Mode: mode}
	defer func() {
		a.status.finish(err)
		done.Succeeded = err == nil
		if err != nil {
			done.Error = err.Error()
		}
		done.CompletedAt = a.clock.Now().UTC()
		a.logSummary(done)
		a.afterRun(ctx, done)
	}()

	var (
		authors reddit.AuthorMap
		subs    reddit.SubmissionMap
	)
	switch mode {
	case ModeCollect, ModeRun:
		a.status.start(phaseCollecting, a.clock.Now())
		res, err := a.Collect(ctx)
		if res.RunID != "" {
			done.RunID = res.RunID
			done.Collect = &res.Stats
			done.Manifest = res.Manifest
			a.status.collected(res.RunID, res.Stats)
		}
		if err != nil {
			return err
		}
		authors, subs = res.Authors, res.Submissions
	case ModeIngest:
		a.status.start(phaseIngesting, a.clock.Now())
		authors, subs, err = artifact.Load(ctx, a.blobs, a.cfg.Artifacts.Prefix)
		if err != nil {
			return fmt.Errorf("load artifacts: %w", err)
		}
		a.logger.Info("Artifacts loaded",
			zap.Int("authors", len(authors)),
			zap.Int("submissions", len(subs)),
		)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	if mode == ModeCollect {
		return nil
	}
	a.status.start(phaseIngesting, a.clock.Now())
	stats, err := a.Ingest(ctx, authors, subs)
	done.Ingest = &stats
	a.status.ingested(stats)
	return err
}

// Collect performs one collection run and writes its artifacts.
func (a *App) Collect(ctx context.Context) (collector.Result, error) {
	if err := a.cfg.RequireSubreddits(); err != nil {
		return collector.Result{}, err
	}
	sort, err := reddit.ParseSortMethod(a.cfg.Collection.Sort)
	if err != nil {
		return collector.Result{}, err
	}
	client, err := a.newAPI(ctx)
	if err != nil {
		return collector.Result{}, err
	}

	gov := governor.New(governor.Config{
		DefaultCooldown: a.cfg.DefaultCooldown(),
		SafetyMargin:    a.cfg.SafetyMargin(),
	}, a.clock, a.logger.Named("governor"))
	f := fetcher.New(client, gov, a.clock, fetcher.Config{
		CommentLimit:       a.cfg.Collection.CommentLimit,
		AuthorHistoryLimit: a.cfg.Collection.AuthorHistoryLimit,
		ExcludedAuthors:    a.cfg.Collection.ExcludedAuthors,
		Moderators:         a.cfg.Collection.Moderators,
	}, a.logger.Named("fetcher"))

	sched := scheduler.New(scheduler.Config{
		MaxInFlight: a.cfg.Scheduler.MaxInFlight,
		Workers:     a.cfg.Scheduler.Workers,
		QueueDepth:  a.cfg.Scheduler.QueueDepth,
	}, a.logger.Named("scheduler"))
	defer sched.Close()

	writer, err := artifact.NewWriter(a.blobs, a.hasher, a.clock, a.cfg.Artifacts.Prefix)
	if err != nil {
		return collector.Result{}, fmt.Errorf("artifact writer init failed: %w", err)
	}

	c := collector.New(collector.Config{
		Subreddits:   a.cfg.Collection.Subreddits,
		Sort:         sort,
		ListingLimit: a.cfg.Collection.ListingLimit,
	}, f, sched, writer, a.ids, a.logger.Named("collector"))
	res, err := c.Collect(ctx)
	res.Stats.ThrottleEvents = gov.Throttles()
	if err != nil || res.Manifest == nil {
		return res, err
	}
	stored, err := artifact.LoadManifest(ctx, a.blobs, a.cfg.Artifacts.Prefix, res.RunID)
	if err != nil {
		return res, fmt.Errorf("verify artifacts: %w", err)
	}
	if err := artifact.Verify(ctx, a.blobs, a.hasher, stored); err != nil {
		return res, fmt.Errorf("verify artifacts: %w", err)
	}
	return res, nil
}

// Ingest writes authors and subs to the record store. A store that cannot be
// reached fails the whole pass.
func (a *App) Ingest(ctx context.Context, authors reddit.AuthorMap, subs reddit.SubmissionMap) (reddit.IngestStats, error) {
	store, closeStore, err := a.newStore(ctx)
	if err != nil {
		return reddit.IngestStats{}, err
	}
	defer closeStore()

	a.setStore(store)
	defer a.setStore(nil)

	return ingest.New(store, a.logger.Named("ingest")).Ingest(ctx, authors, subs)
}

func (a *App) logSummary(done RunCompleted) {
	fields := []zap.Field{
		zap.String("mode", string(done.Mode)),
		zap.String("run_id", done.RunID),
		zap.Bool("succeeded", done.Succeeded),
	}
	if s := done.Collect; s != nil {
		fields = append(fields,
			zap.Int("sources_fetched", s.SourcesFetched),
			zap.Int("sources_skipped", s.SourcesSkipped),
			zap.Int("submissions_collected", s.SubmissionsCollected),
			zap.Int("submissions_failed", s.SubmissionsFailed),
			zap.Int("comment_trees_failed", s.CommentTreesFailed),
			zap.Int("comments_collected", s.CommentsCollected),
			zap.Int("authors_fetched", s.AuthorsFetched),
			zap.Int("authors_absent", s.AuthorsAbsent),
			zap.Int("authors_failed", s.AuthorsFailed),
			zap.Int("throttle_events", s.ThrottleEvents),
		)
	}
	if s := done.Ingest; s != nil {
		fields = append(fields,
			zap.Int("authors_upserted", s.AuthorsUpserted),
			zap.Int("submissions_upserted", s.SubmissionsUpserted),
			zap.Int("submissions_skipped", s.SubmissionsSkipped),
			zap.Int("comments_inserted", s.CommentsInserted),
			zap.Int("comments_duplicate", s.CommentsDuplicate),
			zap.Int("comments_skipped", s.CommentsSkipped),
			zap.Int("records_failed", s.Failed()),
		)
	}
	if done.Manifest != nil {
		fields = append(fields, zap.String("manifest", done.Manifest.URI))
	}
	if done.Error != "" {
		fields = append(fields, zap.String("error", done.Error))
		a.logger.Error("Run summary", fields...)
		return
	}
	a.logger.Info("Run summary", fields...)
}

// afterRun publishes the completion event and exports metrics. Both use a
// context detached from cancellation so an interrupted run still reports.
func (a *App) afterRun(ctx context.Context, done RunCompleted) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	metrics.MarkRunCompleted(done.CompletedAt)
	if err := a.PublishRunCompleted(ctx, done); err != nil {
		a.logger.Warn("Failed to publish run completion", zap.Error(err))
	}
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if err := metrics.Push(ctx, url, a.cfg.Metrics.JobName); err != nil {
			a.logger.Warn("Failed to push metrics", zap.String("url", url), zap.Error(err))
		}
	}
}

// PublishRunCompleted sends done to the configured publisher.
func (a *App) PublishRunCompleted(ctx context.Context, done RunCompleted) error {
	if a.publisher == nil {
		return nil
	}
	id, err := a.publisher.Publish(ctx, EventRunCompleted, done)
	if err != nil {
		return fmt.Errorf("publish %s: %w", EventRunCompleted, err)
	}
	a.logger.Debug("Run completion published", zap.String("message_id", id))
	return nil
}

// Status returns the current run snapshot.
func (a *App) Status() RunSnapshot {
	return a.status.snapshot()
}

// startOperator serves the operator API for the lifetime of the run when a
// listen address is configured. The returned func stops it.
func (a *App) startOperator(ctx context.Context) func() {
	addr := a.cfg.Metrics.ListenAddr
	if addr == "" {
		return func() {}
	}
	srv := api.NewServer(map[string]api.Check{
		"postgres": a.pingStore,
	}, func() any { return a.Status() }, a.logger.Named("api"))

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			a.logger.Error("Operator server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

var errNoStore = errors.New("record store not connected")

func (a *App) setStore(s RecordStore) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	a.store = s
}

// pingStore reports readiness. Collection-only phases have no store and are
// considered ready.
func (a *App) pingStore(ctx context.Context) error {
	a.storeMu.Lock()
	s := a.store
	a.storeMu.Unlock()
	if s == nil {
		if a.status.snapshot().Phase == phaseIngesting {
			return errNoStore
		}
		return nil
	}
	return s.Ping(ctx)
}
