// Package collector drives one collection run: listings are fetched
// sequentially, each submission is processed as a scheduled unit and the
// resulting maps are written out as artifacts.
package collector

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/artifact"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
	"github.com/JakeFAU/reddit-collector/internal/scheduler"
	"github.com/JakeFAU/reddit-collector/internal/telemetry"
)

// Fetcher is the subset of fetcher.Fetcher the collector drives.
type Fetcher interface {
	Listing(ctx context.Context, subreddit string, sort reddit.SortMethod, limit int) ([]reddit.Submission, error)
	Comments(ctx context.Context, submissionID string) ([]reddit.Comment, error)
	Author(ctx context.Context, name string) (reddit.Author, error)
}

// Scheduler runs units under admission control.
type Scheduler interface {
	Submit(ctx context.Context, name string, unit scheduler.Unit) (*scheduler.Future, error)
}

// ArtifactWriter persists the collected maps.
type ArtifactWriter interface {
	Save(ctx context.Context, runID string, authors reddit.AuthorMap, subs reddit.SubmissionMap) (artifact.Manifest, error)
}

// Config selects what to collect.
type Config struct {
	Subreddits   []string
	Sort         reddit.SortMethod
	ListingLimit int
}

// Result is the outcome of a run.
type Result struct {
	RunID          string
	Authors        reddit.AuthorMap
	Submissions    reddit.SubmissionMap
	SkippedAuthors []string
	Stats          reddit.CollectStats
	Manifest       *artifact.Manifest
}

// Collector orchestrates a run.
type Collector struct {
	cfg       Config
	fetcher   Fetcher
	sched     Scheduler
	artifacts ArtifactWriter
	ids       reddit.IDGenerator
	logger    *zap.Logger
}

// New creates a Collector. artifacts may be nil to skip writing output.
func New(cfg Config, f Fetcher, sched Scheduler, artifacts ArtifactWriter, ids reddit.IDGenerator, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		cfg:       cfg,
		fetcher:   f,
		sched:     sched,
		artifacts: artifacts,
		ids:       ids,
		logger:    logger,
	}
}

// Collect runs listings, fans submissions out to the scheduler and waits for
// every unit. Individual failures are counted, never returned; the error is
// reserved for run-level problems such as an artifact write failure.
func (c *Collector) Collect(ctx context.Context) (res Result, err error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := telemetry.StartSpan(ctx, "collector.collect", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.StringSlice("subreddits", c.cfg.Subreddits),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	logger := c.logger.With(zap.String("run_id", runID))
	st := newRunState()

	subs := c.list(ctx, st, logger)
	logger.Info("Listings fetched", zap.Int("submissions", len(subs)))

	futures := make([]*scheduler.Future, 0, len(subs))
	for _, sub := range subs {
		f, err := c.sched.Submit(ctx, "submission:"+sub.ID, func(ctx context.Context) error {
			return c.processSubmission(ctx, st, sub, logger)
		})
		if err != nil {
			st.submissionsFailed.Add(1)
			logger.Error("Failed to schedule submission", zap.String("submission_id", sub.ID), zap.Error(err))
			continue
		}
		futures = append(futures, f)
	}
	for _, f := range futures {
		if err := f.Wait(ctx); err != nil {
			st.submissionsFailed.Add(1)
			logger.Warn("Submission unit failed", zap.String("unit", f.Name()), zap.Error(err))
		}
	}

	authors, collected, skipped := st.snapshot()
	res = Result{
		RunID:          runID,
		Authors:        authors,
		Submissions:    collected,
		SkippedAuthors: skipped,
		Stats:          st.stats(),
	}
	span.SetAttributes(
		attribute.Int("authors", len(authors)),
		attribute.Int("submissions", len(collected)),
	)

	if c.artifacts != nil {
		m, err := c.artifacts.Save(ctx, runID, authors, collected)
		if err != nil {
			return res, fmt.Errorf("write artifacts: %w", err)
		}
		res.Manifest = &m
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("collect: %w", err)
	}
	return res, nil
}

// list fetches every configured listing in order and returns submissions
// deduplicated by id. Sources that fail are skipped.
func (c *Collector) list(ctx context.Context, st *runState, logger *zap.Logger) []reddit.Submission {
	seen := make(map[string]struct{})
	var out []reddit.Submission
	for _, sub := range c.cfg.Subreddits {
		listing, err := c.fetcher.Listing(ctx, sub, c.cfg.Sort, c.cfg.ListingLimit)
		if err != nil {
			st.sourcesSkipped.Add(1)
			if errors.Is(err, reddit.ErrSourceNotFound) {
				logger.Warn("Listing source not found, skipping", zap.String("subreddit", sub), zap.Error(err))
			} else {
				logger.Error("Failed to fetch listing, skipping", zap.String("subreddit", sub), zap.Error(err))
			}
			continue
		}
		st.sourcesFetched.Add(1)
		for _, s := range listing {
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			out = append(out, s)
		}
	}
	st.submissionsListed.Add(int64(len(out)))
	return out
}

// processSubmission resolves the submission author, then the comment tree,
// then every comment author, and stores the assembled record.
func (c *Collector) processSubmission(ctx context.Context, st *runState, sub reddit.Submission, logger *zap.Logger) error {
	logger = logger.With(zap.String("submission_id", sub.ID))
	c.resolveAuthor(ctx, st, sub.Author, logger)

	comments, err := c.fetcher.Comments(ctx, sub.ID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		st.commentTreesFailed.Add(1)
		logger.Warn("Failed to fetch comment tree, keeping submission without comments", zap.Error(err))
		comments = nil
	}
	for _, cm := range comments {
		c.resolveAuthor(ctx, st, cm.Author, logger)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if comments == nil {
		comments = []reddit.Comment{}
	}
	sub.Comments = comments
	st.storeSubmission(sub)
	st.submissionsCollected.Add(1)
	st.commentsCollected.Add(int64(len(comments)))
	logger.Debug("Submission collected", zap.Int("comments", len(comments)))
	return nil
}

// resolveAuthor fetches an author unless the reference is a deleted account or
// another unit already claimed the name.
func (c *Collector) resolveAuthor(ctx context.Context, st *runState, ref *string, logger *zap.Logger) {
	if ref == nil {
		return
	}
	name := *ref
	if !st.claim(name) {
		return
	}
	author, err := c.fetcher.Author(ctx, name)
	switch {
	case errors.Is(err, reddit.ErrAbsent):
		st.authorsAbsent.Add(1)
		st.skip(name)
		logger.Debug("Author absent, skipping", zap.String("author", name))
	case err != nil:
		st.authorsFailed.Add(1)
		logger.Warn("Failed to resolve author", zap.String("author", name), zap.Error(err))
	default:
		author.Name = name
		st.storeAuthor(author)
		st.authorsFetched.Add(1)
	}
}
