// Package fetcher wraps reddit.API calls with throttle handling, comment tree
// expansion, author filtering and dormancy computation.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/governor"
	"github.com/JakeFAU/reddit-collector/internal/metrics"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
	"github.com/JakeFAU/reddit-collector/internal/telemetry"
)

const (
	defaultMaxMoreRounds = 50
	moreBatchSize        = 100
	distinguishedMod     = "moderator"
)

// DefaultExcludedAuthors are automated system accounts.
var DefaultExcludedAuthors = []string{"AutoModerator", "reddit"}

// Config tunes limits and author filtering.
type Config struct {
	CommentLimit       int
	AuthorHistoryLimit int
	ExcludedAuthors    []string
	Moderators         []string
	// MaxMoreRounds bounds placeholder expansion depth per tree.
	MaxMoreRounds int
}

// Fetcher retrieves listings, comment trees and authors. Throttled calls are
// retried exactly once after the governor's cooldown.
type Fetcher struct {
	api      reddit.API
	gov      *governor.Governor
	clock    reddit.Clock
	cfg      Config
	excluded map[string]struct{}
	logger   *zap.Logger
}

// New creates a Fetcher.
func New(api reddit.API, gov *governor.Governor, clock reddit.Clock, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxMoreRounds <= 0 {
		cfg.MaxMoreRounds = defaultMaxMoreRounds
	}
	if cfg.ExcludedAuthors == nil {
		cfg.ExcludedAuthors = DefaultExcludedAuthors
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedAuthors)+len(cfg.Moderators))
	for _, names := range [][]string{cfg.ExcludedAuthors, cfg.Moderators} {
		for _, n := range names {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				excluded[n] = struct{}{}
			}
		}
	}
	return &Fetcher{
		api:      api,
		gov:      gov,
		clock:    clock,
		cfg:      cfg,
		excluded: excluded,
		logger:   logger,
	}
}

// IsExcluded reports whether name is a moderator or automated account.
func (f *Fetcher) IsExcluded(name string) bool {
	_, ok := f.excluded[strings.ToLower(name)]
	return ok
}

func (f *Fetcher) excludedRef(author *string) bool {
	return author != nil && f.IsExcluded(*author)
}

// call runs fn, and on a throttle waits out the cooldown and retries once.
func call[T any](ctx context.Context, f *Fetcher, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := fn(ctx)
	if err == nil || !reddit.IsThrottled(err) {
		return v, err
	}
	if waitErr := f.gov.AwaitReady(ctx, op, err); waitErr != nil {
		return zero, waitErr
	}
	v, err = fn(ctx)
	if err != nil && reddit.IsThrottled(err) {
		return zero, fmt.Errorf("%s: %w: %w", op, reddit.ErrThrottled, err)
	}
	return v, err
}

// Listing fetches a subreddit listing and drops moderator and excluded-author submissions.
func (f *Fetcher) Listing(ctx context.Context, subreddit string, sort reddit.SortMethod, limit int) (subs []reddit.Submission, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fetcher.listing", trace.WithAttributes(
		attribute.String("subreddit", subreddit),
		attribute.String("sort", string(sort)),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	raw, err := call(ctx, f, "listing", func(ctx context.Context) ([]reddit.Submission, error) {
		return f.api.Listing(ctx, subreddit, sort, limit)
	})
	if err != nil {
		return nil, err
	}
	subs = make([]reddit.Submission, 0, len(raw))
	for _, s := range raw {
		if s.Distinguished == distinguishedMod || f.excludedRef(s.Author) {
			f.logger.Debug("Dropping moderator submission", zap.String("submission_id", s.ID))
			continue
		}
		subs = append(subs, s)
	}
	span.SetAttributes(attribute.Int("submissions", len(subs)))
	return subs, nil
}

// Comments returns the fully expanded, flattened comment tree of a submission.
// Placeholder batches that fail are logged and skipped.
func (f *Fetcher) Comments(ctx context.Context, submissionID string) (comments []reddit.Comment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fetcher.comments", trace.WithAttributes(
		attribute.String("submission_id", submissionID),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	page, err := call(ctx, f, "comments", func(ctx context.Context) (reddit.CommentPage, error) {
		return f.api.CommentTree(ctx, submissionID, "", f.cfg.CommentLimit)
	})
	if err != nil {
		return nil, err
	}

	tree := newTreeBuilder(submissionID)
	tree.add(page)
	for round := 0; len(tree.pending) > 0; round++ {
		if round >= f.cfg.MaxMoreRounds {
			f.logger.Warn("Comment expansion stopped at round limit",
				zap.String("submission_id", submissionID),
				zap.Int("unexpanded", len(tree.pending)),
			)
			break
		}
		stubs := tree.takePending()
		f.expand(ctx, tree, stubs)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("expand comments %s: %w", submissionID, ctx.Err())
		}
	}

	comments = make([]reddit.Comment, 0, len(tree.comments))
	for _, c := range tree.comments {
		if f.excludedRef(c.Author) {
			continue
		}
		comments = append(comments, c)
	}
	span.SetAttributes(attribute.Int("comments", len(comments)))
	return comments, nil
}

func (f *Fetcher) expand(ctx context.Context, tree *treeBuilder, stubs []reddit.MoreStub) {
	var ids []string
	for _, stub := range stubs {
		if len(stub.Children) == 0 {
			if stub.ParentID == "" {
				continue
			}
			page, err := call(ctx, f, "comments", func(ctx context.Context) (reddit.CommentPage, error) {
				return f.api.CommentTree(ctx, tree.submissionID, stub.ParentID, f.cfg.CommentLimit)
			})
			if err != nil {
				f.logger.Warn("Failed to continue comment thread",
					zap.String("submission_id", tree.submissionID),
					zap.String("parent_id", stub.ParentID),
					zap.Error(err),
				)
				continue
			}
			tree.add(page)
			continue
		}
		ids = append(ids, stub.Children...)
	}
	for start := 0; start < len(ids); start += moreBatchSize {
		batch := ids[start:min(start+moreBatchSize, len(ids))]
		page, err := call(ctx, f, "morechildren", func(ctx context.Context) (reddit.CommentPage, error) {
			return f.api.MoreChildren(ctx, tree.submissionID, batch)
		})
		if err != nil {
			f.logger.Warn("Failed to expand more comments",
				zap.String("submission_id", tree.submissionID),
				zap.Int("batch", len(batch)),
				zap.Error(err),
			)
			continue
		}
		tree.add(page)
	}
}

// Author resolves a profile and its dormancy. Deleted, suspended, missing and
// excluded accounts return reddit.ErrAbsent.
func (f *Fetcher) Author(ctx context.Context, name string) (author reddit.Author, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fetcher.author", trace.WithAttributes(
		attribute.String("author", name),
	))
	defer func() {
		if errors.Is(err, reddit.ErrAbsent) {
			telemetry.EndSpan(span, nil)
			return
		}
		telemetry.EndSpan(span, err)
	}()

	if reddit.IsDeletedName(name) || f.IsExcluded(name) {
		metrics.ObserveAuthor("absent")
		return reddit.Author{}, fmt.Errorf("author %q: %w", name, reddit.ErrAbsent)
	}

	author, err = call(ctx, f, "author", func(ctx context.Context) (reddit.Author, error) {
		return f.api.User(ctx, name)
	})
	if err != nil {
		if errors.Is(err, reddit.ErrAbsent) {
			metrics.ObserveAuthor("absent")
		} else {
			metrics.ObserveAuthor("failed")
		}
		return reddit.Author{}, err
	}
	if author.Name == "" {
		author.Name = name
	}

	first := f.clock.Now()
	for _, kind := range []reddit.ActivityKind{reddit.ActivityComments, reddit.ActivitySubmissions} {
		times, err := call(ctx, f, "author_history", func(ctx context.Context) ([]time.Time, error) {
			return f.api.UserActivity(ctx, name, kind, f.cfg.AuthorHistoryLimit)
		})
		if err != nil {
			metrics.ObserveAuthor("failed")
			return reddit.Author{}, fmt.Errorf("author %q %s history: %w", name, kind, err)
		}
		if oldest, ok := oldestOf(times); ok && oldest.Before(first) {
			first = oldest
		}
	}
	author.DormantDays = reddit.DormantDays(author.CreatedUTC, first)
	metrics.ObserveAuthor("fetched")
	return author, nil
}

func oldestOf(times []time.Time) (time.Time, bool) {
	if len(times) == 0 {
		return time.Time{}, false
	}
	oldest := times[0]
	for _, t := range times[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest, true
}
