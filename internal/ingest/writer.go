// Package ingest writes collected records to relational storage in
// dependency order: authors, then submissions, then comments.
package ingest

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/metrics"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
	"github.com/JakeFAU/reddit-collector/internal/telemetry"
)

// Store performs single-record writes. Each call runs in its own transaction.
type Store interface {
	Ping(ctx context.Context) error
	UpsertAuthor(ctx context.Context, a reddit.Author) error
	UpsertSubmission(ctx context.Context, s reddit.Submission) error
	// InsertComment writes c unless its id already exists, reporting whether
	// a row was inserted.
	InsertComment(ctx context.Context, c reddit.Comment) (bool, error)
}

// Writer ingests author and submission maps into a Store.
type Writer struct {
	store   Store
	logger  *zap.Logger
	records otelmetric.Int64Counter
}

// New creates a Writer.
func New(store Store, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{store: store, logger: logger}
	records, err := telemetry.Meter().Int64Counter("ingest.records",
		otelmetric.WithDescription("Records written by ingestion, by table."))
	if err != nil {
		logger.Warn("ingest.records counter unavailable", zap.Error(err))
	}
	w.records = records
	return w
}

// Ingest writes every record it can. Only a failed connectivity check is
// returned as an error; per-record failures are logged and counted.
func (w *Writer) Ingest(ctx context.Context, authors reddit.AuthorMap, subs reddit.SubmissionMap) (stats reddit.IngestStats, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.write", trace.WithAttributes(
		attribute.Int("authors", len(authors)),
		attribute.Int("submissions", len(subs)),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := w.store.Ping(ctx); err != nil {
		return stats, fmt.Errorf("store unreachable: %w", err)
	}

	upserted := w.writeAuthors(ctx, authors, &stats)
	comments := w.writeSubmissions(ctx, subs, upserted, &stats)
	w.writeComments(ctx, comments, upserted, &stats)
	w.record(ctx, stats)

	w.logger.Info("Ingest complete",
		zap.Int("authors_upserted", stats.AuthorsUpserted),
		zap.Int("submissions_upserted", stats.SubmissionsUpserted),
		zap.Int("submissions_skipped", stats.SubmissionsSkipped),
		zap.Int("comments_inserted", stats.CommentsInserted),
		zap.Int("comments_duplicate", stats.CommentsDuplicate),
		zap.Int("comments_skipped", stats.CommentsSkipped),
		zap.Int("failed", stats.Failed()),
	)
	return stats, ctx.Err()
}

func (w *Writer) writeAuthors(ctx context.Context, authors reddit.AuthorMap, stats *reddit.IngestStats) map[string]struct{} {
	upserted := make(map[string]struct{}, len(authors))
	for _, key := range sortedKeys(authors) {
		if ctx.Err() != nil {
			break
		}
		a := authors[key]
		if a.Name == "" {
			a.Name = key
		}
		if err := w.store.UpsertAuthor(ctx, a); err != nil {
			stats.AuthorsFailed++
			metrics.ObserveIngest("authors", "failed")
			w.logger.Error("Failed to upsert author", zap.String("phase", "authors"), zap.String("author", a.Name), zap.Error(err))
			continue
		}
		upserted[a.Name] = struct{}{}
		stats.AuthorsUpserted++
		metrics.ObserveIngest("authors", "upserted")
	}
	return upserted
}

// writeSubmissions returns the comments of every submission in subs, written
// or not. A comment only depends on its own author.
func (w *Writer) writeSubmissions(ctx context.Context, subs reddit.SubmissionMap, upserted map[string]struct{}, stats *reddit.IngestStats) []reddit.Comment {
	var comments []reddit.Comment
	for _, key := range sortedKeys(subs) {
		if ctx.Err() != nil {
			break
		}
		s := subs[key]
		if s.ID == "" {
			s.ID = key
		}
		for _, c := range s.Comments {
			if c.SubmissionID == "" {
				c.SubmissionID = s.ID
			}
			comments = append(comments, c)
		}
		if !authorKnown(s.Author, upserted) {
			stats.SubmissionsSkipped++
			metrics.ObserveIngest("submissions", "skipped")
			w.logger.Warn("Skipping submission with unknown author",
				zap.String("phase", "submissions"),
				zap.String("submission_id", s.ID),
				zap.String("author", s.AuthorName()),
			)
			continue
		}
		if err := w.store.UpsertSubmission(ctx, s); err != nil {
			stats.SubmissionsFailed++
			metrics.ObserveIngest("submissions", "failed")
			w.logger.Error("Failed to upsert submission", zap.String("phase", "submissions"), zap.String("submission_id", s.ID), zap.Error(err))
			continue
		}
		stats.SubmissionsUpserted++
		metrics.ObserveIngest("submissions", "upserted")
	}
	return comments
}

func (w *Writer) writeComments(ctx context.Context, comments []reddit.Comment, upserted map[string]struct{}, stats *reddit.IngestStats) {
	for _, c := range comments {
		if ctx.Err() != nil {
			return
		}
		if !authorKnown(c.Author, upserted) {
			stats.CommentsSkipped++
			metrics.ObserveIngest("comments", "skipped")
			w.logger.Debug("Skipping comment with unknown author",
				zap.String("phase", "comments"),
				zap.String("comment_id", c.ID),
				zap.String("author", c.AuthorName()),
			)
			continue
		}
		inserted, err := w.store.InsertComment(ctx, c)
		switch {
		case err != nil:
			stats.CommentsFailed++
			metrics.ObserveIngest("comments", "failed")
			w.logger.Error("Failed to insert comment", zap.String("phase", "comments"), zap.String("comment_id", c.ID), zap.Error(err))
		case !inserted:
			stats.CommentsDuplicate++
			metrics.ObserveIngest("comments", "duplicate")
		default:
			stats.CommentsInserted++
			metrics.ObserveIngest("comments", "inserted")
		}
	}
}

// authorKnown reports whether a record may reference author. Deleted
// accounts are stored with a NULL author.
func authorKnown(author *string, upserted map[string]struct{}) bool {
	if author == nil {
		return true
	}
	_, ok := upserted[*author]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (w *Writer) record(ctx context.Context, stats reddit.IngestStats) {
	if w.records == nil {
		return
	}
	for table, n := range map[string]int{
		"authors":     stats.AuthorsUpserted,
		"submissions": stats.SubmissionsUpserted,
		"comments":    stats.CommentsInserted,
	} {
		w.records.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("table", table)))
	}
}
