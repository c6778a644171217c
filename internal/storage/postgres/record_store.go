// Package postgres provides Postgres-backed persistence for collected records.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// RecordStore writes authors, submissions and comments, one transaction per record.
type RecordStore struct {
	pool pool
}

// NewRecordStore opens a pool and pings it so connectivity problems surface immediately.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &RecordStore{pool: p}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RecordStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables and indexes if they are missing.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

const upsertAuthorSQL = `
INSERT INTO authors (
	name,
	author_id,
	created_utc,
	link_karma,
	comment_karma,
	total_karma,
	is_employee,
	is_mod,
	is_gold,
	is_subscriber,
	has_verified_email,
	accepts_followers,
	dormant_days
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (name) DO UPDATE SET
	author_id = EXCLUDED.author_id,
	created_utc = EXCLUDED.created_utc,
	link_karma = EXCLUDED.link_karma,
	comment_karma = EXCLUDED.comment_karma,
	total_karma = EXCLUDED.total_karma,
	is_employee = EXCLUDED.is_employee,
	is_mod = EXCLUDED.is_mod,
	is_gold = EXCLUDED.is_gold,
	is_subscriber = EXCLUDED.is_subscriber,
	has_verified_email = EXCLUDED.has_verified_email,
	accepts_followers = EXCLUDED.accepts_followers,
	dormant_days = EXCLUDED.dormant_days,
	updated_at = now()`

// UpsertAuthor inserts an author or overwrites every mutable column.
func (s *RecordStore) UpsertAuthor(ctx context.Context, a reddit.Author) error {
	if a.Name == "" {
		return fmt.Errorf("author name is required")
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertAuthorSQL,
			a.Name,
			a.ID,
			nullTime(a.CreatedUTC),
			a.LinkKarma,
			a.CommentKarma,
			a.TotalKarma,
			a.IsEmployee,
			a.IsMod,
			a.IsGold,
			a.IsSubscriber,
			a.HasVerifiedEmail,
			a.AcceptsFollowers,
			a.DormantDays,
		)
		if err != nil {
			return fmt.Errorf("upsert author %s: %w", a.Name, err)
		}
		return nil
	})
}

const upsertSubmissionSQL = `
INSERT INTO submissions (
	submission_id,
	subreddit,
	author,
	title,
	score,
	url,
	created_utc,
	over_18,
	num_comments
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (submission_id) DO UPDATE SET
	title = EXCLUDED.title,
	score = EXCLUDED.score,
	url = EXCLUDED.url,
	created_utc = EXCLUDED.created_utc,
	over_18 = EXCLUDED.over_18,
	num_comments = EXCLUDED.num_comments,
	updated_at = now()`

// UpsertSubmission inserts a submission or overwrites its mutable columns.
// A nil author is stored as NULL.
func (s *RecordStore) UpsertSubmission(ctx context.Context, sub reddit.Submission) error {
	if sub.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertSubmissionSQL,
			sub.ID,
			sub.Subreddit,
			sub.Author,
			sub.Title,
			sub.Score,
			sub.URL,
			nullTime(sub.CreatedUTC),
			sub.Over18,
			sub.NumComments,
		)
		if err != nil {
			return fmt.Errorf("upsert submission %s: %w", sub.ID, err)
		}
		return nil
	})
}

const (
	commentExistsSQL = `SELECT EXISTS (SELECT 1 FROM comments WHERE comment_id = $1)`
	insertCommentSQL = `
INSERT INTO comments (
	comment_id,
	submission_id,
	parent_id,
	author,
	body,
	score,
	is_submitter,
	edited,
	edited_utc,
	created_utc
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (comment_id) DO NOTHING`
)

// InsertComment writes a comment unless its id is already stored. Stored
// comments are never updated.
func (s *RecordStore) InsertComment(ctx context.Context, c reddit.Comment) (bool, error) {
	if c.ID == "" {
		return false, fmt.Errorf("comment id is required")
	}
	var inserted bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, commentExistsSQL, c.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check comment %s: %w", c.ID, err)
		}
		if exists {
			return nil
		}
		tag, err := tx.Exec(ctx, insertCommentSQL,
			c.ID,
			reddit.StripTypePrefix(c.SubmissionID),
			c.ParentID,
			c.Author,
			c.Body,
			c.Score,
			c.IsSubmitter,
			c.Edited,
			c.EditedUTC,
			nullTime(c.CreatedUTC),
		)
		if err != nil {
			return fmt.Errorf("insert comment %s: %w", c.ID, err)
		}
		inserted = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// withTx runs fn in a transaction, rolling back on any error.
func (s *RecordStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
