package postgres

// schema is applied statement by statement by EnsureSchema.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS authors (
	name               TEXT PRIMARY KEY,
	author_id          TEXT NOT NULL DEFAULT '',
	created_utc        TIMESTAMPTZ,
	link_karma         BIGINT NOT NULL DEFAULT 0,
	comment_karma      BIGINT NOT NULL DEFAULT 0,
	total_karma        BIGINT NOT NULL DEFAULT 0,
	is_employee        BOOLEAN NOT NULL DEFAULT FALSE,
	is_mod             BOOLEAN NOT NULL DEFAULT FALSE,
	is_gold            BOOLEAN NOT NULL DEFAULT FALSE,
	is_subscriber      BOOLEAN NOT NULL DEFAULT FALSE,
	has_verified_email BOOLEAN NOT NULL DEFAULT FALSE,
	accepts_followers  BOOLEAN NOT NULL DEFAULT FALSE,
	dormant_days       BIGINT NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS submissions (
	submission_id TEXT PRIMARY KEY,
	subreddit     TEXT NOT NULL DEFAULT '',
	author        TEXT REFERENCES authors (name),
	title         TEXT NOT NULL DEFAULT '',
	score         BIGINT NOT NULL DEFAULT 0,
	url           TEXT NOT NULL DEFAULT '',
	created_utc   TIMESTAMPTZ,
	over_18       BOOLEAN NOT NULL DEFAULT FALSE,
	num_comments  BIGINT NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS comments (
	comment_id    TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL,
	parent_id     TEXT NOT NULL DEFAULT '',
	author        TEXT REFERENCES authors (name),
	body          TEXT NOT NULL DEFAULT '',
	score         BIGINT NOT NULL DEFAULT 0,
	is_submitter  BOOLEAN NOT NULL DEFAULT FALSE,
	edited        BOOLEAN NOT NULL DEFAULT FALSE,
	edited_utc    TIMESTAMPTZ,
	created_utc   TIMESTAMPTZ,
	inserted_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS submissions_author_idx ON submissions (author)`,
	`CREATE INDEX IF NOT EXISTS comments_submission_id_idx ON comments (submission_id)`,
	`CREATE INDEX IF NOT EXISTS comments_author_idx ON comments (author)`,
}
