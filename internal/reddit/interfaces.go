package reddit

import (
	"context"
	"io"
	"time"
)

// ActivityKind names one of an author's public history listings.
type ActivityKind string

// History listings used for dormancy.
const (
	ActivityComments    ActivityKind = "comments"
	ActivitySubmissions ActivityKind = "submitted"
)

// MoreStub is an unexpanded "load more" placeholder in a comment tree.
// Empty Children means a "continue this thread" link rooted at ParentID.
type MoreStub struct {
	ID       string
	ParentID string
	Children []string
}

// CommentPage is one decoded slice of a comment tree.
type CommentPage struct {
	Comments []Comment
	More     []MoreStub
}

// API performs raw remote reads. Implementations map throttling to
// *ThrottleError, missing listings to ErrSourceNotFound and missing users to
// ErrAbsent.
type API interface {
	Listing(ctx context.Context, subreddit string, sort SortMethod, limit int) ([]Submission, error)
	CommentTree(ctx context.Context, submissionID, focusCommentID string, limit int) (CommentPage, error)
	MoreChildren(ctx context.Context, submissionID string, childIDs []string) (CommentPage, error)
	User(ctx context.Context, name string) (Author, error)
	UserActivity(ctx context.Context, name string, kind ActivityKind, limit int) ([]time.Time, error)
}

// BlobStore writes and reads artifacts by path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
