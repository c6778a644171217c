package reddit

import (
	"fmt"
	"strings"
	"time"
)

// SortMethod selects how a listing is ordered.
type SortMethod string

// Supported listing orders.
const (
	SortTop           SortMethod = "top"
	SortHot           SortMethod = "hot"
	SortNew           SortMethod = "new"
	SortRising        SortMethod = "rising"
	SortControversial SortMethod = "controversial"
)

// ParseSortMethod validates a configured sort name.
func ParseSortMethod(s string) (SortMethod, error) {
	switch m := SortMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case SortTop, SortHot, SortNew, SortRising, SortControversial:
		return m, nil
	default:
		return "", fmt.Errorf("invalid sort method %q: want one of top, hot, new, rising, controversial", s)
	}
}

// Timed reports whether the listing accepts a time window parameter.
func (m SortMethod) Timed() bool {
	return m == SortTop || m == SortControversial
}

// Author is the profile snapshot of an account that posted or commented.
type Author struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CreatedUTC       time.Time `json:"created_utc"`
	LinkKarma        int64     `json:"link_karma"`
	CommentKarma     int64     `json:"comment_karma"`
	TotalKarma       int64     `json:"total_karma"`
	IsEmployee       bool      `json:"is_employee"`
	IsMod            bool      `json:"is_mod"`
	IsGold           bool      `json:"is_gold"`
	IsSubscriber     bool      `json:"is_subscriber"`
	HasVerifiedEmail bool      `json:"has_verified_email"`
	AcceptsFollowers bool      `json:"accepts_followers"`
	DormantDays      int64     `json:"dormant_days"`
}

// Submission is a top-level post with its flattened comments.
// A nil Author marks a deleted account.
type Submission struct {
	ID            string    `json:"id"`
	Subreddit     string    `json:"subreddit"`
	Author        *string   `json:"author"`
	Title         string    `json:"title"`
	Score         int64     `json:"score"`
	URL           string    `json:"url"`
	CreatedUTC    time.Time `json:"created_utc"`
	Over18        bool      `json:"over_18"`
	NumComments   int64     `json:"num_comments"`
	Distinguished string    `json:"distinguished,omitempty"`
	Comments      []Comment `json:"comments"`
}

// Comment is a single reply within a submission's tree.
// SubmissionID never carries the "t3_" type prefix.
type Comment struct {
	ID           string     `json:"id"`
	SubmissionID string     `json:"submission_id"`
	ParentID     string     `json:"parent_id"`
	Author       *string    `json:"author"`
	Body         string     `json:"body"`
	Score        int64      `json:"score"`
	IsSubmitter  bool       `json:"is_submitter"`
	Edited       bool       `json:"edited"`
	EditedUTC    *time.Time `json:"edited_utc,omitempty"`
	CreatedUTC   time.Time  `json:"created_utc"`
}

// AuthorMap indexes resolved authors by name.
type AuthorMap map[string]Author

// SubmissionMap indexes collected submissions by id.
type SubmissionMap map[string]Submission

// AuthorName returns the author or the empty string for deleted accounts.
func (s Submission) AuthorName() string {
	if s.Author == nil {
		return ""
	}
	return *s.Author
}

// AuthorName returns the author or the empty string for deleted accounts.
func (c Comment) AuthorName() string {
	if c.Author == nil {
		return ""
	}
	return *c.Author
}

// StripTypePrefix removes a fullname type prefix such as "t3_" or "t1_".
func StripTypePrefix(fullname string) string {
	if len(fullname) > 3 && fullname[0] == 't' && fullname[2] == '_' && fullname[1] >= '0' && fullname[1] <= '9' {
		return fullname[3:]
	}
	return fullname
}

// IsDeletedName reports whether the platform rendered the author as removed.
func IsDeletedName(name string) bool {
	switch strings.TrimSpace(name) {
	case "", "[deleted]", "deleted", "[removed]":
		return true
	default:
		return false
	}
}

// AuthorRef converts a raw author name into a reference, nil for deleted accounts.
func AuthorRef(name string) *string {
	if IsDeletedName(name) {
		return nil
	}
	n := name
	return &n
}

// DormantDays returns whole days between account creation and first observed
// activity. Negative spans clamp to zero.
func DormantDays(created, firstActivity time.Time) int64 {
	d := firstActivity.Sub(created)
	if d <= 0 {
		return 0
	}
	return int64(d / (24 * time.Hour))
}
