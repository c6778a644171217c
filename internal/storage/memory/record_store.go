package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

// ErrForeignKey mirrors a relational foreign key violation.
var ErrForeignKey = errors.New("foreign key violation")

// RecordStore keeps authors, submissions and comments in maps with the same
// upsert and foreign key rules as the Postgres store.
type RecordStore struct {
	mu          sync.RWMutex
	authors     map[string]reddit.Author
	submissions map[string]reddit.Submission
	comments    map[string]reddit.Comment
	pingErr     error
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		authors:     make(map[string]reddit.Author),
		submissions: make(map[string]reddit.Submission),
		comments:    make(map[string]reddit.Comment),
	}
}

// SetPingError makes subsequent Ping calls fail with err.
func (s *RecordStore) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// Ping reports the configured connectivity error, if any.
func (s *RecordStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// UpsertAuthor inserts or overwrites an author keyed by name.
func (s *RecordStore) UpsertAuthor(_ context.Context, a reddit.Author) error {
	if a.Name == "" {
		return errors.New("author name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[a.Name] = a
	return nil
}

// UpsertSubmission inserts or overwrites a submission keyed by id. Comments
// are not stored on the submission row.
func (s *RecordStore) UpsertSubmission(_ context.Context, sub reddit.Submission) error {
	if sub.ID == "" {
		return errors.New("submission id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAuthor(sub.Author); err != nil {
		return fmt.Errorf("submission %s: %w", sub.ID, err)
	}
	sub.Comments = nil
	s.submissions[sub.ID] = sub
	return nil
}

// InsertComment stores c unless a comment with the same id exists.
func (s *RecordStore) InsertComment(_ context.Context, c reddit.Comment) (bool, error) {
	if c.ID == "" {
		return false, errors.New("comment id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[c.ID]; ok {
		return false, nil
	}
	if err := s.checkAuthor(c.Author); err != nil {
		return false, fmt.Errorf("comment %s: %w", c.ID, err)
	}
	s.comments[c.ID] = c
	return true, nil
}

func (s *RecordStore) checkAuthor(author *string) error {
	if author == nil {
		return nil
	}
	if _, ok := s.authors[*author]; !ok {
		return fmt.Errorf("author %q: %w", *author, ErrForeignKey)
	}
	return nil
}

// Author returns a stored author.
func (s *RecordStore) Author(name string) (reddit.Author, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authors[name]
	return a, ok
}

// Submission returns a stored submission.
func (s *RecordStore) Submission(id string) (reddit.Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	return sub, ok
}

// Comment returns a stored comment.
func (s *RecordStore) Comment(id string) (reddit.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	return c, ok
}

// Counts returns the number of stored authors, submissions and comments.
func (s *RecordStore) Counts() (authors, submissions, comments int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.authors), len(s.submissions), len(s.comments)
}
