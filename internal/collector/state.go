package collector

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

// runState is the per-run context shared by every unit of work.
type runState struct {
	mu          sync.Mutex
	resolved    map[string]struct{}
	authors     reddit.AuthorMap
	skipped     map[string]struct{}
	submissions reddit.SubmissionMap

	sourcesFetched       atomic.Int64
	sourcesSkipped       atomic.Int64
	submissionsListed    atomic.Int64
	submissionsCollected atomic.Int64
	submissionsFailed    atomic.Int64
	commentTreesFailed   atomic.Int64
	commentsCollected    atomic.Int64
	authorsFetched       atomic.Int64
	authorsAbsent        atomic.Int64
	authorsFailed        atomic.Int64
}

func newRunState() *runState {
	return &runState{
		resolved:    make(map[string]struct{}),
		authors:     make(reddit.AuthorMap),
		skipped:     make(map[string]struct{}),
		submissions: make(reddit.SubmissionMap),
	}
}

// claim marks name as resolved and reports whether the caller won the claim.
// Only the winner fetches the author.
func (s *runState) claim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolved[name]; ok {
		return false
	}
	s.resolved[name] = struct{}{}
	return true
}

// storeAuthor records a resolved author. A later write for the same name
// replaces the earlier one.
func (s *runState) storeAuthor(a reddit.Author) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[a.Name] = a
	delete(s.skipped, a.Name)
}

func (s *runState) skip(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[name]; ok {
		return
	}
	s.skipped[name] = struct{}{}
}

func (s *runState) storeSubmission(sub reddit.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
}

// snapshot copies the collected maps so callers can read them without the lock.
func (s *runState) snapshot() (reddit.AuthorMap, reddit.SubmissionMap, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	authors := make(reddit.AuthorMap, len(s.authors))
	for k, v := range s.authors {
		authors[k] = v
	}
	subs := make(reddit.SubmissionMap, len(s.submissions))
	for k, v := range s.submissions {
		subs[k] = v
	}
	skipped := make([]string, 0, len(s.skipped))
	for name := range s.skipped {
		skipped = append(skipped, name)
	}
	sort.Strings(skipped)
	return authors, subs, skipped
}

func (s *runState) stats() reddit.CollectStats {
	return reddit.CollectStats{
		SourcesFetched:       int(s.sourcesFetched.Load()),
		SourcesSkipped:       int(s.sourcesSkipped.Load()),
		SubmissionsListed:    int(s.submissionsListed.Load()),
		SubmissionsCollected: int(s.submissionsCollected.Load()),
		SubmissionsFailed:    int(s.submissionsFailed.Load()),
		CommentTreesFailed:   int(s.commentTreesFailed.Load()),
		CommentsCollected:    int(s.commentsCollected.Load()),
		AuthorsFetched:       int(s.authorsFetched.Load()),
		AuthorsAbsent:        int(s.authorsAbsent.Load()),
		AuthorsFailed:        int(s.authorsFailed.Load()),
	}
}
