package fetcher

import "github.com/JakeFAU/reddit-collector/internal/reddit"

// treeBuilder accumulates comments across expansion rounds, dropping
// duplicates and placeholders it has already queued.
type treeBuilder struct {
	submissionID string
	comments     []reddit.Comment
	seenComments map[string]struct{}
	seenStubs    map[string]struct{}
	pending      []reddit.MoreStub
}

func newTreeBuilder(submissionID string) *treeBuilder {
	return &treeBuilder{
		submissionID: submissionID,
		seenComments: make(map[string]struct{}),
		seenStubs:    make(map[string]struct{}),
	}
}

func (b *treeBuilder) add(page reddit.CommentPage) {
	for _, c := range page.Comments {
		if _, dup := b.seenComments[c.ID]; dup {
			continue
		}
		b.seenComments[c.ID] = struct{}{}
		c.SubmissionID = b.submissionID
		b.comments = append(b.comments, c)
	}
	for _, stub := range page.More {
		key := stubKey(stub)
		if _, dup := b.seenStubs[key]; dup {
			continue
		}
		b.seenStubs[key] = struct{}{}
		b.pending = append(b.pending, stub)
	}
}

func (b *treeBuilder) takePending() []reddit.MoreStub {
	out := b.pending
	b.pending = nil
	return out
}

// stubKey identifies a placeholder. Continuation stubs share the id "_",
// so they are keyed by the thread they continue.
func stubKey(stub reddit.MoreStub) string {
	if len(stub.Children) == 0 {
		return "continue:" + stub.ParentID
	}
	return "more:" + stub.ID
}
