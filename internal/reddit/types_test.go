package reddit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortMethod(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"top", "hot", "new", "rising", "controversial", " TOP "} {
		m, err := ParseSortMethod(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, m)
	}
	_, err := ParseSortMethod("best")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "best")
}

func TestSortMethodTimed(t *testing.T) {
	t.Parallel()

	assert.True(t, SortTop.Timed())
	assert.True(t, SortControversial.Timed())
	assert.False(t, SortHot.Timed())
	assert.False(t, SortNew.Timed())
}

func TestStripTypePrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc123", StripTypePrefix("t3_abc123"))
	assert.Equal(t, "xyz", StripTypePrefix("t1_xyz"))
	assert.Equal(t, "abc123", StripTypePrefix("abc123"))
	assert.Equal(t, "tx_abc", StripTypePrefix("tx_abc"))
	assert.Equal(t, "t3_", StripTypePrefix("t3_"))
}

func TestAuthorRef(t *testing.T) {
	t.Parallel()

	assert.Nil(t, AuthorRef("[deleted]"))
	assert.Nil(t, AuthorRef(""))
	ref := AuthorRef("spez")
	require.NotNil(t, ref)
	assert.Equal(t, "spez", *ref)

	s := Submission{Author: ref}
	assert.Equal(t, "spez", s.AuthorName())
	assert.Equal(t, "", Comment{}.AuthorName())
}

func TestDormantDays(t *testing.T) {
	t.Parallel()

	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(0), DormantDays(created, created))
	assert.Equal(t, int64(0), DormantDays(created, created.Add(23*time.Hour)))
	assert.Equal(t, int64(1), DormantDays(created, created.Add(47*time.Hour)))
	assert.Equal(t, int64(366), DormantDays(created, created.AddDate(1, 0, 0)))
	assert.Equal(t, int64(0), DormantDays(created, created.Add(-time.Hour)))
}

func TestThrottleErrorHelpers(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetch listing: %w", &ThrottleError{RetryAfter: 7 * time.Second})
	assert.True(t, IsThrottled(err))
	assert.Equal(t, 7*time.Second, RetryAfterOf(err))
	assert.Contains(t, err.Error(), "retry after 7s")

	assert.False(t, IsThrottled(ErrAbsent))
	assert.Zero(t, RetryAfterOf(ErrAbsent))
	assert.Equal(t, "rate limited", (&ThrottleError{}).Error())
}

func TestIngestStatsFailed(t *testing.T) {
	t.Parallel()

	s := IngestStats{AuthorsFailed: 1, SubmissionsFailed: 2, CommentsFailed: 3, CommentsSkipped: 9}
	assert.Equal(t, 6, s.Failed())
}
