package redditapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/metrics"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newAnonymousClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	metrics.Init()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(context.Background(), Config{BaseURL: srv.URL, UserAgent: "test-agent/1.0", Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	return client
}

const listingPage1 = `{"kind":"Listing","data":{"after":"t3_b","children":[
 {"kind":"t3","data":{"id":"a","subreddit":"golang","author":"alice","title":"A","score":10,"url":"https://x/a","created_utc":1700000000.0,"over_18":false,"num_comments":2,"distinguished":null}},
 {"kind":"t3","data":{"id":"b","subreddit":"golang","author":"[deleted]","title":"B","score":3,"url":"https://x/b","created_utc":1700000100.0,"over_18":true,"num_comments":0,"distinguished":"moderator"}}
]}}`

const listingPage2 = `{"kind":"Listing","data":{"after":null,"children":[
 {"kind":"t3","data":{"id":"c","subreddit":"golang","author":"carol","title":"C","score":1,"url":"https://x/c","created_utc":1700000200.0,"over_18":false,"num_comments":1}}
]}}`

func TestListingPaginatesAndDecodes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/r/golang/top.json", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "all", r.URL.Query().Get("t"))
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		if r.URL.Query().Get("after") == "t3_b" {
			writeJSON(w, http.StatusOK, listingPage2)
			return
		}
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, listingPage1)
	})
	client := newAnonymousClient(t, mux)

	subs, err := client.Listing(context.Background(), "golang", reddit.SortTop, 150)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, int32(2), calls.Load())

	assert.Equal(t, "a", subs[0].ID)
	require.NotNil(t, subs[0].Author)
	assert.Equal(t, "alice", *subs[0].Author)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), subs[0].CreatedUTC)
	assert.Nil(t, subs[1].Author)
	assert.True(t, subs[1].Over18)
	assert.Equal(t, "moderator", subs[1].Distinguished)
	assert.Equal(t, "c", subs[2].ID)
}

func TestListingTruncatesToLimit(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/r/golang/hot.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("t"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, listingPage1)
	})
	client := newAnonymousClient(t, mux)

	subs, err := client.Listing(context.Background(), "golang", reddit.SortHot, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestListingMissingSource(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/r/gone/new.json", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/subreddits/search.json?q=gone", http.StatusFound)
	})
	mux.HandleFunc("/r/banned/new.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"reason":"banned"}`)
	})
	mux.HandleFunc("/subreddits/search.json", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("redirect should not be followed")
		writeJSON(w, http.StatusOK, `{}`)
	})
	client := newAnonymousClient(t, mux)

	_, err := client.Listing(context.Background(), "gone", reddit.SortNew, 10)
	require.ErrorIs(t, err, reddit.ErrSourceNotFound)

	_, err = client.Listing(context.Background(), "banned", reddit.SortNew, 10)
	require.ErrorIs(t, err, reddit.ErrSourceNotFound)
}

func TestThrottleResponse(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/r/golang/hot.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		writeJSON(w, http.StatusTooManyRequests, `{"message":"Too Many Requests"}`)
	})
	client := newAnonymousClient(t, mux)

	_, err := client.Listing(context.Background(), "golang", reddit.SortHot, 10)
	require.Error(t, err)
	require.True(t, reddit.IsThrottled(err))
	assert.Equal(t, 7*time.Second, reddit.RetryAfterOf(err))
}

func TestServerErrorIsNotSourceNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/r/golang/hot.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{}`)
	})
	client := newAnonymousClient(t, mux)

	_, err := client.Listing(context.Background(), "golang", reddit.SortHot, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, reddit.ErrSourceNotFound)
	assert.False(t, reddit.IsThrottled(err))
	assert.Equal(t, http.StatusInternalServerError, statusOf(err))
}

const commentTree = `[
 {"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"abc"}}]}},
 {"kind":"Listing","data":{"children":[
  {"kind":"t1","data":{"id":"c1","link_id":"t3_abc","parent_id":"t3_abc","author":"bob","body":"top","score":5,"is_submitter":false,"edited":false,"created_utc":1700000300.0,
   "replies":{"kind":"Listing","data":{"children":[
     {"kind":"t1","data":{"id":"c2","link_id":"t3_abc","parent_id":"t1_c1","author":"alice","body":"reply","score":2,"is_submitter":true,"edited":1700000900.0,"created_utc":1700000400.0,"replies":""}},
     {"kind":"more","data":{"id":"m1","parent_id":"t1_c1","children":["c3","c4"],"count":2}}
   ]}}}},
  {"kind":"t1","data":{"id":"c5","link_id":"t3_abc","parent_id":"t3_abc","author":"[deleted]","body":"[removed]","score":0,"edited":false,"created_utc":1700000500.0,"replies":""}},
  {"kind":"more","data":{"id":"_","parent_id":"t1_c5","children":[],"count":0}}
 ]}}
]`

func TestCommentTreeFlattens(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/comments/abc.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, commentTree)
	})
	client := newAnonymousClient(t, mux)

	page, err := client.CommentTree(context.Background(), "abc", "", 500)
	require.NoError(t, err)
	require.Len(t, page.Comments, 3)

	assert.Equal(t, "c1", page.Comments[0].ID)
	assert.Equal(t, "abc", page.Comments[0].SubmissionID)
	assert.False(t, page.Comments[0].Edited)

	assert.Equal(t, "c2", page.Comments[1].ID)
	assert.True(t, page.Comments[1].IsSubmitter)
	assert.True(t, page.Comments[1].Edited)
	require.NotNil(t, page.Comments[1].EditedUTC)
	assert.Equal(t, time.Unix(1700000900, 0).UTC(), *page.Comments[1].EditedUTC)

	assert.Nil(t, page.Comments[2].Author)

	require.Len(t, page.More, 2)
	assert.Equal(t, []string{"c3", "c4"}, page.More[0].Children)
	assert.Equal(t, "c1", page.More[0].ParentID)
	assert.Empty(t, page.More[1].Children)
	assert.Equal(t, "c5", page.More[1].ParentID)
}

func TestCommentTreeFocus(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/comments/abc.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c5", r.URL.Query().Get("comment"))
		writeJSON(w, http.StatusOK, `[{"kind":"Listing","data":{"children":[]}},{"kind":"Listing","data":{"children":[]}}]`)
	})
	client := newAnonymousClient(t, mux)

	page, err := client.CommentTree(context.Background(), "abc", "c5", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Comments)
}

func TestCommentTreeMissingSubmission(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/comments/gone.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})
	client := newAnonymousClient(t, mux)

	_, err := client.CommentTree(context.Background(), "gone", "", 10)
	require.ErrorIs(t, err, reddit.ErrAbsent)
}

func TestMoreChildren(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/morechildren.json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "t3_abc", q.Get("link_id"))
		assert.Equal(t, "c3,c4", q.Get("children"))
		assert.Equal(t, "json", q.Get("api_type"))
		writeJSON(w, http.StatusOK, `{"json":{"errors":[],"data":{"things":[
			{"kind":"t1","data":{"id":"c3","link_id":"t3_abc","parent_id":"t1_c1","author":"dave","body":"x","created_utc":1700000600.0,"replies":""}},
			{"kind":"t1","data":{"id":"c4","link_id":"t3_abc","parent_id":"t1_c3","author":"erin","body":"y","created_utc":1700000700.0,"replies":""}}
		]}}}`)
	})
	client := newAnonymousClient(t, mux)

	page, err := client.MoreChildren(context.Background(), "abc", []string{"c3", "c4"})
	require.NoError(t, err)
	require.Len(t, page.Comments, 2)
	assert.Equal(t, "c4", page.Comments[1].ID)

	empty, err := client.MoreChildren(context.Background(), "abc", nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Comments)

	_, err = client.MoreChildren(context.Background(), "abc", make([]string, maxMoreBatch+1))
	require.Error(t, err)
}

func TestUser(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/user/alice/about.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"kind":"t2","data":{"id":"u1","name":"alice","created_utc":1600000000.0,
			"link_karma":10,"comment_karma":20,"total_karma":0,"is_employee":false,"is_mod":true,"is_gold":true,
			"has_verified_email":null,"accept_followers":true,"subreddit":{"user_is_subscriber":true}}}`)
	})
	mux.HandleFunc("/user/suspended/about.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"kind":"t2","data":{"name":"suspended","is_suspended":true}}`)
	})
	mux.HandleFunc("/user/missing/about.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})
	client := newAnonymousClient(t, mux)

	a, err := client.User(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", a.ID)
	assert.Equal(t, int64(30), a.TotalKarma)
	assert.True(t, a.IsMod)
	assert.True(t, a.IsGold)
	assert.False(t, a.HasVerifiedEmail)
	assert.True(t, a.AcceptsFollowers)
	assert.True(t, a.IsSubscriber)
	assert.Equal(t, time.Unix(1600000000, 0).UTC(), a.CreatedUTC)

	_, err = client.User(context.Background(), "suspended")
	require.ErrorIs(t, err, reddit.ErrAbsent)

	_, err = client.User(context.Background(), "missing")
	require.ErrorIs(t, err, reddit.ErrAbsent)
}

func TestUserActivity(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/user/alice/comments.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "new", r.URL.Query().Get("sort"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, `{"kind":"Listing","data":{"children":[
			{"kind":"t1","data":{"created_utc":1700000000.0}},
			{"kind":"t1","data":{"created_utc":1650000000.0}}
		]}}`)
	})
	mux.HandleFunc("/user/alice/submitted.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, `{}`)
	})
	client := newAnonymousClient(t, mux)

	times, err := client.UserActivity(context.Background(), "alice", reddit.ActivityComments, 500)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.Equal(t, time.Unix(1650000000, 0).UTC(), times[1])

	hidden, err := client.UserActivity(context.Background(), "alice", reddit.ActivitySubmissions, 10)
	require.NoError(t, err)
	assert.Empty(t, hidden)
}

func TestOAuthClientCredentials(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		writeJSON(w, http.StatusOK, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/r/golang/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, listingPage2)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := New(context.Background(), Config{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "test-agent/1.0",
	}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		subs, err := client.Listing(context.Background(), "golang", reddit.SortNew, 5)
		require.NoError(t, err)
		require.Len(t, subs, 1)
	}
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestGetHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/r/slow/hot.json", func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, listingPage2)
	})
	client := newAnonymousClient(t, mux)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Listing(ctx, "slow", reddit.SortHot, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCanceledRequestIsAborted(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	aborted := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/r/slow/hot.json", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(3 * time.Second):
			writeJSON(w, http.StatusOK, listingPage2)
		}
	})
	client := newAnonymousClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := client.Listing(ctx, "slow", reddit.SortHot, 1)
		errc <- err
	}()
	<-started
	cancel()

	require.ErrorIs(t, <-errc, context.Canceled)
	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request kept running after cancellation")
	}
}

func TestLargeResponseIsNotTruncated(t *testing.T) {
	t.Parallel()

	title := strings.Repeat("x", 11<<20)
	body := `{"kind":"Listing","data":{"after":null,"children":[
 {"kind":"t3","data":{"id":"big","subreddit":"golang","author":"alice","title":"` + title + `","created_utc":1700000000.0}}
]}}`
	mux := http.NewServeMux()
	mux.HandleFunc("/r/golang/hot.json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, body)
	})
	client := newAnonymousClient(t, mux)

	subs, err := client.Listing(context.Background(), "golang", reddit.SortHot, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Len(t, subs[0].Title, len(title))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"nil header", nil, 0},
		{"seconds", http.Header{"Retry-After": {"12"}}, 12 * time.Second},
		{"http date", http.Header{"Retry-After": {now.Add(30 * time.Second).Format(http.TimeFormat)}}, 30 * time.Second},
		{"reset hint", http.Header{"X-Ratelimit-Reset": {"4.5"}}, 4500 * time.Millisecond},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseRetryAfter(tt.header, now))
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	t.Parallel()

	err := &statusError{Code: http.StatusBadGateway}
	assert.True(t, strings.Contains(err.Error(), "502"))
}
