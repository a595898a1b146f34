package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fiffu/redditwatch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func listingJSON(posts ...Post) string {
	children := ""
	for i, p := range posts {
		if i > 0 {
			children += ","
		}
		children += fmt.Sprintf(
			`{"data":{"id":%q,"title":%q,"subreddit":%q,"permalink":%q,"url":%q,"created_utc":%f}}`,
			p.ID, p.Title, p.Subreddit, p.Permalink, p.URL, p.CreatedUTC,
		)
	}
	return fmt.Sprintf(`{"data":{"children":[%s]}}`, children)
}

func nowUTC() float64 {
	return float64(time.Now().UTC().Unix())
}

func newTestClient(t *testing.T, baseURL string) *RedditClient {
	t.Helper()
	cfg := &config.Config{}
	cfg.Reddit.BaseURL = baseURL
	cfg.Reddit.UserAgent = "redditwatch-test"
	log := zap.NewNop()
	return NewRedditClient(fxtest.NewLifecycle(t), cfg, log, NewTransport(fxtest.NewLifecycle(t), cfg, log))
}

func TestRedditClient_NewPosts(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		fmt.Fprint(w, listingJSON(
			Post{ID: "p1", Title: "First", Subreddit: "golang", Permalink: "/r/golang/comments/p1", CreatedUTC: nowUTC()},
			Post{ID: "p2", Title: "Second", Subreddit: "golang", CreatedUTC: nowUTC()},
		))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	posts, err := client.NewPosts(context.Background(), "golang")
	require.NoError(t, err)

	assert.Equal(t, "/r/golang/new.json", gotPath)
	assert.Equal(t, "redditwatch-test", gotAgent, "every upstream call must carry the identifying header")
	require.Len(t, posts, 2)
	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, "First", posts[0].Title)
}

func TestRedditClient_NewPosts_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html>rate limited</html>`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.NewPosts(context.Background(), "golang")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestRedditClient_NewPosts_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.NewPosts(context.Background(), "golang")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedResponse, "upstream 5xx is a fetch error, not a parse error")
}

func TestPost_Fresh(t *testing.T) {
	now := time.Now().UTC()

	fresh := Post{CreatedUTC: float64(now.Add(-time.Hour).Unix())}
	assert.True(t, fresh.Fresh(now))

	stale := Post{CreatedUTC: float64(now.Add(-25 * time.Hour).Unix())}
	assert.False(t, stale.Fresh(now), "reddit sometimes replays old posts; they must be dropped")

	future := Post{CreatedUTC: float64(now.Add(25 * time.Hour).Unix())}
	assert.False(t, future.Fresh(now))
}

func TestPost_Link(t *testing.T) {
	base := "https://www.reddit.com"

	withPermalink := Post{ID: "p1", Subreddit: "golang", Permalink: "/r/golang/comments/p1", URL: "https://example.com"}
	assert.Equal(t, "https://www.reddit.com/r/golang/comments/p1", withPermalink.Link(base))

	withURL := Post{ID: "p1", Subreddit: "golang", URL: "https://example.com"}
	assert.Equal(t, "https://example.com", withURL.Link(base))

	bare := Post{ID: "p1", Subreddit: "golang"}
	assert.Equal(t, "https://www.reddit.com/r/golang/comments/p1", bare.Link(base))
}

func TestPost_DisplayTitle(t *testing.T) {
	p := Post{Title: "Ampersands &amp; angle brackets &lt;here&gt;"}
	assert.Equal(t, "Ampersands & angle brackets <here>", p.DisplayTitle())
}
