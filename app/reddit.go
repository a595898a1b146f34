package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/redditwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrMalformedResponse marks a listing that fetched fine but did not decode.
// The poller logs it and skips the cycle; it is never fatal.
var ErrMalformedResponse = errors.New("malformed reddit response")

// FreshnessWindow drops posts reddit occasionally replays from deep history.
const FreshnessWindow = 24 * time.Hour

type Listing struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type Post struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Subreddit  string  `json:"subreddit"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	CreatedUTC float64 `json:"created_utc"`
}

func (p Post) CreatedAt() time.Time {
	secs := int64(p.CreatedUTC)
	nanos := int64((p.CreatedUTC - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos).UTC()
}

func (p Post) Fresh(now time.Time) bool {
	age := now.Sub(p.CreatedAt())
	if age < 0 {
		age = -age
	}
	return age <= FreshnessWindow
}

// DisplayTitle undoes the HTML entity escaping reddit applies to titles.
func (p Post) DisplayTitle() string {
	return html.UnescapeString(p.Title)
}

// Link prefers the permalink, then the submitted URL, then a constructed
// comments path.
func (p Post) Link(baseURL string) string {
	switch {
	case p.Permalink != "":
		return baseURL + p.Permalink
	case p.URL != "":
		return p.URL
	default:
		return fmt.Sprintf("%s/r/%s/comments/%s", baseURL, p.Subreddit, p.ID)
	}
}

type RedditClient struct {
	log       *zap.Logger
	baseURL   string
	transport http.RoundTripper
}

func NewRedditClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *RedditClient {
	return &RedditClient{log, cfg.Reddit.BaseURL, transport}
}

func (c *RedditClient) BaseURL() string {
	return c.baseURL
}

// NewPosts fetches the newest-first listing for one subreddit. One call here
// per topic per interval is the efficiency invariant; fan-out happens later.
func (c *RedditClient) NewPosts(ctx context.Context, subreddit string) ([]Post, error) {
	var body string
	err := requests.URL(c.baseURL).
		Pathf("/r/%s/new.json", subreddit).
		Param("limit", "100").
		Transport(c.transport).
		ToString(&body).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}

	var listing Listing
	if err := json.Unmarshal([]byte(body), &listing); err != nil {
		return nil, fmt.Errorf("%w for r/%s: %v", ErrMalformedResponse, subreddit, err)
	}

	posts := make([]Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}
