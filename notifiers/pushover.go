package notifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/redditwatch/app"
)

type pushoverNotifier struct {
	base
}

func (p *pushoverNotifier) Kind() string {
	return app.KindPushover
}

func (p *pushoverNotifier) Deliver(ctx context.Context, endpoint app.Endpoint, item Item) error {
	var cfg app.PushoverConfig
	if err := json.Unmarshal([]byte(endpoint.Config), &cfg); err != nil {
		return permanentConfig(p.Kind(), err)
	}

	form := url.Values{
		"token":   {cfg.Token},
		"user":    {cfg.User},
		"title":   {fmt.Sprintf("New Reddit Post Alert (%s)", item.Subreddit)},
		"message": {item.Title},
		"url":     {item.URL},
	}
	if cfg.Device != "" {
		form.Set("device", cfg.Device)
	}

	return p.deliverWithRetry(ctx, func(ctx context.Context) error {
		timeout := time.Duration(p.cfg.Pushover.TimeoutSecs) * time.Second
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var status int
		err := requests.URL(p.cfg.Pushover.APIURL).
			Path("/1/messages.json").
			Transport(p.transport).
			BodyForm(form).
			AddValidator(func(res *http.Response) error {
				status = res.StatusCode
				return nil
			}).
			Fetch(ctx)
		return classify(p.Kind(), status, err)
	})
}
