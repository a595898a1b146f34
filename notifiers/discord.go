package notifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/redditwatch/app"
)

const defaultDiscordUsername = "Reddit Notifier"

type discordNotifier struct {
	base
}

func (d *discordNotifier) Kind() string {
	return app.KindDiscord
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Type        string `json:"type"`
}

func (d *discordNotifier) Deliver(ctx context.Context, endpoint app.Endpoint, item Item) error {
	var cfg app.DiscordConfig
	if err := json.Unmarshal([]byte(endpoint.Config), &cfg); err != nil {
		return permanentConfig(d.Kind(), err)
	}

	username := cfg.Username
	if username == "" {
		username = defaultDiscordUsername
	}
	payload := discordPayload{
		Username: username,
		Embeds: []discordEmbed{{
			Title:       fmt.Sprintf("New Reddit Post Alert (%s)", item.Subreddit),
			Description: item.Title,
			URL:         item.URL,
			Type:        "rich",
		}},
	}

	return d.deliverWithRetry(ctx, func(ctx context.Context) error {
		timeout := time.Duration(d.cfg.Discord.TimeoutSecs) * time.Second
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var status int
		err := requests.URL(cfg.WebhookURL).
			Transport(d.transport).
			BodyJSON(payload).
			AddValidator(func(res *http.Response) error {
				status = res.StatusCode
				return nil
			}).
			Fetch(ctx)
		return classify(d.Kind(), status, err)
	})
}
