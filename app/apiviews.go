package app

import (
	"encoding/json"
	"time"
)

type SubscriptionView struct {
	ID        uint   `json:"id"`
	Subreddit string `json:"subreddit"`
	CreatedAt string `json:"created_at"`
}

func (view SubscriptionView) From(entity *Subscription) SubscriptionView {
	return SubscriptionView{
		ID:        entity.ID,
		Subreddit: entity.Subreddit,
		CreatedAt: isoformat(entity.CreatedAt),
	}
}

type EndpointView struct {
	ID     uint            `json:"id"`
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
	Active bool            `json:"active"`
	Note   string          `json:"note,omitempty"`
}

func (view EndpointView) From(entity *Endpoint) EndpointView {
	return EndpointView{
		ID:     entity.ID,
		Kind:   entity.Kind,
		Config: json.RawMessage(entity.Config),
		Active: entity.Active,
		Note:   entity.Note,
	}
}

type NotifiedPostView struct {
	ID          uint   `json:"id"`
	Subreddit   string `json:"subreddit"`
	PostID      string `json:"post_id"`
	FirstSeenAt string `json:"first_seen_at"`
}

func (view NotifiedPostView) From(entity *NotifiedPost) NotifiedPostView {
	return NotifiedPostView{
		ID:          entity.ID,
		Subreddit:   entity.Subreddit,
		PostID:      entity.PostID,
		FirstSeenAt: isoformat(entity.FirstSeenAt),
	}
}

func subscriptionViews(entities []Subscription) []SubscriptionView {
	out := make([]SubscriptionView, len(entities))
	for i := range entities {
		out[i] = SubscriptionView{}.From(&entities[i])
	}
	return out
}

func endpointViews(entities Endpoints) []EndpointView {
	out := make([]EndpointView, len(entities))
	for i := range entities {
		out[i] = EndpointView{}.From(&entities[i])
	}
	return out
}

func notifiedPostViews(entities []NotifiedPost) []NotifiedPostView {
	out := make([]NotifiedPostView, len(entities))
	for i := range entities {
		out[i] = NotifiedPostView{}.From(&entities[i])
	}
	return out
}

func isoformat(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
