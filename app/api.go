package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fiffu/redditwatch/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *Service, ledger *Ledger) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, ledger)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *Service, ledger *Ledger) http.Handler {
	ctrl := &controller{log, svc, ledger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("redditwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", ctrl.listSubscriptions)
			r.Post("/", ctrl.createSubscription)
			r.Delete("/{subscription_id}", ctrl.deleteSubscription)
			r.Put("/{subscription_id}/endpoints/{endpoint_id}", ctrl.link)
			r.Delete("/{subscription_id}/endpoints/{endpoint_id}", ctrl.unlink)
		})

		r.Route("/endpoints", func(r chi.Router) {
			r.Get("/", ctrl.listEndpoints)
			r.Post("/", ctrl.createEndpoint)
			r.Put("/{endpoint_id}", ctrl.updateEndpoint)
			r.Delete("/{endpoint_id}", ctrl.deleteEndpoint)
			r.Post("/{endpoint_id}/toggle", ctrl.toggleEndpoint)
		})

		r.Get("/posts", ctrl.listNotifiedPosts)
	})

	return r
}

type controller struct {
	log    *zap.Logger
	svc    *Service
	ledger *Ledger
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Error("Request failed", "error", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := ctrl.svc.ListSubscriptions(r.Context())
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, subscriptionViews(subs))
}

func (ctrl *controller) createSubscription(w http.ResponseWriter, r *http.Request) {
	subreddit := r.FormValue("subreddit")
	if subreddit == "" {
		ctrl.reject(w, 400, errors.New("subreddit is required"))
		return
	}

	sub, err := ctrl.svc.CreateSubscription(r.Context(), subreddit)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, SubscriptionView{}.From(sub))
}

func (ctrl *controller) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := parseInt(chi.URLParam(r, "subscription_id"))
	if err := ctrl.svc.DeleteSubscription(r.Context(), id); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{"deleted": id})
}

func (ctrl *controller) listEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := ctrl.svc.ListEndpoints(r.Context())
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, endpointViews(endpoints))
}

func (ctrl *controller) createEndpoint(w http.ResponseWriter, r *http.Request) {
	kind := r.FormValue("kind")
	configJSON := r.FormValue("config")
	note := r.FormValue("note")

	ep, err := ctrl.svc.CreateEndpoint(r.Context(), kind, configJSON, note)
	if err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, EndpointView{}.From(ep))
}

func (ctrl *controller) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	id := parseInt(chi.URLParam(r, "endpoint_id"))
	if err := ctrl.svc.UpdateEndpoint(r.Context(), id, r.FormValue("config"), r.FormValue("note")); err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{"updated": id})
}

func (ctrl *controller) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id := parseInt(chi.URLParam(r, "endpoint_id"))
	if err := ctrl.svc.DeleteEndpoint(r.Context(), id); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{"deleted": id})
}

func (ctrl *controller) toggleEndpoint(w http.ResponseWriter, r *http.Request) {
	id := parseInt(chi.URLParam(r, "endpoint_id"))
	active, err := ctrl.svc.ToggleEndpoint(r.Context(), id)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{"id": id, "active": active})
}

func (ctrl *controller) link(w http.ResponseWriter, r *http.Request) {
	subID := parseInt(chi.URLParam(r, "subscription_id"))
	epID := parseInt(chi.URLParam(r, "endpoint_id"))
	if err := ctrl.svc.Link(r.Context(), subID, epID); err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{"subscription_id": subID, "endpoint_id": epID})
}

func (ctrl *controller) unlink(w http.ResponseWriter, r *http.Request) {
	subID := parseInt(chi.URLParam(r, "subscription_id"))
	epID := parseInt(chi.URLParam(r, "endpoint_id"))
	if err := ctrl.svc.Unlink(r.Context(), subID, epID); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{"subscription_id": subID, "endpoint_id": epID})
}

func (ctrl *controller) listNotifiedPosts(w http.ResponseWriter, r *http.Request) {
	limit := int(parseInt(r.URL.Query().Get("limit")))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := int(parseInt(r.URL.Query().Get("offset")))

	posts, err := ctrl.ledger.Recent(r.Context(), r.URL.Query().Get("subreddit"), limit, offset)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, notifiedPostViews(posts))
}

func parseInt(s string) uint {
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
