package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bili_push/internal/domain"
)

type accountView struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Face          string `json:"face"`
	Valid         bool   `json:"valid"`
	LastErrorCode *int   `json:"status_code,omitempty"`
}

type addAccountRequest struct {
	UID     string            `json:"uid"`
	Name    string            `json:"name"`
	Face    string            `json:"face"`
	Cookies map[string]string `json:"cookies"`
}

type subscriptionRequest struct {
	UID          string            `json:"uid"`
	Username     string            `json:"username"`
	Kind         domain.SourceKind `json:"kind"`
	SubscriberID string            `json:"subscriber_id"`
	Categories   []domain.Category `json:"categories"`
	Tags         []string          `json:"tags"`
	Enabled      *bool             `json:"enabled"`
}

type checkResponse struct {
	Subscriber string `json:"subscriber"`
	Pushed     int    `json:"pushed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	subscriber := chi.URLParam(r, "subscriber")

	pushed, err := s.checker.ManualCheck(r.Context(), subscriber)
	if err != nil {
		s.writeError(w, fmt.Errorf("manual check: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, checkResponse{Subscriber: subscriber, Pushed: pushed})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.checker.Tick(r.Context()))
}

func (s *Server) handleListAccounts(w http.ResponseWriter, _ *http.Request) {
	accounts := s.accounts.List()

	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView{
			UID:           acc.ID,
			Name:          acc.DisplayName,
			Face:          acc.AvatarURL,
			Valid:         acc.Valid,
			LastErrorCode: acc.LastErrorCode,
		})
	}

	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body", errValidation))
		return
	}
	if req.UID == "" {
		s.writeError(w, fmt.Errorf("%w: uid is required", errValidation))
		return
	}
	if len(req.Cookies) == 0 {
		s.writeError(w, fmt.Errorf("%w: cookies are required", errValidation))
		return
	}

	acc := domain.Account{
		ID:          req.UID,
		DisplayName: req.Name,
		AvatarURL:   req.Face,
		Cookies:     req.Cookies,
		Valid:       true,
	}
	if err := s.accounts.Add(r.Context(), acc); err != nil {
		s.writeError(w, fmt.Errorf("add account: %w", err))
		return
	}

	s.writeJSON(w, http.StatusCreated, accountView{
		UID:   acc.ID,
		Name:  acc.DisplayName,
		Face:  acc.AvatarURL,
		Valid: acc.Valid,
	})
}

// handleListSubscriptions lists subscriptions, optionally narrowed to the
// targets named by ?target= (repeated or comma separated) and to one
// ?subscriber=.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	subscriberID := query.Get("subscriber")
	targets := splitTargets(query["target"])

	var (
		subs []domain.Subscription
		err  error
	)
	if len(targets) > 0 {
		subs, err = s.registry.ListByTargets(r.Context(), targets)
		subs = filterSubscriber(subs, subscriberID)
	} else {
		subs, err = s.registry.List(r.Context(), subscriberID)
	}
	if err != nil {
		s.writeError(w, fmt.Errorf("list subscriptions: %w", err))
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}

	s.writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleAddSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body", errValidation))
		return
	}
	if req.UID == "" || req.SubscriberID == "" {
		s.writeError(w, fmt.Errorf("%w: uid and subscriber_id are required", errValidation))
		return
	}
	if !req.Kind.Valid() {
		s.writeError(w, fmt.Errorf("%w: unknown kind %q", errValidation, req.Kind))
		return
	}

	sub := domain.Subscription{
		UID:          req.UID,
		Username:     req.Username,
		Kind:         req.Kind,
		SubscriberID: req.SubscriberID,
		Categories:   req.Categories,
		Tags:         req.Tags,
		Enabled:      req.Enabled == nil || *req.Enabled,
	}
	if err := s.registry.Add(r.Context(), sub); err != nil {
		s.writeError(w, fmt.Errorf("add subscription: %w", err))
		return
	}

	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleRemoveSubscription(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	kind := domain.SourceKind(chi.URLParam(r, "kind"))
	subscriber := chi.URLParam(r, "subscriber")

	if !kind.Valid() {
		s.writeError(w, fmt.Errorf("%w: unknown kind %q", errValidation, kind))
		return
	}

	removed, err := s.registry.Remove(r.Context(), uid, kind, subscriber)
	if err != nil {
		s.writeError(w, fmt.Errorf("remove subscription: %w", err))
		return
	}
	if !removed {
		s.writeError(w, fmt.Errorf("%w: subscription %s/%s/%s", errNotFound, kind, uid, subscriber))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func splitTargets(values []string) []string {
	var out []string
	for _, v := range values {
		for _, uid := range strings.Split(v, ",") {
			if uid = strings.TrimSpace(uid); uid != "" {
				out = append(out, uid)
			}
		}
	}
	return out
}

func filterSubscriber(subs []domain.Subscription, subscriberID string) []domain.Subscription {
	if subscriberID == "" {
		return subs
	}
	out := subs[:0]
	for _, sub := range subs {
		if sub.SubscriberID == subscriberID {
			out = append(out, sub)
		}
	}
	return out
}
