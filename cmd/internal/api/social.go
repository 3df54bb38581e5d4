package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/cmd/internal/social"
)

type followResponse struct {
	Following bool `json:"following"`
	Changed   bool `json:"changed"`
}

type followStatsResponse struct {
	social.FollowStats
	ViewerFollows bool `json:"viewerFollows"`
}

func (h *Handler) handleFollow(w http.ResponseWriter, r *http.Request) {
	created, err := h.social.Follow(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followResponse{Following: true, Changed: created})
}

func (h *Handler) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	removed, err := h.social.Unfollow(r.Context(), viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followResponse{Following: false, Changed: removed})
}

func (h *Handler) handleFollowStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	stats, err := h.social.Stats(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := followStatsResponse{FollowStats: stats}
	if v := viewer(r); v != userID {
		resp.ViewerFollows, err = h.social.IsFollowing(r.Context(), v, userID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.social.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	posts, err := h.social.HomeFeed(r.Context(), viewer(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}
