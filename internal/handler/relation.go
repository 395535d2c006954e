package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/service"
)

// RelationHandler exposes the toggle engine: likes and reposts on posts,
// follows between users, and the counts derived from them.
//
// Every toggle answers with the state AFTER the request, e.g.
// {"liked": true}. Clients render that value rather than flipping their
// own copy, so two tabs cannot drift apart.
type RelationHandler struct {
	engine *service.ToggleEngine
	logger *slog.Logger
}

func NewRelationHandler(engine *service.ToggleEngine, logger *slog.Logger) *RelationHandler {
	return &RelationHandler{engine: engine, logger: logger}
}

// stateKey is the response field each kind reports its state under.
func stateKey(kind model.RelationKind) string {
	switch kind {
	case model.RelationLike:
		return "liked"
	case model.RelationRepost:
		return "reposted"
	}
	return "isFollowing"
}

// HandleTogglePost returns a handler that toggles kind on {postID}.
//
// HTTP: POST /api/posts/{postID}/like    → {"liked": bool}
//
//	POST /api/posts/{postID}/repost  → {"reposted": bool}
func (h *RelationHandler) HandleTogglePost(kind model.RelationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, h.logger)
		if !ok {
			return
		}
		postID, err := int64Param(r, "postID")
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		active, err := h.engine.Toggle(r.Context(), principal.UserID(), postID, kind)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{stateKey(kind): active})
	}
}

// HandlePostStatus returns a handler reporting whether the caller has kind
// on {postID}.
//
// HTTP: GET /api/posts/{postID}/like/status
//
//	GET /api/posts/{postID}/repost/status
func (h *RelationHandler) HandlePostStatus(kind model.RelationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r, h.logger)
		if !ok {
			return
		}
		postID, err := int64Param(r, "postID")
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		active, err := h.engine.Status(r.Context(), principal.UserID(), postID, kind)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{stateKey(kind): active})
	}
}

// HandleFollow follows or unfollows {username}.
//
// HTTP: POST /api/users/{username}/follow → {"isFollowing": bool}
func (h *RelationHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	following, err := h.engine.ToggleFollow(r.Context(), principal.UserID(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"isFollowing": following})
}

// HandleFollowStatus reports whether the caller follows {username}.
//
// HTTP: GET /api/users/{username}/follow-status → {"isFollowing": bool}
func (h *RelationHandler) HandleFollowStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	following, err := h.engine.FollowStatus(r.Context(), principal.UserID(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"isFollowing": following})
}

// HandleStats returns follower, following, like and repost counts for
// {username}.
//
// HTTP: GET /api/users/{username}/stats
func (h *RelationHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.engine.CountsByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}
