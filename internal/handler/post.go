package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/feed-core/internal/auth"
	"github.com/sakif/feed-core/internal/service"
)

// PostHandler manages the minimal post surface that likes and reposts
// point at.
type PostHandler struct {
	posts  *service.PostService
	logger *slog.Logger
}

func NewPostHandler(posts *service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

// HandleCreate saves a new post for the caller.
//
// HTTP: POST /api/posts
// REQUEST BODY: {"content": "hello"}
// RESPONSE: 201 with the stored post
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	post, err := h.posts.Create(r.Context(), principal.UserID(), req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

// HandleGet returns a post with its like/repost counts.
//
// HTTP: GET /api/posts/{postID}
// Auth: Optional. A signed-in caller also gets "liked" and "reposted".
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	postID, err := int64Param(r, "postID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var viewerID int64
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		viewerID = principal.UserID()
	}

	view, err := h.posts.Get(r.Context(), postID, viewerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// HandleDelete removes one of the caller's posts.
//
// HTTP: DELETE /api/posts/{postID}
// RESPONSE: 204 No Content
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	postID, err := int64Param(r, "postID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.posts.Delete(r.Context(), principal.UserID(), postID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
