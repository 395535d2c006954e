package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/auth"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/service"
)

// AuthHandler serves registration, login (password and Google), token
// refresh and the caller's own account.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister      → create a password account, return user + tokens
//   - HandleLogin         → verify username-or-email + password
//   - HandleGoogle        → exchange a Google token for our tokens
//   - HandleRefresh       → mint a new access token from a refresh token
//   - HandleMe            → return the signed-in user
//   - HandleChangePassword → set a new password for the signed-in user
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// authResponse is the body of every endpoint that signs a user in.
type authResponse struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func newAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{
		User:         res.User,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	DateOfBirth     string `json:"dateOfBirth"` // MM/DD/YYYY or YYYY-MM-DD
}

// HandleRegister creates a password account.
//
// HTTP: POST /api/auth/register
// RESPONSE: 201 {"user": {...}, "accessToken": "...", "refreshToken": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		DateOfBirth:     req.DateOfBirth,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAuthResponse(res))
}

type loginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

// HandleLogin signs in with a username or email and a password.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"emailOrUsername": "alice", "password": "..."}
//
// "username" is accepted as an alias of "emailOrUsername".
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	identifier := req.EmailOrUsername
	if identifier == "" {
		identifier = req.Username
	}

	res, err := h.auth.Login(r.Context(), identifier, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

// HandleGoogle signs in with a Google ID token or access token.
//
// HTTP: POST /api/auth/google
// REQUEST BODY: {"token": "..."}
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.FederatedLogin(r.Context(), req.Token)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

// HandleRefresh trades a refresh token for a new access token. The refresh
// token itself is not rotated.
//
// HTTP: POST /api/auth/refresh-token
// REQUEST BODY: {"refreshToken": "..."}
// RESPONSE: {"accessToken": "..."}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	access, err := h.auth.Refresh(req.RefreshToken)
	if err != nil {
		h.logger.Info("refresh rejected", slog.String("reason", apperror.Code(err)))
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.auth.Me(r.Context(), principal.UserID())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleChangePassword sets a new password for the caller. It also gives a
// Google-only account a local password.
//
// HTTP: PUT /api/me/password
// REQUEST BODY: {"password": "...", "confirmPassword": "..."}
// RESPONSE: 204 No Content
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), principal.UserID(), req.Password, req.ConfirmPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// requirePrincipal fetches the caller set by Gate.RequireAuth. A missing
// principal means the route was mounted without the gate; answer 401
// rather than act anonymously.
func requirePrincipal(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperror.TokenMissing())
		return auth.Principal{}, false
	}
	return principal, true
}
