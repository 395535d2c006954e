package handler

// RESPONSE HELPERS:
// These functions standardise how we read JSON requests and send JSON
// responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "post not found with id 42"}
//
// "error" is the machine-readable kind from apperror.Code; clients branch
// on it. "message" is for humans and never carries driver or provider text.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/feed-core/internal/apperror"
)

// maxBodyBytes caps request bodies. Every request in this API is a small
// JSON object.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error kind (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE writing the body. Once Encode
// writes, the headers are on the wire and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error kind to its HTTP status.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. A CLI or gRPC
// front end would map the same kinds differently.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, apperror.ErrSelfRelation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrInvalidCredentials),
		errors.Is(err, apperror.ErrTokenMissing),
		errors.Is(err, apperror.ErrTokenExpired),
		errors.Is(err, apperror.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrDuplicateIdentity),
		errors.Is(err, apperror.ErrRelationConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrExternalProvider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// errors.As() walks the chain the same way errors.Is() does, so a service
// error wrapped as fmt.Errorf("service/posts: %w", appErr) still yields the
// AppError and its client-safe Message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Unknown error. NEVER expose internal details to the client: the
		// raw message might contain SQL or file paths.
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error", err.Error()))
	}
	if errors.Is(err, apperror.ErrRelationConflict) {
		// The losing toggle can be re-issued straight away.
		w.Header().Set("Retry-After", "0")
	}

	writeJSON(w, status, ErrorResponse{
		Error:   apperror.Code(err),
		Message: appErr.Message,
	})
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// int64Param parses a numeric URL parameter such as {postID}.
func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "invalid "+name)
	}
	return id, nil
}
