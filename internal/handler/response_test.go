package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/feed-core/internal/apperror"
)

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", apperror.ValidationFailed("username", "too short"), http.StatusBadRequest, "validation_error"},
		{"self relation", apperror.SelfRelation("follow"), http.StatusBadRequest, "self_relation_not_allowed"},
		{"bad credentials", apperror.InvalidCredentials(), http.StatusUnauthorized, "invalid_credentials"},
		{"expired", apperror.TokenExpired(), http.StatusUnauthorized, "token_expired"},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden, "forbidden"},
		{"wrapped not found", fmt.Errorf("service/posts: %w", apperror.NotFound("post", "7")), http.StatusNotFound, "not_found"},
		{"duplicate", apperror.DuplicateIdentity("email"), http.StatusConflict, "duplicate_identity"},
		{"provider", apperror.ExternalProvider("google is down", errors.New("dial tcp")), http.StatusBadGateway, "external_provider_error"},
		{"unknown", errors.New("sqlite: disk I/O error"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, logger, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.NotContains(t, body.Message, "sqlite")
			assert.NotContains(t, body.Message, "dial tcp")
		})
	}
}

func TestWriteError_RelationConflictIsRetryable(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, slog.New(slog.NewTextHandler(io.Discard, nil)), apperror.RelationConflict(errors.New("database is locked")))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("Retry-After"))
}
