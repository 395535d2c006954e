// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never a concrete *sqlite.DB or
// *postgres.DB, so tests pass in-memory fakes and the backend is chosen in
// server.New.
//
// AuthService is the entry point the auth handlers use:
//
//	AuthHandler (HTTP) → AuthService → CredentialService → UserRepository
//	                                 ↘ Federator ↘ IdentityProvider (Google)
//	                                 ↘ TokenService (JWT)
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/auth"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/repository"
)

// AuthService orchestrates the credential, federation and token
// components behind each auth endpoint.
type AuthService struct {
	users       repository.UserRepository
	credentials *CredentialService
	federator   *Federator
	tokens      *auth.TokenService
	logger      *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	credentials *CredentialService,
	federator *Federator,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		credentials: credentials,
		federator:   federator,
		tokens:      tokens,
		logger:      logger,
	}
}

// AuthResult is returned by every operation that signs a user in. It
// bundles the user record and the issued token pair so the handler can
// respond in one step.
type AuthResult struct {
	User *model.User
	auth.TokenPair
}

// Register creates a password account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	user, err := s.credentials.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.signIn(user)
}

// Login verifies a username-or-email and password.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	user, err := s.credentials.Verify(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	return s.signIn(user)
}

// FederatedLogin signs in (creating or linking as needed) the user behind a
// Google token.
func (s *AuthService) FederatedLogin(ctx context.Context, providerToken string) (*AuthResult, error) {
	user, err := s.federator.Federate(ctx, providerToken)
	if err != nil {
		return nil, err
	}
	return s.signIn(user)
}

// Refresh trades a refresh token for a new access token.
func (s *AuthService) Refresh(refreshToken string) (string, error) {
	return s.tokens.Refresh(refreshToken)
}

// Me returns the user a verified principal refers to.
func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %d: %w", userID, err)
	}
	return user, nil
}

// ChangePassword sets a new password for the caller.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, newPassword, confirmPassword string) error {
	if confirmPassword != "" && confirmPassword != newPassword {
		return apperror.ValidationFailed("confirmPassword", "passwords do not match")
	}
	return s.credentials.SetPassword(ctx, userID, newPassword)
}

func (s *AuthService) signIn(user *model.User) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens for user %d: %w", user.ID, err)
	}

	s.logger.Info("user signed in", slog.Int64("userID", user.ID))
	return &AuthResult{User: user, TokenPair: pair}, nil
}
