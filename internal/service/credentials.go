package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/auth"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/repository"
)

// Validation constants.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 8
	MaxNameLength     = 50
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

// RegisterInput is everything a registration form may carry. Only Username
// and Password are required.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	DateOfBirth     string // MM/DD/YYYY or YYYY-MM-DD
}

// CredentialService owns local password credentials: registration,
// verification and password changes.
type CredentialService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewCredentialService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// Register validates in, hashes the password and stores a new user.
//
// Username and email uniqueness are checked up front for a precise error;
// the store's UNIQUE constraints still catch two registrations racing for
// the same name, and the repository reports that as the same
// DuplicateIdentity kind.
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil || strings.ContainsAny(in.Email, " <>") {
			return nil, apperror.ValidationFailed("email", "invalid email format")
		}
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if in.ConfirmPassword != "" && in.ConfirmPassword != in.Password {
		return nil, apperror.ValidationFailed("confirmPassword", "passwords do not match")
	}
	dob, err := normalizeDate(in.DateOfBirth)
	if err != nil {
		return nil, err
	}
	firstName, lastName := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if len(firstName) > MaxNameLength || len(lastName) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("names must be %d characters or less", MaxNameLength))
	}

	taken, err := s.users.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("service/credentials: checking username: %w", err)
	}
	if taken {
		return nil, apperror.DuplicateIdentity("username")
	}
	if in.Email != "" {
		taken, err := s.users.EmailExists(ctx, in.Email)
		if err != nil {
			return nil, fmt.Errorf("service/credentials: checking email: %w", err)
		}
		if taken {
			return nil, apperror.DuplicateIdentity("email")
		}
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/credentials: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		DateOfBirth:  dob,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateIdentity) {
			return nil, err
		}
		s.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/credentials: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Verify resolves identifier (username or email) and checks password.
//
// ENUMERATION SAFETY:
// Unknown identifier, an account without a password (Google-only) and a
// wrong password all return the same InvalidCredentials value. The unknown
// and password-less paths still run one bcrypt comparison against a dummy
// hash so response time does not reveal which case occurred.
func (s *CredentialService) Verify(ctx context.Context, identifier, password string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/credentials: looking up %q: %w", identifier, err)
		}
		_ = s.passwords.VerifyDummy(password)
		return nil, apperror.InvalidCredentials()
	}

	if !user.HasPassword() {
		_ = s.passwords.VerifyDummy(password)
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable",
				slog.Int64("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.InvalidCredentials()
	}

	return user, nil
}

// SetPassword replaces the user's password. Issued tokens stay valid.
// A Google-only account gains a local password this way.
func (s *CredentialService) SetPassword(ctx context.Context, userID int64, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/credentials: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/credentials: updating password: %w", err)
	}

	s.logger.Info("password changed", slog.Int64("userID", userID))
	return nil
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d-%d characters", MinUsernameLength, MaxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return apperror.ValidationFailed("username",
			"username may only contain letters, digits, underscores and dots")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}

// normalizeDate accepts MM/DD/YYYY or YYYY-MM-DD and returns YYYY-MM-DD.
// Dates in the future are rejected.
func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, layout := range []string{"01/02/2006", time.DateOnly} {
		if d, err := time.Parse(layout, s); err == nil {
			if d.After(time.Now()) {
				return "", apperror.ValidationFailed("dateOfBirth", "date of birth cannot be in the future")
			}
			return d.Format(time.DateOnly), nil
		}
	}
	return "", apperror.ValidationFailed("dateOfBirth", "date of birth must be MM/DD/YYYY or YYYY-MM-DD")
}
