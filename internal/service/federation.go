package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/auth"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/repository"
)

// maxUsernameCandidates bounds the base, base2, base3, ... search.
const maxUsernameCandidates = 100

// IdentityProvider introspects a token issued by an external provider.
// *auth.GoogleProvider is the production implementation.
type IdentityProvider interface {
	Introspect(ctx context.Context, providerToken string) (*auth.ExternalIdentity, error)
}

// Federator maps an external identity onto exactly one local user.
type Federator struct {
	users    repository.UserRepository
	provider IdentityProvider
	logger   *slog.Logger
}

func NewFederator(users repository.UserRepository, provider IdentityProvider, logger *slog.Logger) *Federator {
	return &Federator{
		users:    users,
		provider: provider,
		logger:   logger,
	}
}

// Federate introspects providerToken and returns the local user bound to
// that identity, creating or linking one if needed.
//
// RESOLUTION ORDER:
//  1. a user already carrying this external id  → returned as is
//  2. a user with the same (verified) email       → external id linked to it
//  3. nobody                                      → new user created
//
// A user found by email that is already bound to a DIFFERENT external id is
// a DuplicateIdentity: one email cannot front two Google accounts.
//
// Two first-time logins for the same identity can race to step 3. The
// loser's insert hits the UNIQUE constraint on external_id (or email) and
// resolves again, finding the winner's row, so both calls return the same
// user id.
func (f *Federator) Federate(ctx context.Context, providerToken string) (*model.User, error) {
	id, err := f.provider.Introspect(ctx, providerToken)
	if err != nil {
		return nil, err
	}
	if id.Email == "" || !id.EmailVerified {
		return nil, apperror.ExternalProvider("google account email is not verified", nil)
	}

	user, err := f.resolve(ctx, id)
	if err == nil || !errors.Is(err, apperror.ErrNotFound) {
		return user, err
	}

	user, err = f.create(ctx, id)
	if err != nil {
		var dup *apperror.AppError
		if errors.As(err, &dup) && dup.Field != "username" && errors.Is(err, apperror.ErrDuplicateIdentity) {
			// Lost a race with a concurrent federation or registration.
			return f.resolve(ctx, id)
		}
		return nil, err
	}
	return user, nil
}

// resolve runs steps 1 and 2. It returns apperror.ErrNotFound when neither
// matches.
func (f *Federator) resolve(ctx context.Context, id *auth.ExternalIdentity) (*model.User, error) {
	user, err := f.users.GetUserByExternalID(ctx, id.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/federation: looking up external id: %w", err)
	}

	user, err = f.users.GetUserByEmail(ctx, id.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/federation: looking up email: %w", err)
	}

	if user.ExternalID != "" && user.ExternalID != id.Subject {
		return nil, apperror.DuplicateIdentity("email")
	}

	firstName, lastName := truncate(id.GivenName, MaxNameLength), truncate(id.FamilyName, MaxNameLength)
	if err := f.users.LinkExternalID(ctx, user.ID, id.Subject, firstName, lastName); err != nil {
		if errors.Is(err, apperror.ErrDuplicateIdentity) {
			// The identity got linked elsewhere meanwhile; whoever holds it wins.
			if linked, lookupErr := f.users.GetUserByExternalID(ctx, id.Subject); lookupErr == nil {
				return linked, nil
			}
			return nil, err
		}
		return nil, fmt.Errorf("service/federation: linking user %d: %w", user.ID, err)
	}

	f.logger.Info("external identity linked",
		slog.Int64("userID", user.ID),
		slog.String("provider", "google"),
	)

	user.ExternalID = id.Subject
	if firstName != "" {
		user.FirstName = firstName
	}
	if lastName != "" {
		user.LastName = lastName
	}
	return user, nil
}

// create inserts a new federated user under the first free username
// candidate derived from the email's local part.
func (f *Federator) create(ctx context.Context, id *auth.ExternalIdentity) (*model.User, error) {
	base := usernameBase(id.Email)

	for n := 1; n <= maxUsernameCandidates; n++ {
		candidate := usernameCandidate(base, n)

		taken, err := f.users.UsernameExists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("service/federation: checking username: %w", err)
		}
		if taken {
			continue
		}

		user := &model.User{
			Username:   candidate,
			Email:      id.Email,
			ExternalID: id.Subject,
			FirstName:  truncate(id.GivenName, MaxNameLength),
			LastName:   truncate(id.FamilyName, MaxNameLength),
		}
		err = f.users.CreateUser(ctx, user)
		if err == nil {
			f.logger.Info("user federated",
				slog.Int64("userID", user.ID),
				slog.String("username", user.Username),
				slog.String("provider", "google"),
			)
			return user, nil
		}

		var dup *apperror.AppError
		if errors.As(err, &dup) && errors.Is(err, apperror.ErrDuplicateIdentity) && dup.Field == "username" {
			// Someone registered this candidate between the check and the insert.
			continue
		}
		if errors.Is(err, apperror.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("service/federation: creating user: %w", err)
	}

	return nil, fmt.Errorf("service/federation: no free username for base %q", base)
}

// usernameBase derives a valid username stem from an email address:
// the local part, lowercased, with disallowed characters dropped and room
// left for a numeric suffix.
func usernameBase(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")

	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	base := b.String()

	if len(base) > MaxUsernameLength-3 {
		base = base[:MaxUsernameLength-3]
	}
	for len(base) < MinUsernameLength {
		base += "_"
	}
	return base
}

// usernameCandidate returns base for n == 1 and base+n afterwards.
func usernameCandidate(base string, n int) string {
	if n == 1 {
		return base
	}
	return base + strconv.Itoa(n)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
