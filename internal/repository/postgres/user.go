package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
)

const userColumns = `id, username, email, password_hash, external_id,
	first_name, last_name, date_of_birth, bio, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u                            model.User
		email, hash, externalID, dob *string
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&email,
		&hash,
		&externalID,
		&u.FirstName,
		&u.LastName,
		&dob,
		&u.Bio,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Email = deref(email)
	u.PasswordHash = deref(hash)
	u.ExternalID = deref(externalID)
	u.DateOfBirth = deref(dob)
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, external_id,
			first_name, last_name, date_of_birth, bio, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		user.Username,
		nullable(strings.ToLower(user.Email)),
		nullable(user.PasswordHash),
		nullable(user.ExternalID),
		user.FirstName,
		user.LastName,
		nullable(user.DateOfBirth),
		user.Bio,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			dup := apperror.DuplicateIdentity(col)
			dup.Cause = err
			return dup
		}
		return fmt.Errorf("postgres: inserting user %q: %w", user.Username, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return db.getUser(ctx, "id", strconv.FormatInt(id, 10),
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, "username", username,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return db.getUser(ctx, "external id", externalID,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

// GetUserByIdentifier matches username or email, preferring a username hit.
func (db *DB) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return db.getUser(ctx, "identifier", identifier,
		`SELECT `+userColumns+` FROM users
		 WHERE username = $1 OR email = $2
		 ORDER BY (username = $1) DESC
		 LIMIT 1`,
		identifier, strings.ToLower(identifier))
}

func (db *DB) getUser(ctx context.Context, by, value, query string, args ...any) (*model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", by, err)
	}
	return u, nil
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	return db.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username)
}

func (db *DB) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, strings.ToLower(email))
}

func (db *DB) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := db.pool.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("postgres: exists query: %w", err)
	}
	return found, nil
}

// LinkExternalID sets external_id only where it is NULL or already equal.
func (db *DB) LinkExternalID(ctx context.Context, userID int64, externalID, firstName, lastName string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET
			external_id = $1,
			first_name  = COALESCE(NULLIF($2, ''), first_name),
			last_name   = COALESCE(NULLIF($3, ''), last_name),
			updated_at  = $4
		 WHERE id = $5 AND (external_id IS NULL OR external_id = $1)`,
		externalID, firstName, lastName, time.Now().UTC(), userID,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			dup := apperror.DuplicateIdentity(col)
			dup.Cause = err
			return dup
		}
		return fmt.Errorf("postgres: linking external id to user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := db.GetUserByID(ctx, userID); err != nil {
			return err
		}
		return apperror.DuplicateIdentity("email")
	}
	return nil
}

func (db *DB) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating password of user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return nil
}
