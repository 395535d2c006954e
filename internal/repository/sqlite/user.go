package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
)

const userColumns = `id, username, email, password_hash, external_id,
	first_name, last_name, date_of_birth, bio, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one users row. The optional columns come back as NULL and
// are mapped to "" on the model.
func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                            model.User
		email, hash, externalID, dob sql.NullString
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
	u.Email = email.String
	u.PasswordHash = hash.String
	u.ExternalID = externalID.String
	u.DateOfBirth = dob.String
	return &u, nil
}

// CreateUser inserts user and fills in the generated ID and timestamps.
//
// A UNIQUE violation is translated into apperror.DuplicateIdentity with Field
// set to the offending column ("username", "email" or "external_id"). The
// service layer pre-checks username and email, so this path is normally only
// reached when two registrations race.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, external_id,
			first_name, last_name, date_of_birth, bio, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		nullString(strings.ToLower(user.Email)),
		nullString(user.PasswordHash),
		nullString(user.ExternalID),
		user.FirstName,
		user.LastName,
		nullString(user.DateOfBirth),
		user.Bio,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			dup := apperror.DuplicateIdentity(col)
			dup.Cause = err
			return dup
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of user %q: %w", user.Username, err)
	}
	user.ID = id
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return db.getUser(ctx, "id", strconv.FormatInt(id, 10),
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, "username", username,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
}

func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return db.getUser(ctx, "external id", externalID,
		`SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
}

// GetUserByIdentifier matches a login identifier against username or email.
// Usernames cannot contain '@', so at most one row can match each column; a
// username match wins if both somehow do.
func (db *DB) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	return db.getUser(ctx, "identifier", identifier,
		`SELECT `+userColumns+` FROM users
		 WHERE username = ? OR email = ?
		 ORDER BY username = ? DESC
		 LIMIT 1`,
		identifier, strings.ToLower(identifier), identifier)
}

func (db *DB) getUser(ctx context.Context, by, value, query string, args ...any) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", by, err)
	}
	return u, nil
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	return db.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username)
}

func (db *DB) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, strings.ToLower(email))
}

func (db *DB) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("sqlite: exists query: %w", err)
	}
	return found, nil
}

// LinkExternalID binds an external identity to an existing account.
//
// The UPDATE is conditional on external_id being NULL (or already equal), so
// linking is idempotent and never overwrites a different identity. Provider
// names only replace the stored ones when non-empty.
func (db *DB) LinkExternalID(ctx context.Context, userID int64, externalID, firstName, lastName string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			external_id = ?,
			first_name  = CASE WHEN ? <> '' THEN ? ELSE first_name END,
			last_name   = CASE WHEN ? <> '' THEN ? ELSE last_name END,
			updated_at  = ?
		 WHERE id = ? AND (external_id IS NULL OR external_id = ?)`,
		externalID,
		firstName, firstName,
		lastName, lastName,
		time.Now().UTC(),
		userID,
		externalID,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			dup := apperror.DuplicateIdentity(col)
			dup.Cause = err
			return dup
		}
		return fmt.Errorf("sqlite: linking external id to user %d: %w", userID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: linking external id to user %d: %w", userID, err)
	}
	if n == 0 {
		// Either the user is gone or it is bound to another identity.
		if _, err := db.GetUserByID(ctx, userID); err != nil {
			return err
		}
		return apperror.DuplicateIdentity("email")
	}
	return nil
}

func (db *DB) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password of user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating password of user %d: %w", userID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return nil
}
