package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
)

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ToggleRelation flips the (subject, object, kind) row and reports whether it
// exists afterwards.
//
// HOW THE TOGGLE STAYS ATOMIC:
// The DSN sets _txlock=immediate, so BeginTx runs BEGIN IMMEDIATE and takes
// the database write lock before the first statement. A second toggle on the
// same row waits (busy_timeout) until this one commits and then sees its
// result. Inside the transaction the delete goes first: one deleted row means
// the relation was present and is now gone; zero means it was absent, so we
// insert. The composite primary key backs this up if anything slips through.
//
// A writer that cannot get the lock within busy_timeout, or a unique
// violation on insert, is reported as apperror.RelationConflict. Every other
// failure rolls the transaction back and surfaces as a storage error.
func (db *DB) ToggleRelation(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, toggleError("begin", err)
	}
	defer tx.Rollback()

	if err := requireObject(ctx, tx, objectID, kind); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM relations WHERE subject_id = ? AND object_id = ? AND kind = ?`,
		subjectID, objectID, string(kind),
	)
	if err != nil {
		return false, toggleError("delete", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, toggleError("delete", err)
	}

	active := deleted == 0
	if active {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO relations (subject_id, object_id, kind, created_at)
			 VALUES (?, ?, ?, ?)`,
			subjectID, objectID, string(kind), time.Now().UTC(),
		)
		if err != nil {
			if isCheckViolation(err) && kind == model.RelationFollow {
				return false, apperror.SelfRelation(string(kind))
			}
			return false, toggleError("insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, toggleError("commit", err)
	}
	return active, nil
}

// toggleError maps lock contention and key collisions to the retryable
// conflict kind and wraps everything else.
func toggleError(step string, err error) error {
	if _, ok := uniqueViolation(err); ok || isBusy(err) {
		return apperror.RelationConflict(err)
	}
	return fmt.Errorf("sqlite: toggling relation: %s: %w", step, err)
}

func (db *DB) RelationExists(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	return db.exists(ctx,
		`SELECT EXISTS(SELECT 1 FROM relations WHERE subject_id = ? AND object_id = ? AND kind = ?)`,
		subjectID, objectID, string(kind),
	)
}

func (db *DB) ObjectExists(ctx context.Context, objectID int64, kind model.RelationKind) (bool, error) {
	return objectExists(ctx, db.conn, objectID, kind)
}

func objectExists(ctx context.Context, q queryRower, objectID int64, kind model.RelationKind) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`
	if kind.TargetsUser() {
		query = `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`
	}

	var found bool
	if err := q.QueryRowContext(ctx, query, objectID).Scan(&found); err != nil {
		return false, fmt.Errorf("sqlite: checking %s object %d: %w", kind, objectID, err)
	}
	return found, nil
}

func requireObject(ctx context.Context, q queryRower, objectID int64, kind model.RelationKind) error {
	found, err := objectExists(ctx, q, objectID, kind)
	if err != nil {
		if isBusy(err) {
			return apperror.RelationConflict(err)
		}
		return err
	}
	if !found {
		return apperror.NotFound(objectResource(kind), strconv.FormatInt(objectID, 10))
	}
	return nil
}

func objectResource(kind model.RelationKind) string {
	if kind.TargetsUser() {
		return "user"
	}
	return "post"
}

// CountUserRelations returns follower/following counts plus the likes and
// reposts the user has given, in one pass over the table.
func (db *DB) CountUserRelations(ctx context.Context, userID int64) (model.RelationCounts, error) {
	var c model.RelationCounts
	err := db.conn.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'follow' AND object_id  = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'follow' AND subject_id = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'like'   AND subject_id = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'repost' AND subject_id = ? THEN 1 ELSE 0 END), 0)
		 FROM relations
		 WHERE subject_id = ? OR (object_id = ? AND kind = 'follow')`,
		userID, userID, userID, userID, userID, userID,
	).Scan(&c.Followers, &c.Following, &c.Likes, &c.Reposts)
	if err != nil {
		return model.RelationCounts{}, fmt.Errorf("sqlite: counting relations of user %d: %w", userID, err)
	}
	return c, nil
}

func (db *DB) CountPostRelations(ctx context.Context, postID int64) (model.PostCounts, error) {
	var c model.PostCounts
	err := db.conn.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'like'   THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'repost' THEN 1 ELSE 0 END), 0)
		 FROM relations
		 WHERE object_id = ? AND kind IN ('like', 'repost')`,
		postID,
	).Scan(&c.Likes, &c.Reposts)
	if err != nil {
		return model.PostCounts{}, fmt.Errorf("sqlite: counting relations of post %d: %w", postID, err)
	}
	return c, nil
}
