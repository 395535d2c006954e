package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
)

// ToggleRelation flips the (subject, object, kind) row at READ COMMITTED.
//
// DELETE takes a row lock on an existing relation, so a concurrent toggle of
// the same row blocks until this transaction ends and then sees zero rows.
// When the row is absent both transactions reach the INSERT; ON CONFLICT DO
// NOTHING makes the loser insert nothing, which is reported as
// apperror.RelationConflict rather than silently returning a stale state.
//
// The target row is read FOR SHARE first. A DeletePost running at the same
// time either waits for this transaction (and then removes the new row along
// with the post) or commits first, in which case the locking read finds
// nothing and the toggle fails NotFound. No relation outlives its post.
func (db *DB) ToggleRelation(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("postgres: toggling relation: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockObject(ctx, tx, objectID, kind); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM relations WHERE subject_id = $1 AND object_id = $2 AND kind = $3`,
		subjectID, objectID, string(kind),
	)
	if err != nil {
		return false, toggleError("delete", err)
	}

	active := tag.RowsAffected() == 0
	if active {
		tag, err = tx.Exec(ctx,
			`INSERT INTO relations (subject_id, object_id, kind, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT DO NOTHING`,
			subjectID, objectID, string(kind), time.Now().UTC(),
		)
		if err != nil {
			if isCheckViolation(err) && kind == model.RelationFollow {
				return false, apperror.SelfRelation(string(kind))
			}
			return false, toggleError("insert", err)
		}
		if tag.RowsAffected() == 0 {
			return false, apperror.RelationConflict(nil)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, toggleError("commit", err)
	}
	return active, nil
}

func toggleError(step string, err error) error {
	if isRetryable(err) {
		return apperror.RelationConflict(err)
	}
	return fmt.Errorf("postgres: toggling relation: %s: %w", step, err)
}

func (db *DB) RelationExists(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	return db.exists(ctx,
		`SELECT EXISTS(SELECT 1 FROM relations WHERE subject_id = $1 AND object_id = $2 AND kind = $3)`,
		subjectID, objectID, string(kind),
	)
}

func (db *DB) ObjectExists(ctx context.Context, objectID int64, kind model.RelationKind) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`
	if kind.TargetsUser() {
		query = `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	}

	var found bool
	if err := db.pool.QueryRow(ctx, query, objectID).Scan(&found); err != nil {
		return false, fmt.Errorf("postgres: checking %s object %d: %w", kind, objectID, err)
	}
	return found, nil
}

// lockObject takes a share lock on the post (like, repost) or user
// (follow) the relation points at, holding it until tx ends.
func lockObject(ctx context.Context, tx pgx.Tx, objectID int64, kind model.RelationKind) error {
	query := `SELECT id FROM posts WHERE id = $1 FOR SHARE`
	resource := "post"
	if kind.TargetsUser() {
		query = `SELECT id FROM users WHERE id = $1 FOR SHARE`
		resource = "user"
	}

	var id int64
	err := tx.QueryRow(ctx, query, objectID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound(resource, strconv.FormatInt(objectID, 10))
	}
	if err != nil {
		if isRetryable(err) {
			return apperror.RelationConflict(err)
		}
		return fmt.Errorf("postgres: locking %s object %d: %w", kind, objectID, err)
	}
	return nil
}

func (db *DB) CountUserRelations(ctx context.Context, userID int64) (model.RelationCounts, error) {
	var c model.RelationCounts
	err := db.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE kind = 'follow' AND object_id  = $1),
			COUNT(*) FILTER (WHERE kind = 'follow' AND subject_id = $1),
			COUNT(*) FILTER (WHERE kind = 'like'   AND subject_id = $1),
			COUNT(*) FILTER (WHERE kind = 'repost' AND subject_id = $1)
		 FROM relations
		 WHERE subject_id = $1 OR (object_id = $1 AND kind = 'follow')`,
		userID,
	).Scan(&c.Followers, &c.Following, &c.Likes, &c.Reposts)
	if err != nil {
		return model.RelationCounts{}, fmt.Errorf("postgres: counting relations of user %d: %w", userID, err)
	}
	return c, nil
}

func (db *DB) CountPostRelations(ctx context.Context, postID int64) (model.PostCounts, error) {
	var c model.PostCounts
	err := db.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE kind = 'like'),
			COUNT(*) FILTER (WHERE kind = 'repost')
		 FROM relations
		 WHERE object_id = $1 AND kind IN ('like', 'repost')`,
		postID,
	).Scan(&c.Likes, &c.Reposts)
	if err != nil {
		return model.PostCounts{}, fmt.Errorf("postgres: counting relations of post %d: %w", postID, err)
	}
	return c, nil
}
