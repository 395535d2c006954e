package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
)

// CreatePost inserts a new post and fills in its ID and timestamps.
//
// PARAMETERIZED QUERIES (the ? placeholders):
// NEVER build SQL strings with fmt.Sprintf or string concatenation. The
// driver binds the values, so post content cannot change the statement.
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (user_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		post.UserID,
		post.Content,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading post id: %w", err)
	}
	post.ID = id
	return nil
}

// GetPostByID retrieves a single post by its ID.
// sql.ErrNoRows is translated into apperror.NotFound so the handler can 404.
func (db *DB) GetPostByID(ctx context.Context, id int64) (*model.Post, error) {
	var post model.Post

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, content, created_at, updated_at
		 FROM posts
		 WHERE id = ?`,
		id,
	).Scan(
		&post.ID,
		&post.UserID,
		&post.Content,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}

	return &post, nil
}

// DeletePost removes a post together with the likes and reposts pointing at
// it. relations.object_id has no foreign key (it refers to posts or users
// depending on kind), so the cleanup happens here in the same transaction.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: begin: %w", id, err)
	}
	// Rollback after Commit is a no-op, so deferring it covers every early return.
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}

	// RowsAffected tells us if anything was actually deleted.
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("post", strconv.FormatInt(id, 10))
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM relations WHERE object_id = ? AND kind IN (?, ?)`,
		id, string(model.RelationLike), string(model.RelationRepost),
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting relations of post %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: deleting post %d: commit: %w", id, err)
	}
	return nil
}
