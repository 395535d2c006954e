package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
)

func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	err := db.pool.QueryRow(ctx,
		`INSERT INTO posts (user_id, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		post.UserID, post.Content, post.CreatedAt, post.UpdatedAt,
	).Scan(&post.ID)
	if err != nil {
		return fmt.Errorf("postgres: creating post: %w", err)
	}
	return nil
}

func (db *DB) GetPostByID(ctx context.Context, id int64) (*model.Post, error) {
	var post model.Post
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, content, created_at, updated_at FROM posts WHERE id = $1`,
		id,
	).Scan(&post.ID, &post.UserID, &post.Content, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("post", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("postgres: getting post %d: %w", id, err)
	}
	return &post, nil
}

// DeletePost removes the post and the likes/reposts pointing at it.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: deleting post %d: begin: %w", id, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting post %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("post", strconv.FormatInt(id, 10))
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM relations WHERE object_id = $1 AND kind IN ('like', 'repost')`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting relations of post %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: deleting post %d: commit: %w", id, err)
	}
	return nil
}
