// Package repository declares the storage contracts used by the service layer.
//
// Two implementations exist: repository/sqlite (default, embedded) and
// repository/postgres (pgx). Both translate driver errors into apperror kinds:
// a missing row becomes apperror.ErrNotFound, a unique violation on users
// becomes apperror.ErrDuplicateIdentity (Field names the column), and a lost
// race inside a relation toggle becomes apperror.ErrRelationConflict.
package repository

import (
	"context"

	"github.com/sakif/feed-core/internal/model"
)

type UserRepository interface {
	// CreateUser inserts user and fills in ID, CreatedAt and UpdatedAt.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
	// GetUserByIdentifier matches identifier against username OR email.
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// LinkExternalID sets external_id (and the provider-supplied names) on a
	// row whose external_id is NULL or already equal to externalID. It returns
	// apperror.ErrDuplicateIdentity if the row is bound to another identity.
	LinkExternalID(ctx context.Context, userID int64, externalID, firstName, lastName string) error
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
}

type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPostByID(ctx context.Context, id int64) (*model.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

type RelationRepository interface {
	// ToggleRelation flips the (subject, object, kind) row inside one
	// transaction and returns whether the row exists afterwards.
	ToggleRelation(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error)
	RelationExists(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error)
	// ObjectExists reports whether objectID names an existing post (like,
	// repost) or user (follow).
	ObjectExists(ctx context.Context, objectID int64, kind model.RelationKind) (bool, error)
	CountUserRelations(ctx context.Context, userID int64) (model.RelationCounts, error)
	CountPostRelations(ctx context.Context, postID int64) (model.PostCounts, error)
}

// Store is everything a backend provides. server.New depends on this so the
// backend can be chosen from configuration.
type Store interface {
	UserRepository
	PostRepository
	RelationRepository
	Ping(ctx context.Context) error
	Close() error
}
