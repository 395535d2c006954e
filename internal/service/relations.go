package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/repository"
)

// ToggleEngine flips likes, reposts and follows.
//
// Each Toggle is a single repository transaction: delete the row if present,
// insert it otherwise, and report the new state. Validation that needs no
// storage (kind, self-follow) happens before the transaction starts.
//
// The engine does not retry. A RelationConflict means a concurrent toggle
// of the same row won; the client re-issues the request against the new
// state.
type ToggleEngine struct {
	users     repository.UserRepository
	relations repository.RelationRepository
	logger    *slog.Logger
}

func NewToggleEngine(users repository.UserRepository, relations repository.RelationRepository, logger *slog.Logger) *ToggleEngine {
	return &ToggleEngine{
		users:     users,
		relations: relations,
		logger:    logger,
	}
}

// Toggle flips (subjectID, objectID, kind) and returns whether the relation
// exists afterwards.
func (e *ToggleEngine) Toggle(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	if err := checkRelation(subjectID, objectID, kind); err != nil {
		return false, err
	}

	active, err := e.relations.ToggleRelation(ctx, subjectID, objectID, kind)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			if errors.Is(err, apperror.ErrRelationConflict) {
				e.logger.Warn("relation toggle conflicted",
					slog.Int64("subjectID", subjectID),
					slog.Int64("objectID", objectID),
					slog.String("kind", string(kind)),
				)
			}
			return false, err
		}
		e.logger.Error("relation toggle failed",
			slog.Int64("subjectID", subjectID),
			slog.Int64("objectID", objectID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("service/relations: toggling %s: %w", kind, err)
	}

	e.logger.Info("relation toggled",
		slog.Int64("subjectID", subjectID),
		slog.Int64("objectID", objectID),
		slog.String("kind", string(kind)),
		slog.Bool("active", active),
	)
	return active, nil
}

// Status reports whether the relation currently exists. It fails NotFound
// when the object itself does not exist.
func (e *ToggleEngine) Status(ctx context.Context, subjectID, objectID int64, kind model.RelationKind) (bool, error) {
	if !kind.Valid() {
		return false, apperror.ValidationFailed("kind", fmt.Sprintf("unknown relation kind %q", kind))
	}
	if err := e.requireObject(ctx, objectID, kind); err != nil {
		return false, err
	}

	active, err := e.relations.RelationExists(ctx, subjectID, objectID, kind)
	if err != nil {
		return false, fmt.Errorf("service/relations: status of %s: %w", kind, err)
	}
	return active, nil
}

// ToggleFollow follows or unfollows the user named username.
func (e *ToggleEngine) ToggleFollow(ctx context.Context, subjectID int64, username string) (bool, error) {
	target, err := e.users.GetUserByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return e.Toggle(ctx, subjectID, target.ID, model.RelationFollow)
}

// FollowStatus reports whether subjectID follows the user named username.
func (e *ToggleEngine) FollowStatus(ctx context.Context, subjectID int64, username string) (bool, error) {
	target, err := e.users.GetUserByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return e.Status(ctx, subjectID, target.ID, model.RelationFollow)
}

// Counts returns the follower/following/like/repost counts of a user.
func (e *ToggleEngine) Counts(ctx context.Context, userID int64) (model.RelationCounts, error) {
	if err := e.requireObject(ctx, userID, model.RelationFollow); err != nil {
		return model.RelationCounts{}, err
	}

	counts, err := e.relations.CountUserRelations(ctx, userID)
	if err != nil {
		return model.RelationCounts{}, fmt.Errorf("service/relations: counting for user %d: %w", userID, err)
	}
	return counts, nil
}

// CountsByUsername is Counts addressed by username.
func (e *ToggleEngine) CountsByUsername(ctx context.Context, username string) (model.RelationCounts, error) {
	user, err := e.users.GetUserByUsername(ctx, username)
	if err != nil {
		return model.RelationCounts{}, err
	}
	return e.Counts(ctx, user.ID)
}

// PostCounts returns how many likes and reposts a post has received.
func (e *ToggleEngine) PostCounts(ctx context.Context, postID int64) (model.PostCounts, error) {
	if err := e.requireObject(ctx, postID, model.RelationLike); err != nil {
		return model.PostCounts{}, err
	}

	counts, err := e.relations.CountPostRelations(ctx, postID)
	if err != nil {
		return model.PostCounts{}, fmt.Errorf("service/relations: counting for post %d: %w", postID, err)
	}
	return counts, nil
}

func (e *ToggleEngine) requireObject(ctx context.Context, objectID int64, kind model.RelationKind) error {
	found, err := e.relations.ObjectExists(ctx, objectID, kind)
	if err != nil {
		return fmt.Errorf("service/relations: checking object: %w", err)
	}
	if !found {
		resource := "post"
		if kind.TargetsUser() {
			resource = "user"
		}
		return apperror.NotFound(resource, strconv.FormatInt(objectID, 10))
	}
	return nil
}

func checkRelation(subjectID, objectID int64, kind model.RelationKind) error {
	if !kind.Valid() {
		return apperror.ValidationFailed("kind", fmt.Sprintf("unknown relation kind %q", kind))
	}
	if kind == model.RelationFollow && subjectID == objectID {
		return apperror.SelfRelation(string(kind))
	}
	return nil
}
