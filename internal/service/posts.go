package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/feed-core/internal/apperror"
	"github.com/sakif/feed-core/internal/model"
	"github.com/sakif/feed-core/internal/repository"
)

const MaxPostLength = 1000

// PostView is a post as returned to clients: the post itself, the counts
// of relations it has received and, for a signed-in viewer, whether they
// liked or reposted it.
type PostView struct {
	*model.Post
	Counts   model.PostCounts `json:"counts"`
	Liked    *bool            `json:"liked,omitempty"`
	Reposted *bool            `json:"reposted,omitempty"`
}

// PostService handles the minimal post lifecycle that gives likes and
// reposts something to point at.
type PostService struct {
	posts     repository.PostRepository
	relations repository.RelationRepository
	logger    *slog.Logger
}

func NewPostService(posts repository.PostRepository, relations repository.RelationRepository, logger *slog.Logger) *PostService {
	return &PostService{
		posts:     posts,
		relations: relations,
		logger:    logger,
	}
}

// Create validates and saves a new post owned by userID.
func (s *PostService) Create(ctx context.Context, userID int64, content string) (*model.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "post content is required")
	}
	if utf8.RuneCountInString(content) > MaxPostLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("post content must be %d characters or less", MaxPostLength))
	}

	post := &model.Post{UserID: userID, Content: content}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/posts: creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.Int64("postID", post.ID),
		slog.Int64("userID", userID),
	)
	return post, nil
}

// Get returns the post with its counts. viewerID is 0 for anonymous callers;
// otherwise the view also says whether the viewer liked or reposted it.
func (s *PostService) Get(ctx context.Context, postID, viewerID int64) (*PostView, error) {
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("service/posts: %w", err)
	}

	counts, err := s.relations.CountPostRelations(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("service/posts: counting relations: %w", err)
	}

	view := &PostView{Post: post, Counts: counts}
	if viewerID > 0 {
		liked, err := s.relations.RelationExists(ctx, viewerID, postID, model.RelationLike)
		if err != nil {
			return nil, fmt.Errorf("service/posts: like status: %w", err)
		}
		reposted, err := s.relations.RelationExists(ctx, viewerID, postID, model.RelationRepost)
		if err != nil {
			return nil, fmt.Errorf("service/posts: repost status: %w", err)
		}
		view.Liked, view.Reposted = &liked, &reposted
	}
	return view, nil
}

// Delete removes a post. Only its author may delete it.
func (s *PostService) Delete(ctx context.Context, userID, postID int64) error {
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("service/posts: %w", err)
	}
	if post.UserID != userID {
		return apperror.Forbidden("you can only delete your own posts")
	}

	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("service/posts: deleting post %d: %w", postID, err)
	}

	s.logger.Info("post deleted",
		slog.Int64("postID", postID),
		slog.Int64("userID", userID),
	)
	return nil
}
