// Package service holds the business logic behind the HTTP handlers.
package service

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"heartline/internal/cache"
	"heartline/internal/models"
	"heartline/internal/observability"
	"heartline/internal/repository"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

type PostService struct {
	postRepo repository.PostRepository
	cache    *cache.Store
	ttl      time.Duration
}

type ListFeedInput struct {
	Limit    int
	Offset   int
	ViewerID uint
}

func NewPostService(postRepo repository.PostRepository, store *cache.Store, ttl time.Duration) *PostService {
	return &PostService{postRepo: postRepo, cache: store, ttl: ttl}
}

// ListFeed returns posts newest first. Cached pages are viewer independent;
// Liked is derived per viewer from the liker IDs.
func (s *PostService) ListFeed(ctx context.Context, in ListFeedInput) ([]*models.Post, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	limit = min(limit, MaxFeedLimit)
	offset := max(in.Offset, 0)

	var posts []*models.Post
	key := s.cache.FeedKey(ctx, limit, offset)
	err := s.cache.Aside(ctx, key, &posts, s.ttl, func() error {
		list, err := s.postRepo.List(ctx, limit, offset)
		if err != nil {
			return err
		}
		if err := s.enrich(ctx, list); err != nil {
			return err
		}
		posts = list
		return nil
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	for _, p := range posts {
		markLiked(p, in.ViewerID)
	}
	return posts, nil
}

// GetPost returns one post with counts and liker IDs.
func (s *PostService) GetPost(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	if postID == 0 {
		return nil, models.NewValidationError("post id is required")
	}

	var post *models.Post
	err := s.cache.Aside(ctx, cache.PostKey(postID), &post, s.ttl, func() error {
		p, err := s.postRepo.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if err := s.enrich(ctx, []*models.Post{p}); err != nil {
			return err
		}
		post = p
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}
	markLiked(post, viewerID)
	return post, nil
}

// ToggleLike flips userID's like on postID and returns the post as it now stands.
func (s *PostService) ToggleLike(ctx context.Context, userID, postID uint) (*models.LikeResult, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}

	liked, err := s.postRepo.ToggleLike(ctx, userID, postID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.recordMutation(ctx, postID, liked)

	post, err := s.GetPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	return &models.LikeResult{Post: post, Liked: liked}, nil
}

// Unlike removes userID's like if present.
func (s *PostService) Unlike(ctx context.Context, userID, postID uint) (*models.LikeResult, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}

	removed, err := s.postRepo.Unlike(ctx, userID, postID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if removed {
		s.recordMutation(ctx, postID, false)
	}

	post, err := s.GetPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	return &models.LikeResult{Post: post, Liked: false}, nil
}

func (s *PostService) requirePost(ctx context.Context, postID uint) error {
	if postID == 0 {
		return models.NewValidationError("post id is required")
	}
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return models.NewInternalError(err)
	}
	if !exists {
		return models.NewNotFoundError("Post", postID)
	}
	return nil
}

func (s *PostService) recordMutation(ctx context.Context, postID uint, liked bool) {
	action := "unlike"
	if liked {
		action = "like"
	}
	observability.LikeMutations.WithLabelValues(action).Inc()
	s.cache.Invalidate(ctx, cache.PostKey(postID))
	s.cache.InvalidateFeed(ctx)
}

// enrich loads liker IDs and comment counts in parallel.
func (s *PostService) enrich(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	var (
		likers   map[uint][]uint
		comments map[uint]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		likers, err = s.postRepo.GetLikerIDs(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = s.postRepo.CountComments(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range posts {
		p.LikerIDs = likers[p.ID]
		if p.LikerIDs == nil {
			p.LikerIDs = []uint{}
		}
		p.LikesCount = len(p.LikerIDs)
		p.CommentsCount = comments[p.ID]
	}
	return nil
}

func markLiked(p *models.Post, viewerID uint) {
	if p == nil {
		return
	}
	p.Liked = viewerID != 0 && slices.Contains(p.LikerIDs, viewerID)
}
