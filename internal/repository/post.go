// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"heartline/internal/models"
	"heartline/internal/observability"
)

// PostRepository defines the interface for post and like data operations.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Exists(ctx context.Context, id uint) (bool, error)
	IsLiked(ctx context.Context, userID, postID uint) (bool, error)
	Like(ctx context.Context, userID, postID uint) (bool, error)
	Unlike(ctx context.Context, userID, postID uint) (bool, error)
	ToggleLike(ctx context.Context, userID, postID uint) (bool, error)
	GetLikerIDs(ctx context.Context, postIDs []uint) (map[uint][]uint, error)
	CountComments(ctx context.Context, postIDs []uint) (map[uint]int, error)
}

type postRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db, log: observability.NewRepoLogger("posts")}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"post_id": post.ID})
	return nil
}

// List returns posts newest first with their authors. Counts are filled by the service.
func (r *postRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "List", "posts")
	defer span.End()
	defer observability.TrackQuery("list", "posts")()

	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("posts.created_at DESC, posts.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery("get", "posts")()

	var post models.Post
	err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Post", id)
	}
	if err != nil {
		r.log.LogError(ctx, err, "get")
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *postRepository) IsLiked(ctx context.Context, userID, postID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Like inserts the like if missing and reports whether a row was written.
func (r *postRepository) Like(ctx context.Context, userID, postID uint) (bool, error) {
	defer observability.TrackQuery("like", "likes")()
	err := r.db.WithContext(ctx).Create(&models.Like{UserID: userID, PostID: postID}).Error
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		r.log.LogError(ctx, err, "like")
		return false, err
	}
	r.log.LogCreate(ctx, map[string]any{"user_id": userID, "post_id": postID})
	return true, nil
}

// Unlike deletes the like and reports whether a row was removed.
func (r *postRepository) Unlike(ctx context.Context, userID, postID uint) (bool, error) {
	defer observability.TrackQuery("unlike", "likes")()
	res := r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "unlike")
		return false, res.Error
	}
	r.log.LogDelete(ctx, map[string]any{"user_id": userID, "post_id": postID})
	return res.RowsAffected > 0, nil
}

var errLikedConcurrently = errors.New("like inserted by a concurrent request")

// ToggleLike flips the like in one transaction and returns whether the user now likes the post.
func (r *postRepository) ToggleLike(ctx context.Context, userID, postID uint) (bool, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "ToggleLike", "likes")
	defer span.End()
	defer observability.TrackQuery("toggle", "likes")()

	var liked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			liked = false
			return nil
		}
		if err := tx.Create(&models.Like{UserID: userID, PostID: postID}).Error; err != nil {
			if isUniqueViolation(err) {
				return errLikedConcurrently
			}
			return err
		}
		liked = true
		return nil
	})
	switch {
	case errors.Is(err, errLikedConcurrently):
		return true, nil
	case err != nil:
		observability.RecordErrorInContext(ctx, err)
		r.log.LogError(ctx, err, "toggle")
		return false, fmt.Errorf("toggle like: %w", err)
	}
	r.log.LogCreate(ctx, map[string]any{"user_id": userID, "post_id": postID, "liked": liked})
	return liked, nil
}

type likeRow struct {
	PostID uint
	UserID uint
}

// GetLikerIDs returns the liking user IDs per post, ascending. Posts without likes are absent.
func (r *postRepository) GetLikerIDs(ctx context.Context, postIDs []uint) (map[uint][]uint, error) {
	out := make(map[uint][]uint, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	defer observability.TrackQuery("likers", "likes")()

	var rows []likeRow
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Select("post_id, user_id").
		Where("post_id IN ?", postIDs).
		Order("post_id, user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PostID] = append(out[row.PostID], row.UserID)
	}
	return out, nil
}

type countRow struct {
	PostID uint
	Total  int
}

// CountComments returns live comment counts per post.
func (r *postRepository) CountComments(ctx context.Context, postIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	defer observability.TrackQuery("count", "comments")()

	var rows []countRow
	err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PostID] = row.Total
	}
	return out, nil
}
