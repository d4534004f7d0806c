package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartline/internal/cache"
	"heartline/internal/models"
)

type postRepoStub struct {
	createFn        func(ctx context.Context, post *models.Post) error
	listFn          func(ctx context.Context, limit, offset int) ([]*models.Post, error)
	getByIDFn       func(ctx context.Context, id uint) (*models.Post, error)
	existsFn        func(ctx context.Context, id uint) (bool, error)
	isLikedFn       func(ctx context.Context, userID, postID uint) (bool, error)
	likeFn          func(ctx context.Context, userID, postID uint) (bool, error)
	unlikeFn        func(ctx context.Context, userID, postID uint) (bool, error)
	toggleLikeFn    func(ctx context.Context, userID, postID uint) (bool, error)
	getLikerIDsFn   func(ctx context.Context, postIDs []uint) (map[uint][]uint, error)
	countCommentsFn func(ctx context.Context, postIDs []uint) (map[uint]int, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}

func (s *postRepoStub) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	return s.listFn(ctx, limit, offset)
}

func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}

func (s *postRepoStub) Exists(ctx context.Context, id uint) (bool, error) {
	return s.existsFn(ctx, id)
}

func (s *postRepoStub) IsLiked(ctx context.Context, userID, postID uint) (bool, error) {
	return s.isLikedFn(ctx, userID, postID)
}

func (s *postRepoStub) Like(ctx context.Context, userID, postID uint) (bool, error) {
	return s.likeFn(ctx, userID, postID)
}

func (s *postRepoStub) Unlike(ctx context.Context, userID, postID uint) (bool, error) {
	return s.unlikeFn(ctx, userID, postID)
}

func (s *postRepoStub) ToggleLike(ctx context.Context, userID, postID uint) (bool, error) {
	return s.toggleLikeFn(ctx, userID, postID)
}

func (s *postRepoStub) GetLikerIDs(ctx context.Context, postIDs []uint) (map[uint][]uint, error) {
	return s.getLikerIDsFn(ctx, postIDs)
}

func (s *postRepoStub) CountComments(ctx context.Context, postIDs []uint) (map[uint]int, error) {
	return s.countCommentsFn(ctx, postIDs)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn: func(context.Context, *models.Post) error { return nil },
		listFn:   func(context.Context, int, int) ([]*models.Post, error) { return nil, nil },
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			return &models.Post{ID: id, Content: "post"}, nil
		},
		existsFn:        func(context.Context, uint) (bool, error) { return true, nil },
		isLikedFn:       func(context.Context, uint, uint) (bool, error) { return false, nil },
		likeFn:          func(context.Context, uint, uint) (bool, error) { return true, nil },
		unlikeFn:        func(context.Context, uint, uint) (bool, error) { return true, nil },
		toggleLikeFn:    func(context.Context, uint, uint) (bool, error) { return true, nil },
		getLikerIDsFn:   func(context.Context, []uint) (map[uint][]uint, error) { return map[uint][]uint{}, nil },
		countCommentsFn: func(context.Context, []uint) (map[uint]int, error) { return map[uint]int{}, nil },
	}
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestPostService_ListFeedEnrichesAndMarksViewer(t *testing.T) {
	t.Parallel()
	repo := noopPostRepo()
	var gotLimit, gotOffset int
	repo.listFn = func(_ context.Context, limit, offset int) ([]*models.Post, error) {
		gotLimit, gotOffset = limit, offset
		return []*models.Post{{ID: 1}, {ID: 2}}, nil
	}
	repo.getLikerIDsFn = func(_ context.Context, ids []uint) (map[uint][]uint, error) {
		assert.Equal(t, []uint{1, 2}, ids)
		return map[uint][]uint{1: {7, 9}}, nil
	}
	repo.countCommentsFn = func(context.Context, []uint) (map[uint]int, error) {
		return map[uint]int{2: 4}, nil
	}
	svc := NewPostService(repo, nil, time.Minute)

	posts, err := svc.ListFeed(context.Background(), ListFeedInput{Limit: 500, Offset: -3, ViewerID: 9})
	require.NoError(t, err)

	assert.Equal(t, MaxFeedLimit, gotLimit)
	assert.Zero(t, gotOffset)
	require.Len(t, posts, 2)
	assert.Equal(t, []uint{7, 9}, posts[0].LikerIDs)
	assert.Equal(t, 2, posts[0].LikesCount)
	assert.True(t, posts[0].Liked)
	assert.Equal(t, []uint{}, posts[1].LikerIDs)
	assert.Zero(t, posts[1].LikesCount)
	assert.False(t, posts[1].Liked)
	assert.Equal(t, 4, posts[1].CommentsCount)
}

func TestPostService_ListFeedDefaultsLimit(t *testing.T) {
	t.Parallel()
	repo := noopPostRepo()
	var gotLimit int
	repo.listFn = func(_ context.Context, limit, _ int) ([]*models.Post, error) {
		gotLimit = limit
		return nil, nil
	}
	svc := NewPostService(repo, nil, time.Minute)

	_, err := svc.ListFeed(context.Background(), ListFeedInput{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFeedLimit, gotLimit)
}

func TestPostService_ListFeedEnrichmentError(t *testing.T) {
	t.Parallel()
	repo := noopPostRepo()
	repo.listFn = func(context.Context, int, int) ([]*models.Post, error) { return []*models.Post{{ID: 1}}, nil }
	repo.countCommentsFn = func(context.Context, []uint) (map[uint]int, error) { return nil, errors.New("db down") }
	svc := NewPostService(repo, nil, time.Minute)

	_, err := svc.ListFeed(context.Background(), ListFeedInput{})
	assertAppErrorCode(t, err, models.CodeInternal)
}

func TestPostService_ListFeedUsesCachePerViewer(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client, err := cache.NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var listCalls atomic.Int32
	repo := noopPostRepo()
	repo.listFn = func(context.Context, int, int) ([]*models.Post, error) {
		listCalls.Add(1)
		return []*models.Post{{ID: 1}}, nil
	}
	repo.getLikerIDsFn = func(context.Context, []uint) (map[uint][]uint, error) {
		return map[uint][]uint{1: {5}}, nil
	}
	svc := NewPostService(repo, cache.NewStore(client), time.Minute)

	asLiker, err := svc.ListFeed(context.Background(), ListFeedInput{ViewerID: 5})
	require.NoError(t, err)
	asOther, err := svc.ListFeed(context.Background(), ListFeedInput{ViewerID: 6})
	require.NoError(t, err)

	assert.Equal(t, int32(1), listCalls.Load())
	assert.True(t, asLiker[0].Liked)
	assert.False(t, asOther[0].Liked)

	_, err = svc.ToggleLike(context.Background(), 6, 1)
	require.NoError(t, err)
	_, err = svc.ListFeed(context.Background(), ListFeedInput{ViewerID: 6})
	require.NoError(t, err)
	assert.Equal(t, int32(2), listCalls.Load(), "a like invalidates cached feed pages")
}

func TestPostService_ToggleLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		postID    uint
		setup     func(r *postRepoStub)
		wantLiked bool
		wantCode  string
	}{
		{
			name:   "likes",
			postID: 1,
			setup: func(r *postRepoStub) {
				r.getLikerIDsFn = func(context.Context, []uint) (map[uint][]uint, error) {
					return map[uint][]uint{1: {3}}, nil
				}
			},
			wantLiked: true,
		},
		{
			name:   "unlikes",
			postID: 1,
			setup: func(r *postRepoStub) {
				r.toggleLikeFn = func(context.Context, uint, uint) (bool, error) { return false, nil }
			},
			wantLiked: false,
		},
		{
			name:     "zero id",
			postID:   0,
			setup:    func(*postRepoStub) {},
			wantCode: models.CodeValidation,
		},
		{
			name:   "missing post",
			postID: 4,
			setup: func(r *postRepoStub) {
				r.existsFn = func(context.Context, uint) (bool, error) { return false, nil }
			},
			wantCode: models.CodeNotFound,
		},
		{
			name:   "repository failure",
			postID: 1,
			setup: func(r *postRepoStub) {
				r.toggleLikeFn = func(context.Context, uint, uint) (bool, error) { return false, errors.New("deadlock") }
			},
			wantCode: models.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := noopPostRepo()
			tt.setup(repo)
			svc := NewPostService(repo, nil, time.Minute)

			result, err := svc.ToggleLike(context.Background(), 3, tt.postID)
			if tt.wantCode != "" {
				assertAppErrorCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLiked, result.Liked)
			assert.Equal(t, tt.wantLiked, result.Post.Liked)
			assert.Equal(t, tt.postID, result.Post.ID)
		})
	}
}

func TestPostService_Unlike(t *testing.T) {
	t.Parallel()
	repo := noopPostRepo()
	var removedFor uint
	repo.unlikeFn = func(_ context.Context, userID, _ uint) (bool, error) {
		removedFor = userID
		return false, nil
	}
	svc := NewPostService(repo, nil, time.Minute)

	result, err := svc.Unlike(context.Background(), 8, 1)
	require.NoError(t, err)
	assert.False(t, result.Liked)
	assert.Equal(t, uint(8), removedFor)
}

func TestPostService_GetPostNotFound(t *testing.T) {
	t.Parallel()
	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		return nil, models.NewNotFoundError("Post", id)
	}
	svc := NewPostService(repo, nil, time.Minute)

	_, err := svc.GetPost(context.Background(), 99, 1)
	assertAppErrorCode(t, err, models.CodeNotFound)
}
