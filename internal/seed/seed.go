// Package seed creates demo users, posts, likes and comments for development.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"heartline/internal/models"
	"heartline/internal/observability"
)

// DefaultPassword is the password every seeded user gets.
const DefaultPassword = "password123"

// Options configuration for the seeder
type Options struct {
	NumUsers int
	NumPosts int
	// LikePercent is the chance, 0-100, that a given user likes a given post.
	LikePercent int
	MaxComments int
	ShouldClean bool
	// RandSeed makes runs reproducible; 0 picks a time-based seed.
	RandSeed int64
}

// Summary counts what a Seed call created.
type Summary struct {
	Users    int
	Posts    int
	Likes    int
	Comments int
}

// Factory builds and persists seed entities.
type Factory struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	hash  string
	now   time.Time
}

// NewFactory creates a Factory. The password hash is computed once and shared by every user.
func NewFactory(db *gorm.DB, randSeed int64) (*Factory, error) {
	if randSeed == 0 {
		randSeed = time.Now().UnixNano()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Factory{db: db, faker: gofakeit.New(randSeed), hash: string(hash), now: time.Now()}, nil
}

// BuildUser returns an unsaved user; i keeps usernames unique within a run.
func (f *Factory) BuildUser(i int) *models.User {
	username := strings.ToLower(fmt.Sprintf("%s_%d", f.faker.Username(), i))
	return &models.User{
		Username:    username,
		DisplayName: f.faker.Name(),
		Email:       username + "@example.test",
		Password:    f.hash,
		Avatar:      fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
	}
}

// BuildPost returns an unsaved post by author created up to 30 days ago.
func (f *Factory) BuildPost(author *models.User) *models.Post {
	post := &models.Post{
		Content:   f.faker.Paragraph(1, f.faker.Number(1, 3), 12, " "),
		UserID:    author.ID,
		CreatedAt: f.now.Add(-time.Duration(f.faker.Number(0, 30*24*60)) * time.Minute),
	}
	if f.faker.Number(0, 2) == 0 {
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID())
	}
	return post
}

// Seed populates db according to opts.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (Summary, error) {
	var sum Summary
	if opts.NumUsers <= 0 {
		return sum, fmt.Errorf("at least one user is required")
	}

	if opts.ShouldClean {
		if err := ClearAll(ctx, db); err != nil {
			return sum, fmt.Errorf("clear data: %w", err)
		}
	}

	f, err := NewFactory(db, opts.RandSeed)
	if err != nil {
		return sum, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := make([]*models.User, opts.NumUsers)
		for i := range users {
			users[i] = f.BuildUser(i)
		}
		if err := tx.Create(&users).Error; err != nil {
			return fmt.Errorf("create users: %w", err)
		}
		sum.Users = len(users)

		if opts.NumPosts <= 0 {
			return nil
		}
		posts := make([]*models.Post, opts.NumPosts)
		for i := range posts {
			posts[i] = f.BuildPost(users[f.faker.Number(0, len(users)-1)])
		}
		if err := tx.Create(&posts).Error; err != nil {
			return fmt.Errorf("create posts: %w", err)
		}
		sum.Posts = len(posts)

		var likes []models.Like
		var comments []models.Comment
		for _, p := range posts {
			for _, u := range users {
				if f.faker.Number(0, 99) < opts.LikePercent {
					likes = append(likes, models.Like{UserID: u.ID, PostID: p.ID})
				}
			}
			for range f.faker.Number(0, max(opts.MaxComments, 0)) {
				comments = append(comments, models.Comment{
					Content: f.faker.Sentence(f.faker.Number(3, 12)),
					UserID:  users[f.faker.Number(0, len(users)-1)].ID,
					PostID:  p.ID,
				})
			}
		}
		if len(likes) > 0 {
			if err := tx.CreateInBatches(&likes, 500).Error; err != nil {
				return fmt.Errorf("create likes: %w", err)
			}
		}
		if len(comments) > 0 {
			if err := tx.CreateInBatches(&comments, 500).Error; err != nil {
				return fmt.Errorf("create comments: %w", err)
			}
		}
		sum.Likes, sum.Comments = len(likes), len(comments)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	observability.GlobalLogger.InfoContext(ctx, "database seeded",
		slog.Int("users", sum.Users), slog.Int("posts", sum.Posts),
		slog.Int("likes", sum.Likes), slog.Int("comments", sum.Comments))
	return sum, nil
}

// ClearAll hard-deletes every seeded table, children first.
func ClearAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&models.Like{}, &models.Comment{}, &models.Post{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
