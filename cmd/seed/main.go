// Command seed fills the database with demo users, posts, likes and comments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"heartline/internal/config"
	"heartline/internal/database"
	"heartline/internal/observability"
	"heartline/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	likePercent := flag.Int("like-percent", 20, "Chance (0-100) that a user likes a given post")
	maxComments := flag.Int("max-comments", 5, "Maximum comments per post")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	randSeed := flag.Int64("rand-seed", 0, "Random seed for reproducible data (0 = time based)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("failed to load configuration", err)
	}
	observability.Configure(cfg.Env, cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		fail("failed to connect to database", err)
	}

	sum, err := seed.Seed(context.Background(), db, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		LikePercent: *likePercent,
		MaxComments: *maxComments,
		ShouldClean: *shouldClean,
		RandSeed:    *randSeed,
	})
	if err != nil {
		fail("seeding failed", err)
	}

	fmt.Printf("Seeded %d users, %d posts, %d likes, %d comments.\n", sum.Users, sum.Posts, sum.Likes, sum.Comments)
	fmt.Printf("All users have the password: %s\n", seed.DefaultPassword)
}

func fail(msg string, err error) {
	observability.GlobalLogger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
