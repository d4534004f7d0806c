// Command feedctl is a terminal client for the feed: it signs in, lists posts
// and toggles likes through the optimistic like engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"heartline/internal/cache"
	"heartline/internal/config"
	"heartline/internal/observability"
	"heartline/internal/remote"
	"heartline/internal/session"
)

const usage = `usage: feedctl <command> [flags] [args]

commands:
  login <username> <password>   print a token; export it as API_TOKEN
  feed [-o text|json|yaml] [-limit N]
  like [-o text|json|yaml] <postID>...
  watch                         stream like outcomes for the signed-in user
`

var errUsage = errors.New("invalid usage")

type cli struct {
	cfg     *config.Config
	client  *remote.Client
	session *session.Session
	// redis returns a client for outcome notifications, or nil.
	redis func(ctx context.Context) *redis.Client
	out   io.Writer
}

func newCLI(cfg *config.Config, out io.Writer) *cli {
	sess := session.New(cfg.APIToken)
	return &cli{
		cfg:     cfg,
		client:  remote.NewClient(cfg.APIBaseURL, sess, remote.WithTimeout(cfg.LikeTimeout())),
		session: sess,
		redis: func(ctx context.Context) *redis.Client {
			return cache.Connect(ctx, cfg.RedisURL)
		},
		out: out,
	}
}

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	observability.GlobalLogger = observability.NewLogger(os.Stderr, cfg.Env, observability.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI(cfg, os.Stdout).run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		observability.GlobalLogger.Error("feedctl failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "login":
		return c.login(ctx, args[1:])
	case "feed":
		return c.feed(ctx, args[1:])
	case "like":
		return c.like(ctx, args[1:])
	case "watch":
		return c.watch(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}
