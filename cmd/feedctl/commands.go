package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"heartline/internal/likes"
	"heartline/internal/notifications"
	"heartline/internal/observability"
)

var errToggleFailed = errors.New("one or more like toggles failed")

// postView is the printable form of a post for one viewer.
type postView struct {
	ID       string `json:"id" yaml:"id"`
	Author   string `json:"author" yaml:"author"`
	Content  string `json:"content" yaml:"content"`
	Liked    bool   `json:"liked" yaml:"liked"`
	Likes    int    `json:"likes" yaml:"likes"`
	Comments int    `json:"comments" yaml:"comments"`
	Outcome  string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

func newPostView(p likes.Post, d likes.DisplayState) postView {
	return postView{
		ID:       p.ID,
		Author:   p.Author.Handle,
		Content:  p.Content,
		Liked:    d.Liked,
		Likes:    d.Count,
		Comments: p.CommentCount,
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: login takes a username and a password", errUsage)
	}
	token, err := c.client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	c.session.SetToken(token)
	_, err = fmt.Fprintf(c.out, "export API_TOKEN=%s\n", token)
	return err
}

func (c *cli) feed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := fs.String("o", "text", "output format: text, json or yaml")
	limit := fs.Int("limit", 20, "number of posts")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	posts, err := c.client.FetchFeed(ctx, *limit)
	if err != nil {
		return err
	}
	userID, _ := c.session.ID()
	views := make([]postView, len(posts))
	for i, p := range posts {
		views[i] = newPostView(p, p.DisplayFor(userID))
	}
	return render(c.out, *format, views)
}

func (c *cli) like(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("like", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := fs.String("o", "text", "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: like needs at least one post ID", errUsage)
	}

	var (
		mu       sync.Mutex
		outcomes = make(map[string]likes.Outcome)
	)
	observers := likes.MultiObserver{
		likes.NewLogObserver(observability.GlobalLogger),
		likes.MetricsObserver{},
		likes.ObserverFunc(func(_ context.Context, o likes.Outcome) {
			mu.Lock()
			defer mu.Unlock()
			outcomes[o.PostID] = o
		}),
	}
	if rdb := c.redis(ctx); rdb != nil {
		defer func() { _ = rdb.Close() }()
		observers = append(observers, notifications.NewOutcomeNotifier(notifications.NewNotifier(rdb)))
	}

	engine := likes.NewEngine(c.client, observers, likes.WithTimeout(c.cfg.LikeTimeout()))
	userID, _ := c.session.ID()

	type request struct {
		post    likes.Post
		refusal string
	}
	requests := make([]request, 0, fs.NArg())
	for _, id := range fs.Args() {
		post, err := c.client.FetchPost(ctx, id)
		if err != nil {
			requests = append(requests, request{post: likes.Post{ID: id}, refusal: err.Error()})
			continue
		}
		req := request{post: post}
		if err := engine.ToggleFor(ctx, post, c.session); err != nil {
			req.refusal = err.Error()
		}
		requests = append(requests, req)
	}
	engine.Wait()

	var failed bool
	views := make([]postView, len(requests))
	for i, req := range requests {
		views[i] = newPostView(req.post, engine.DisplayState(req.post, userID))
		if req.refusal != "" {
			views[i].Outcome, views[i].Message = "refused", req.refusal
			failed = true
			continue
		}
		mu.Lock()
		o, ok := outcomes[req.post.ID]
		mu.Unlock()
		if ok {
			views[i].Outcome, views[i].Message = string(o.Kind), o.Message
			failed = failed || !o.Succeeded()
		}
	}

	if err := render(c.out, *format, views); err != nil {
		return err
	}
	if failed {
		return errToggleFailed
	}
	return nil
}

func (c *cli) watch(ctx context.Context) error {
	userID, ok := c.session.ID()
	if !ok {
		return likes.NewUnauthenticatedError(errors.New("watch needs API_TOKEN"))
	}
	rdb := c.redis(ctx)
	if rdb == nil {
		return errors.New("watch needs a reachable REDIS_URL")
	}
	defer func() { _ = rdb.Close() }()

	var mu sync.Mutex
	err := notifications.NewNotifier(rdb).SubscribeUser(ctx, userID, func(payload string) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintln(c.out, describeEvent(payload))
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func describeEvent(payload string) string {
	var ev notifications.OutcomeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return payload
	}
	if ev.Toast != nil {
		return fmt.Sprintf("[%s] post %s: %s", ev.Toast.Title, ev.Outcome.PostID, ev.Toast.Description)
	}
	verb := "unliked"
	if ev.Outcome.Display.Liked {
		verb = "liked"
	}
	return fmt.Sprintf("post %s %s (%d likes)", ev.Outcome.PostID, verb, ev.Outcome.Display.Count)
}

func render(w io.Writer, format string, views []postView) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tAUTHOR\tLIKED\tLIKES\tCOMMENTS\tOUTCOME\tCONTENT")
		for _, v := range views {
			outcome := v.Outcome
			if v.Message != "" {
				outcome += ": " + v.Message
			}
			_, _ = fmt.Fprintf(tw, "%s\t@%s\t%t\t%d\t%d\t%s\t%s\n",
				v.ID, v.Author, v.Liked, v.Likes, v.Comments, outcome, truncate(v.Content, 40))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("%w: unknown output format %q", errUsage, format)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
