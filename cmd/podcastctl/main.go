package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"PodcastNotifier/internal/app"
	"PodcastNotifier/internal/config"
	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/usecase"
)

const usage = `usage: podcastctl <command> [flags]

commands:
  migrate                                  create missing tables
  add-podcast   -feed URL [-title T]       register a feed
  podcasts                                 list known podcasts
  subscribe     -user U -chat C (-podcast ID | -feed URL) [-cadence immediate|daily|weekly]
  unsubscribe   -user U -podcast ID
  preference    -user U -podcast ID -cadence C
  subscriptions -user U                    list active subscriptions
`

var (
	// errFault is reported after the underlying error was logged.
	errFault          = errors.New("something went wrong, please try again later")
	errMissingCadence = errors.New("preference requires -cadence immediate|daily|weekly")
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if err := application.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, application, logger, os.Stdout, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = application.Close()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.Application, logger *slog.Logger, out io.Writer, command string, args []string) error {
	svc := a.Subscriptions()
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	var (
		user    = fs.String("user", "", "telegram username")
		chat    = fs.String("chat", "", "telegram chat id")
		podcast = fs.Int64("podcast", 0, "podcast id")
		feedURL = fs.String("feed", "", "feed url")
		title   = fs.String("title", "", "podcast title")
		cadence = fs.String("cadence", string(domain.CadenceImmediate), "notification cadence")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fault := func(err error) error {
		logger.Error("command failed", "command", command, "error", err)
		return errFault
	}
	reply := func(res usecase.Result, err error) error {
		if err != nil {
			return fault(err)
		}
		fmt.Fprintln(out, res.Message)
		return nil
	}

	switch command {
	case "migrate":
		fmt.Fprintln(out, "schema is up to date")
		return nil
	case "add-podcast":
		p, created, err := svc.AddPodcast(ctx, *feedURL, *title, *user)
		if errors.Is(err, domain.ErrInvalidFeedURL) {
			fmt.Fprintln(out, usecase.MsgInvalidFeed)
			return nil
		}
		if err != nil {
			return fault(err)
		}
		state := "already known"
		if created {
			state = "added"
		}
		fmt.Fprintf(out, "%d\t%s\t%s (%s)\n", p.ID, p.Title, p.FeedURL, state)
		return nil
	case "podcasts":
		podcasts, err := svc.ListPodcasts(ctx)
		if err != nil {
			return fault(err)
		}
		for _, p := range podcasts {
			fmt.Fprintf(out, "%d\t%s\t%s\n", p.ID, p.Title, p.FeedURL)
		}
		return nil
	case "subscribe":
		if *feedURL != "" {
			return reply(svc.SubscribeFeed(ctx, *user, *chat, *feedURL, *cadence))
		}
		return reply(svc.Subscribe(ctx, *user, *chat, *podcast, *cadence))
	case "unsubscribe":
		return reply(svc.Unsubscribe(ctx, *user, *podcast))
	case "preference":
		if !flagSet(fs, "cadence") {
			return errMissingCadence
		}
		return reply(svc.UpdatePreference(ctx, *user, *podcast, *cadence))
	case "subscriptions":
		subs, err := svc.ListSubscriptions(ctx, *user)
		if err != nil {
			return fault(err)
		}
		if len(subs) == 0 {
			fmt.Fprintln(out, "No active subscriptions.")
			return nil
		}
		for _, s := range subs {
			fmt.Fprintf(out, "%d\t%s\t%s\n", s.PodcastID, s.PodcastTitle, s.Cadence)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
