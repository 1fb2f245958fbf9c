// Command tp is a dev CLI for threadpress maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/chromedp/chromedp"
	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"

	"github.com/ibeckermayer/threadpress/internal/app"
	browseropts "github.com/ibeckermayer/threadpress/internal/browser"
	"github.com/ibeckermayer/threadpress/internal/config"
	"github.com/ibeckermayer/threadpress/internal/scheduler"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "resolve":
		err = withApp(logger, func(a *app.App) error { return runResolve(ctx, a, os.Args[2:]) })
	case "list":
		err = withApp(logger, func(a *app.App) error { return runList(ctx, a) })
	case "history":
		err = withApp(logger, func(a *app.App) error { return runHistory(ctx, a, os.Args[2:]) })
	case "refresh":
		err = withApp(logger, func(a *app.App) error { return runRefresh(ctx, a, logger) })
	case "scan":
		err = withApp(logger, func(a *app.App) error { return runScan(ctx, a, os.Args[2:]) })
	case "login":
		err = withApp(logger, func(a *app.App) error { return a.Login(ctx) })
	case "logout":
		err = withApp(logger, func(a *app.App) error { return a.Logout() })
	case "bot-test":
		err = runBotTest(logger)
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: tp open <config|cache|article <id>>")
			os.Exit(1)
		}
		err = runOpen(ctx, logger, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: tp <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  resolve <url>...     Resolve post URLs and archive them; one URL prints the HTML")
	fmt.Println("  list                 List archived articles")
	fmt.Println("  history <id>         Show how an archived thread grew over resolutions")
	fmt.Println("  refresh              Re-resolve archived threads inside refresh.max_age")
	fmt.Println("  scan <url>           Run only the browser fallback and print reply IDs")
	fmt.Println("  login                Log in to X in a browser window and store the session")
	fmt.Println("  logout               Delete the stored session")
	fmt.Println("  bot-test             Open bot.sannysoft.com to audit browser fingerprint")
	fmt.Println("  open config          Open config file in default editor")
	fmt.Println("  open cache           Open cache directory in file explorer")
	fmt.Println("  open article <id>    Open an archived article in the browser")
	fmt.Println()
	fmt.Println("Set TP_DEBUG=1 for debug logging.")
}

func logLevel() slog.Level {
	if os.Getenv("TP_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// withApp loads config, builds the app and runs fn against it.
func withApp(logger *slog.Logger, fn func(a *app.App) error) error {
	cfg, created, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if created {
		path, _ := config.ConfigPath()
		logger.Info("created default config", "path", path)
	}

	a, err := app.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

// resolveParallelism bounds concurrent resolutions for multi-URL runs
const resolveParallelism = 4

func runResolve(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tp resolve <url> [url...]")
	}

	if len(args) == 1 {
		article, err := a.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s: %s posts via %s route\n",
			article.Title, humanize.Comma(int64(article.PostCount)), article.Route)
		fmt.Println(article.Content)
		return nil
	}

	// Several URLs: archive them all and print one summary line each.
	articles, err := a.ResolveMany(ctx, args, resolveParallelism)
	if err != nil {
		return err
	}
	for _, article := range articles {
		fmt.Printf("%s\t%s posts\t%s\t%s\n", article.ConversationID,
			humanize.Comma(int64(article.PostCount)), article.Route, article.Title)
	}
	return nil
}

func runList(ctx context.Context, a *app.App) error {
	articles, err := a.ListArticles(ctx, 100)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		fmt.Println("No archived articles.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tAUTHOR\tPOSTS\tSTARTED\tRESOLVED\tTITLE")
	for _, art := range articles {
		fmt.Fprintf(w, "%s\t@%s\t%s\t%s\t%s\t%s\n",
			art.ConversationID,
			art.AuthorHandle,
			humanize.Comma(int64(art.PostCount)),
			humanize.Time(art.RootCreatedAt),
			humanize.Time(art.ResolvedAt),
			art.Title,
		)
	}
	return w.Flush()
}

func runHistory(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tp history <conversation id>")
	}

	events, err := a.History(ctx, args[0])
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Printf("No resolutions recorded for %s.\n", args[0])
		return nil
	}

	prev := 0
	for _, e := range events {
		fmt.Printf("%s  %-6s  %s posts (%+d)\n",
			e.ResolvedAt.Local().Format("2006-01-02 15:04"),
			e.Route,
			humanize.Comma(int64(e.PostCount)),
			e.PostCount-prev)
		prev = e.PostCount
	}
	return nil
}

// runRefresh runs one refresh pass through the scheduler so it gets the
// same timeout as the scheduled job.
func runRefresh(ctx context.Context, a *app.App, logger *slog.Logger) error {
	cfg := a.Config()
	sched, err := scheduler.New(cfg.Refresh.Timezone, logger)
	if err != nil {
		return err
	}
	sched.SetJobTimeout(cfg.Refresh.Timeout.Std())

	var result *app.RefreshResult
	err = sched.RunNow(ctx, scheduler.RefreshJobName, func(ctx context.Context) error {
		var err error
		result, err = a.RefreshArchive(ctx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("Checked %d, refreshed %d, failed %d.\n", result.Checked, result.Refreshed, result.Failed)
	return nil
}

func runScan(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tp scan <url>")
	}

	ids, err := a.ScanReplies(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Recovered %d reply IDs\n", len(ids))
	fmt.Println(strings.Join(ids, "\n"))
	return nil
}

func runBotTest(logger *slog.Logger) error {
	logger.Info("opening bot.sannysoft.com with stealth browser options")

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
		cfg.ApplyEnv()
	}

	// non-headless so you can see it
	opts := browseropts.Options(browseropts.Config{Headless: false, ExecPath: cfg.Browser.ExecPath})

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	go func() {
		err := chromedp.Run(ctx,
			chromedp.Navigate("https://bot.sannysoft.com"),
		)
		if err != nil {
			logger.Error("failed to navigate", "error", err)
		}
	}()

	fmt.Println("Press Enter to end program...")
	fmt.Scanln()

	logger.Info("done")
	return nil
}

func runOpen(ctx context.Context, logger *slog.Logger, args []string) error {
	var path string
	var err error

	switch args[0] {
	case "config":
		path, err = config.ConfigPath()
	case "cache":
		path, err = config.CacheDir()
		if err == nil {
			err = os.MkdirAll(path, 0755)
		}
	case "article":
		if len(args) < 2 {
			return fmt.Errorf("usage: tp open article <id>")
		}
		return withApp(logger, func(a *app.App) error { return a.OpenArticle(ctx, args[1]) })
	default:
		return fmt.Errorf("unknown target: %s", args[0])
	}

	if err != nil {
		return fmt.Errorf("failed to get path: %w", err)
	}
	return browser.OpenFile(path)
}
