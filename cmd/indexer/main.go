package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"content-indexer/internal/app"
	"content-indexer/internal/bootstrap"
	"content-indexer/internal/config"
	"content-indexer/internal/pkg/jwtutil"
	"content-indexer/internal/pkg/logger"
)

const (
	exitOK               = 0
	exitFailed           = 1
	exitValidationFailed = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.toml (default configs/config.toml)")
	docPath := flag.String("doc", "", "content document to index, overrides source.path")
	setup := flag.Bool("setup", false, "create the chunks table and indexes, then exit")
	dryRun := flag.Bool("dry-run", false, "parse and expand only, no embedding or store access")
	issueToken := flag.String("issue-token", "", "print an admin token for the given operator and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	if *configPath == "" {
		*configPath = "configs/config.toml"
	}
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return exitFailed
	}
	if *docPath != "" {
		cfg.Source.Path = *docPath
	}

	if *issueToken != "" {
		token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, *issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
			return exitFailed
		}
		fmt.Println(token)
		return exitOK
	}

	log, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return exitFailed
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *dryRun {
		indexer := app.NewIndexService(app.IndexConfig{
			SourcePath:       cfg.Source.Path,
			Kind:             cfg.Index.Kind,
			StrictSectionIDs: cfg.Index.StrictSectionIDs,
		}, nil, nil, nil, nil, log)
		result, err := indexer.Run(ctx, app.RunOptions{DryRun: true})
		printSummary(os.Stdout, result)
		if err != nil {
			return exitFailed
		}
		return exitOK
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return exitFailed
	}

	a, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("bootstrap failed", zap.Error(err))
		return exitFailed
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close resources failed", zap.Error(err))
		}
	}()

	if *setup {
		if err := a.Indexer.EnsureSchema(ctx); err != nil {
			log.Error("schema setup failed", zap.Error(err))
			return exitFailed
		}
		log.Info("schema ready", zap.String("driver", cfg.Database.Driver), zap.Int("dimensions", cfg.Embedding.Dimensions))
		return exitOK
	}

	result, err := a.Indexer.Run(ctx, app.RunOptions{})
	printSummary(os.Stdout, result)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrValidationFailed):
		return exitValidationFailed
	default:
		return exitFailed
	}
}

func printSummary(w io.Writer, result *app.RunResult) {
	if result == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "run\t%s\n", result.RunID)
	fmt.Fprintf(tw, "document\t%s\n", result.SourcePath)
	fmt.Fprintf(tw, "sections\t%d (dropped empty: %d)\n", result.Parse.Sections, result.Parse.DroppedEmpty)
	fmt.Fprintf(tw, "questions\t%d\n", result.Parse.Questions)
	fmt.Fprintf(tw, "follow-ups\t%d (with target: %d, sections: %d)\n",
		result.Parse.FollowUps, result.Parse.FollowUpsWithTarget, result.Parse.WithFollowUps)
	fmt.Fprintf(tw, "cross-refs\t%d sections\n", result.Parse.WithCrossRefs)
	if len(result.Duplicates) > 0 {
		fmt.Fprintf(tw, "duplicates\t%v\n", result.Duplicates)
	}
	if result.DryRun {
		fmt.Fprintf(tw, "expected rows\t%d\n", result.ContentTexts+result.QuestionTexts)
	} else {
		fmt.Fprintf(tw, "deleted\t%d\n", result.Load.Deleted)
		fmt.Fprintf(tw, "inserted\t%d\n", result.Load.Inserted)
	}

	if report := result.Report; report != nil {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "CHECK\tRESULT\tDETAIL")
		for _, c := range report.Checks {
			status := "PASS"
			switch {
			case !c.Passed && c.Blocking:
				status = "FAIL"
			case !c.Passed:
				status = "WARN"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, status, c.Detail)
		}

		s := report.Summary
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "rows\t%d (question: %d, content-only: %d, with follow-ups: %d)\n",
			s.TotalRows, s.QuestionRows, s.ContentOnlyRows, s.RowsWithFollowUps)
		fmt.Fprintln(tw, "SECTION\tROWS\tQUESTIONS")
		for _, sc := range s.Sections {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", sc.Title, sc.Rows, sc.Questions)
		}

		verdict := "VALIDATION PASSED"
		if !report.Passed {
			verdict = "VALIDATION FAILED"
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, verdict)
	}
	if result.Error != "" {
		fmt.Fprintf(tw, "error\t%s\n", result.Error)
	}
}
