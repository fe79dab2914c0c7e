package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ledgerline/internal/app"
	"ledgerline/internal/infrastructure/postgres"
	"ledgerline/internal/shared/config"
	"ledgerline/internal/shared/logger"
)

const usage = `Ledgerline Admin CLI - Maintenance commands for the Ledgerline API

Usage:
  admin <command> [options]

Commands:
  migrate           Apply the database schema
  process-file      Process the raw rows of one parsed statement
  transfer-sweep    Link internal transfers across all files of a user
  categorize        Resolve vendor and category for uncategorized transactions

Examples:
  # Process one file for its owner
  admin process-file --file-id=6f1c1f8e-4b4a-4d8e-9c55-2b1e0e0a9d11 --user-id=1

  # Sweep transfers for several users
  admin transfer-sweep --user-id=1,2,3

  # Sweep every user with transactions, 8 at a time
  admin transfer-sweep --all --workers=8

  # Categorize up to 500 rows per user
  admin categorize --all --limit=500 --timeout=1h
`

const defaultWorkers = 4

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]

	var err error
	switch command {
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "process-file":
		err = runProcessFile(os.Args[2:])
	case "transfer-sweep":
		err = runTransferSweep(os.Args[2:])
	case "categorize":
		err = runCategorize(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: config, logger and an open database.
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	db     *postgres.DB
	repos  app.Repositories
	ctx    context.Context
	cancel context.CancelFunc
}

func setup(timeout time.Duration) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Pretty: true})

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to database")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &env{
		cfg:    cfg,
		log:    log,
		db:     db,
		repos:  app.NewRepositories(db),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (e *env) close() {
	e.cancel()
	e.db.Close()
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeout := fs.Duration("timeout", time.Minute, "Timeout for the operation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setup(*timeout)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.db.Migrate(e.ctx); err != nil {
		return err
	}
	e.log.Info().Msg("schema applied")
	return nil
}

func runProcessFile(args []string) error {
	fs := flag.NewFlagSet("process-file", flag.ExitOnError)
	fileID := fs.String("file-id", "", "Statement file ID")
	userID := fs.Int64("user-id", 0, "Owner of the file")
	categorize := fs.Bool("categorize", true, "Categorize the new transactions afterwards")
	timeout := fs.Duration("timeout", 10*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fileID == "" || *userID <= 0 {
		fs.Usage()
		return fmt.Errorf("--file-id and --user-id are required")
	}

	e, err := setup(*timeout)
	if err != nil {
		return err
	}
	defer e.close()

	processor := app.NewProcessor(e.cfg, e.repos, e.log)
	result, err := processor.ProcessFileTransactions(e.ctx, *fileID, *userID)
	if result != nil {
		fmt.Printf("\n=== File %s ===\n", *fileID)
		fmt.Printf("  Processed:           %d\n", result.Processed)
		fmt.Printf("  Duplicates:          %d\n", result.Duplicates)
		fmt.Printf("  Internal transfers:  %d\n", result.InternalTransfers)
		printErrors(result.Errors)
	}
	if err != nil {
		return err
	}

	if *categorize && result.Processed > 0 {
		svc, err := app.NewCategorizer(e.ctx, e.cfg, e.repos, e.log)
		if err != nil {
			return err
		}
		cat, err := svc.CategorizeUncategorized(e.ctx, *userID, e.cfg.Processor.CategorizeBatchSize)
		if err != nil {
			return err
		}
		fmt.Printf("  Categorized:         %d/%d\n", cat.Categorized, cat.TransactionsChecked)
	}
	return nil
}

func runTransferSweep(args []string) error {
	fs := flag.NewFlagSet("transfer-sweep", flag.ExitOnError)
	sel := addUserFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.check(); err != nil {
		fs.Usage()
		return err
	}

	e, err := setup(sel.timeout)
	if err != nil {
		return err
	}
	defer e.close()

	userIDs, err := sel.resolve(e)
	if err != nil {
		return err
	}

	processor := app.NewProcessor(e.cfg, e.repos, e.log)
	start := time.Now()

	err = forEachUser(e.ctx, userIDs, sel.workers, func(ctx context.Context, userID int64) (string, error) {
		result, err := processor.DetectAndLinkInternalTransfers(ctx, userID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("  Transactions checked: %d\n  Pairs linked:         %d\n%s",
			result.TransactionsChecked, result.PairsLinked, formatErrors(result.Errors)), nil
	})

	e.log.Info().Int("users", len(userIDs)).Dur("elapsed", time.Since(start)).Msg("transfer sweep completed")
	return err
}

func runCategorize(args []string) error {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	sel := addUserFlags(fs)
	limit := fs.Int("limit", 200, "Maximum transactions per user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.check(); err != nil {
		fs.Usage()
		return err
	}

	e, err := setup(sel.timeout)
	if err != nil {
		return err
	}
	defer e.close()

	userIDs, err := sel.resolve(e)
	if err != nil {
		return err
	}

	svc, err := app.NewCategorizer(e.ctx, e.cfg, e.repos, e.log)
	if err != nil {
		return err
	}
	start := time.Now()

	err = forEachUser(e.ctx, userIDs, sel.workers, func(ctx context.Context, userID int64) (string, error) {
		result, err := svc.CategorizeUncategorized(ctx, userID, *limit)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("  Transactions checked: %d\n  Categorized:          %d\n  Uncategorized:        %d\n%s",
			result.TransactionsChecked, result.Categorized, result.Uncategorized, formatErrors(result.Errors)), nil
	})

	e.log.Info().Int("users", len(userIDs)).Dur("elapsed", time.Since(start)).Msg("categorization completed")
	return err
}

// userSelection is the shared --user-id / --all flag set.
type userSelection struct {
	ids     *string
	all     *bool
	workers int
	timeout time.Duration
}

func addUserFlags(fs *flag.FlagSet) *userSelection {
	sel := &userSelection{
		ids: fs.String("user-id", "", "User ID(s) to process (comma-separated for multiple)"),
		all: fs.Bool("all", false, "Process all users with transactions"),
	}
	fs.IntVar(&sel.workers, "workers", defaultWorkers, "Number of users processed concurrently")
	fs.DurationVar(&sel.timeout, "timeout", 30*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")
	return sel
}

func (s *userSelection) check() error {
	if *s.ids == "" && !*s.all {
		return fmt.Errorf("must specify --user-id or --all")
	}
	if s.workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	return nil
}

func (s *userSelection) resolve(e *env) ([]int64, error) {
	if *s.all {
		ids, err := e.repos.Transactions.ListActiveUserIDs(e.ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		e.log.Info().Int("users", len(ids)).Msg("found users with transactions")
		return ids, nil
	}
	return parseUserIDs(*s.ids)
}

// parseUserIDs parses a comma-separated list, skipping blanks and repeats.
func parseUserIDs(s string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user ID %q", p)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// forEachUser runs fn for every user with at most workers in flight and
// prints each report as it completes. Failures are reported per user; the
// returned error only says how many failed.
func forEachUser(ctx context.Context, userIDs []int64, workers int, fn func(ctx context.Context, userID int64) (string, error)) error {
	if len(userIDs) == 0 {
		fmt.Println("No users to process")
		return nil
	}

	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range userIDs {
		g.Go(func() error {
			report, err := fn(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			fmt.Printf("\n=== User %d ===\n", id)
			if err != nil {
				failed++
				fmt.Printf("  Failed: %v\n", err)
				return nil
			}
			fmt.Print(report)
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d users failed", failed, len(userIDs))
	}
	return nil
}

func formatErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  Errors:               %d\n", len(errs))
	for i, e := range errs {
		if i >= 5 {
			fmt.Fprintf(&b, "    ... and %d more errors\n", len(errs)-5)
			break
		}
		fmt.Fprintf(&b, "    - %s\n", e)
	}
	return b.String()
}

func printErrors(errs []string) {
	fmt.Print(formatErrors(errs))
}
