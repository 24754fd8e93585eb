package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"summit-webhook/internal/client"
	"summit-webhook/internal/config"
	"summit-webhook/internal/logger"
	"summit-webhook/internal/repository"
	"time"

	"gorm.io/gorm"
)

const usage = `usage: deadletter <command> [flags]

commands:
  list [-limit n]          unresolved fulfillment failures, oldest first
  history <transaction id> every delivery recorded for one payment
  resolve <failure id>     mark a failure as handled
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.Environment.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := client.InitDBClient(cfg.DatabaseURL, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init database: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, db, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *gorm.DB, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	failures := repository.NewFulfillmentFailureRepository(db)
	events := repository.NewWebhookEventRepository(db)
	enc := json.NewEncoder(out)

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		limit := fs.Int("limit", 50, "maximum number of failures to print")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("list: %w", err)
		}

		unresolved, err := failures.ListUnresolved(ctx, *limit)
		if err != nil {
			return fmt.Errorf("list unresolved: %w", err)
		}
		for _, f := range unresolved {
			if err := enc.Encode(f); err != nil {
				return err
			}
		}
		return nil

	case "history":
		if len(args) != 2 {
			return errors.New(usage)
		}
		history, err := events.ListByTransactionID(ctx, args[1])
		if err != nil {
			return fmt.Errorf("list deliveries: %w", err)
		}
		for _, e := range history {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil

	case "resolve":
		if len(args) != 2 {
			return errors.New(usage)
		}
		if err := failures.MarkResolved(ctx, args[1]); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no failure with id %s", args[1])
			}
			return fmt.Errorf("resolve: %w", err)
		}
		_, err := fmt.Fprintf(out, "resolved %s\n", args[1])
		return err
	}

	return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
}
