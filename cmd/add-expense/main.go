// add-expense records one expense against the local store and pushes it
// to the configured remote backend when reachable. The record survives
// locally either way; a running syncd converges it later if the push
// fails.
//
// Usage:
//
//	add-expense -owner u1 -amount 12.50 -category Groceries [-note "weekly shop"] [-occurred 2026-08-29T10:00:00Z]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"spend/internal/backend"
	"spend/internal/config"
	"spend/internal/core"
	"spend/internal/observe"
	"spend/internal/services"
	"spend/internal/storage"
)

func main() {
	_ = godotenv.Load()

	ownerID := flag.String("owner", "", "owner of the expense (required)")
	amount := flag.String("amount", "", "decimal amount, dot or comma separator (required)")
	category := flag.String("category", "", "expense category (required)")
	note := flag.String("note", "", "optional note")
	attachment := flag.String("attachment", "", "optional attachment reference")
	occurred := flag.String("occurred", "", "occurrence time, RFC 3339 (default now)")
	flag.Parse()

	if *ownerID == "" || *amount == "" || *category == "" {
		fmt.Fprintln(os.Stderr, "error: -owner, -amount and -category are required")
		flag.Usage()
		os.Exit(2)
	}

	cents, err := core.ParseDecimalToCents(*amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid amount %q: %v\n", *amount, err)
		os.Exit(2)
	}

	var occurredAt time.Time
	if *occurred != "" {
		occurredAt, err = time.Parse(time.RFC3339, *occurred)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid -occurred: %v\n", err)
			os.Exit(2)
		}
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open local store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(nil).CreateBackend(ctx, backendCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: initialize remote backend: %v\n", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	hub := observe.NewHub(store)
	store.OnChange(hub.RecordsChanged)
	orch := services.NewOrchestrator(store, result.Backend, hub)

	money := core.Money{Cents: cents}
	id, err := orch.SubmitCreate(ctx, *ownerID, services.CreateInput{
		Amount:        money,
		Category:      *category,
		Note:          *note,
		AttachmentRef: *attachment,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: record expense: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("recorded %.2f in %s for %s (id %s)\n", money.Float64(), *category, *ownerID, id)
}
