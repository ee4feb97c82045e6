// Admin tool: reset a dataset's sync state back to pending with a zero
// cursor, forcing a full resync on the next run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ndquoc/evalsync/internal/core/config"
	"github.com/ndquoc/evalsync/internal/core/syncstate"
	"github.com/ndquoc/evalsync/internal/infra/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	datasetID := flag.String("dataset", "", "Dataset ID to reset (required)")
	flag.Parse()

	if *datasetID == "" {
		fmt.Fprintln(os.Stderr, "usage: reset_state -dataset <id> [-config config.yaml]")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "database.url is required for state reset")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	states := syncstate.NewManager(postgres.NewSyncStateRepo(db))
	if err := states.Reset(ctx, *datasetID); err != nil {
		fmt.Fprintf(os.Stderr, "failed to reset %s: %v\n", *datasetID, err)
		os.Exit(1)
	}

	fmt.Printf("Reset sync state for dataset %s\n", *datasetID)
}
