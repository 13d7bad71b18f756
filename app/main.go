package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rkuznecov/cinetica/app/api"
	"github.com/rkuznecov/cinetica/app/catalog"
	"github.com/rkuznecov/cinetica/app/cfg"
	"github.com/rkuznecov/cinetica/app/database"
	"github.com/rkuznecov/cinetica/app/metadata"
	"github.com/rkuznecov/cinetica/app/sync"
)

func main() {
	appCfg, args, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	command := "daemon"
	if len(args) > 0 {
		command = args[0]
	}

	slog.Info("Starting Cinetica", "version", appCfg.Version, "command", command)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrationVersion, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", migrationVersion, "dirty", dirty)

	repo := database.NewCatalogItemRepository(db)

	if command == "stats" {
		printStats(repo)
		return
	}

	// Every remaining command talks to the remote catalog API
	if appCfg.TMDBAPIKey == "" {
		slog.Error("TMDB_API_KEY is required for sync commands")
		os.Exit(1)
	}

	policy, err := sync.LoadPolicy(appCfg.PolicyFile)
	if err != nil {
		slog.Error("Failed to load sync policy", "file", appCfg.PolicyFile, "error", err)
		os.Exit(1)
	}

	client := metadata.NewClient()
	normalizer := catalog.NewNormalizer(repo, client)
	syncer := sync.NewSyncer(client, normalizer, repo, policy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "full":
		runOnce(ctx, syncer.FullSync)
	case "releases":
		runOnce(ctx, syncer.SyncNewReleases)
	case "update":
		runOnce(ctx, syncer.UpdateExisting)
	case "trending":
		runOnce(ctx, syncer.SyncTrending)
	case "cleanup":
		runOnce(ctx, syncer.CleanupObsolete)
	case "fetch":
		fetchOne(ctx, args[1:], client, normalizer)
	case "daemon":
		runDaemon(ctx, appCfg, repo, syncer)
	default:
		slog.Error("Unknown command", "command", command)
		fmt.Fprintln(os.Stderr, "Usage: cinetica [OPTIONS] [full|releases|update|trending|cleanup|stats|fetch <id> <kind>|daemon]")
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, op func(context.Context) error) {
	if err := op(ctx); err != nil {
		slog.Error("Sync command failed", "error", err)
		os.Exit(1)
	}
}

// fetchOne resolves and upserts a single title, printing the stored item.
// Mostly a debugging aid for checking what a title looks like after mapping.
func fetchOne(ctx context.Context, args []string, client *metadata.Client, normalizer *catalog.Normalizer) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: cinetica fetch <external_id> <movie|series|anime>")
		os.Exit(1)
	}

	externalID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		slog.Error("Invalid external id", "value", args[0])
		os.Exit(1)
	}
	kind := args[1]
	if !database.ValidKind(kind) {
		slog.Error("Unknown content kind", "kind", kind)
		os.Exit(1)
	}

	detail, err := client.FetchDetail(ctx, externalID, metadata.Kind(kind))
	if err != nil {
		slog.Error("Failed to fetch item", "external_id", externalID, "kind", kind, "error", err)
		os.Exit(1)
	}

	item, created, err := normalizer.Upsert(ctx, detail)
	if err != nil {
		slog.Error("Failed to store item", "external_id", externalID, "kind", kind, "error", err)
		os.Exit(1)
	}
	slog.Info("Item stored", "external_id", externalID, "kind", kind, "created", created, "slug", item.Slug)

	encoded, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		slog.Error("Failed to encode item", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))
}

func printStats(repo database.CatalogRepository) {
	counts, err := repo.Counts()
	if err != nil {
		slog.Error("Failed to read catalog counts", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Catalog items:   %d\n", counts.Total)
	fmt.Printf("  Active:        %d\n", counts.Active)
	fmt.Printf("  Trending:      %d\n", counts.Trending)
	fmt.Printf("  Movies:        %d\n", counts.Movies)
	fmt.Printf("  Series:        %d\n", counts.Series)
	fmt.Printf("  Anime:         %d\n", counts.Anime)
}

func runDaemon(ctx context.Context, appCfg *cfg.Cfg, repo database.CatalogRepository, syncer *sync.Syncer) {
	scheduler := sync.NewDefaultScheduler(syncer)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(repo, syncer, scheduler)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	slog.Info("Cinetica daemon started")

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Cinetica daemon shutdown complete")
}
