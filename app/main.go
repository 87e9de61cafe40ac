package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthboard/crawler/app/api"
	"github.com/healthboard/crawler/app/cfg"
	"github.com/healthboard/crawler/app/crawler"
	"github.com/healthboard/crawler/app/database"
	"github.com/healthboard/crawler/app/fetch"
	"github.com/healthboard/crawler/app/session"
	"github.com/healthboard/crawler/app/sources"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting crawler", "version", appCfg.Version, "base_url", appCfg.BaseURL)

	if err := run(appCfg); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	recordRepo := database.NewRecordRepository(db)
	runRepo := database.NewRunRepository(db)

	sourceCache := sources.NewCache(appCfg.SourcesDir)
	if err := sourceCache.Run(); err != nil {
		return fmt.Errorf("failed to load source configurations: %w", err)
	}
	enabled := sourceCache.GetEnabledConfigs()
	slog.Info("Source configurations loaded",
		"total", sourceCache.GetConfigCount(), "enabled", len(enabled))
	if len(enabled) == 0 {
		slog.Warn("No enabled sources, nothing to crawl", "dir", appCfg.SourcesDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := session.NewManager(session.Options{
		BaseURL:   appCfg.BaseURL,
		CachePath: appCfg.SessionCachePath,
		TTL:       time.Duration(appCfg.SessionTTL) * time.Second,
		UserAgent: appCfg.UserAgent,
	})
	sess, err := manager.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire session: %w", err)
	}
	slog.Info("Session ready", "cookies", len(sess.Cookies), "csrf_token_present", sess.CSRFToken != "")

	httpFetcher, err := fetch.NewHTTPFetcher(sess, appCfg.BaseURL, appCfg.UserAgent,
		time.Duration(appCfg.FetchTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to build HTTP fetcher: %w", err)
	}

	renderer := fetch.NewRenderer(fetch.RenderOptions{
		UserAgent:   appCfg.UserAgent,
		WaitTimeout: time.Duration(appCfg.RenderTimeout) * time.Second,
	})
	defer renderer.Close()
	if err := renderer.SeedCookies(sess); err != nil {
		slog.Warn("Failed to seed browser cookies, rendered fetches may hit the login wall", "error", err)
	}

	retry := fetch.DefaultRetryPolicy()
	if appCfg.MaxRetries > 0 {
		retry.MaxAttempts = appCfg.MaxRetries
	}
	fetcher := fetch.NewComposite(httpFetcher, renderer, retry)

	stats := crawler.NewStats()
	if err := runRepo.CreateRun(stats.RunID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to register run: %w", err)
	}

	orch := crawler.NewOrchestrator(
		crawler.Options{
			BaseURL:        appCfg.BaseURL,
			Delay:          time.Duration(appCfg.RequestDelay * float64(time.Second)),
			DefaultPageCap: appCfg.MaxPagesPerCat,
		},
		sourceCache, fetcher,
		crawler.NewExtractor(),
		crawler.NewFilter(appCfg.MinContentScore),
		crawler.NewFeedDiscoverer(appCfg.UserAgent),
		recordRepo, stats,
	)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(api.NewHandler(stats, recordRepo, sourceCache), appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		slog.Info("Status API listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Status API error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Interrupt received, finishing the item in flight", "signal", sig.String())
		orch.Interrupt()
		sig = <-sigChan
		slog.Warn("Second interrupt, exiting immediately", "signal", sig.String())
		os.Exit(130)
	}()

	runErr := orch.Run(ctx)

	// The summary and the run row are written on every exit path,
	// including interruption and failure.
	if path, err := stats.WriteSummary(appCfg.SummaryDir); err != nil {
		slog.Error("Failed to write run summary", "error", err)
	} else {
		slog.Info("Run summary written", "path", path)
	}
	if err := runRepo.FinishRun(stats.RunID, stats.Snapshot()); err != nil {
		slog.Error("Failed to finalize run row", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Status API shutdown error", "error", err)
	}

	if runErr != nil {
		return runErr
	}

	snap := stats.Snapshot()
	slog.Info("Crawler finished",
		"state", snap.State,
		"pages_visited", snap.PagesVisited,
		"items_accepted", snap.ItemsAccepted,
		"items_dropped", snap.ItemsDropped,
		"comments", snap.Comments,
		"errors", snap.Errors)

	return nil
}
