package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mmsim/internal/app"
	"mmsim/internal/calibration"
	"mmsim/internal/domain"
	"mmsim/internal/infra"
	"mmsim/internal/infra/feed"
	"mmsim/internal/infra/storage"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", infra.DefaultConfigPath, "path to the YAML config")
	pprofAddr := flag.String("pprof", "", "serve pprof on this address (e.g. localhost:6060)")
	importPath := flag.String("import", "", "import a calibration JSON file into the database and exit")
	watchURL := flag.String("watch", "", "follow a running simulator's snapshot feed (ws://host:port/snapshots)")
	flag.Parse()

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *watchURL != "":
		watch(ctx, *watchURL)
		return
	case *importPath != "":
		if err := importCalibration(*configPath, *importPath); err != nil {
			slog.Error("❌ Calibration import failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	// 1. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bootstrap.Shutdown(shutdownCtx)
	}()

	slog.InfoContext(ctx, "✨ Simulator running. Press Ctrl+C to stop early.")

	// 3. Run the simulation (the hotpath loop runs on this goroutine)
	err := bootstrap.Simulate(ctx)

	// 4. Summaries
	bootstrap.Report(os.Stdout)
	if err != nil {
		slog.Error("❌ Simulation failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("👋 Shutting down gracefully...")
}

func importCalibration(configPath, path string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(infra.NewLogger(cfg))
	if !cfg.Storage.Enabled {
		return &domain.ConfigError{Field: "storage.enabled", Err: fmt.Errorf("import needs a database")}
	}

	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sets, err := calibration.LoadFile(path)
	if err != nil {
		return err
	}
	if err := calibration.Import(store, sets); err != nil {
		return err
	}
	slog.Info("✅ Calibration imported", slog.Int("types", len(sets)), slog.String("db", cfg.Storage.DBPath))
	return nil
}

func watch(ctx context.Context, url string) {
	sub := feed.NewSubscriber(url, 256)
	sub.Connect(ctx)
	defer sub.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-sub.Snapshots():
			bid, ask := "-", "-"
			if o, ok := snap.BestBid(); ok {
				bid = o.Price.String()
			}
			if o, ok := snap.BestAsk(); ok {
				ask = o.Price.String()
			}
			fmt.Printf("%s type=%d bid=%s ask=%s depth=%d/%d\n",
				snap.Time, snap.TypeID, bid, ask, len(snap.Bids), len(snap.Asks))
		}
	}
}
