package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mmsim/internal/calibration"
	"mmsim/internal/engine"
	"mmsim/internal/infra"
	"mmsim/internal/infra/feed"
	"mmsim/internal/infra/storage"
	"mmsim/internal/oms"
	"mmsim/internal/orderbook"
	"mmsim/internal/strategy"
	"mmsim/pkg/quant"
)

// Bootstrap orchestrates the simulator startup sequence and owns every
// component of one run.
type Bootstrap struct {
	Config      *infra.Config
	Metrics     *infra.Metrics
	Storage     *storage.Storage
	Calibration calibration.Sets

	Sequencer *engine.Sequencer
	OMS       *oms.OMS
	Base      *strategy.Base
	Strategy  strategy.Strategy
	Hub       *feed.Hub

	Run     *storage.SimRun
	Journal *storage.Journal
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize performs core system initialization (config, logger, DB, calibration, books)
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping market-making simulator...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	return b.InitializeWith(cfg)
}

// InitializeWith builds every component from an already loaded config.
func (b *Bootstrap) InitializeWith(cfg *infra.Config) error {
	b.Config = cfg

	// 3. Initialize Storage (DB)
	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		b.Storage = store
		slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.DBPath))
	}

	// 4. Load Calibration
	if err := b.loadCalibration(); err != nil {
		return err
	}
	slog.Info("✅ Calibration loaded", slog.Int("types", len(b.Calibration)))

	// 5. Build the simulation
	if err := b.build(); err != nil {
		return err
	}
	slog.Info("✅ Simulation ready",
		slog.Int64("seed", cfg.Simulation.Seed),
		slog.Int("days", cfg.Simulation.DurationDays),
		slog.String("strategy", cfg.Strategy.Name))

	// 6. Optional snapshot feed
	if cfg.Feed.Enabled {
		b.Hub = feed.NewHub(b.Metrics)
		if err := b.Hub.Start(cfg.Feed.Addr); err != nil {
			return fmt.Errorf("start snapshot feed: %w", err)
		}
		b.OMS.Subscribe(b.Hub.Publish)
	}

	return nil
}

func (b *Bootstrap) loadCalibration() error {
	cfg := b.Config
	switch cfg.Calibration.Source {
	case "db":
		ids := make([]int64, 0, len(cfg.Types))
		for _, t := range cfg.Types {
			ids = append(ids, t.TypeID)
		}
		sets, err := calibration.FromStore(b.Storage, ids...)
		if err != nil {
			return err
		}
		b.Calibration = sets
	default:
		sets, err := calibration.LoadFile(cfg.Calibration.Path)
		if err != nil {
			return err
		}
		b.Calibration = sets
		// keep the store in sync so later runs can read from it
		if b.Storage != nil {
			if err := calibration.Import(b.Storage, sets); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bootstrap) build() error {
	cfg := b.Config
	sim := cfg.Simulation

	b.Sequencer = engine.NewSequencer(engine.Config{
		SnapshotPeriod: quant.SimTime(sim.SnapshotPeriodSec),
		WarmupOrders:   sim.WarmupOrders,
		DumpFile:       sim.DumpFile,
	}, nil, b.Metrics)

	b.OMS = oms.New(oms.Config{
		Fees: oms.Fees{
			BrokerRate: cfg.Fees.BrokerRate,
			TaxRate:    cfg.Fees.TaxRate,
			ChangeFee:  cfg.Fees.OrderChangeFee,
		},
		ModifyLimit: quant.SimTime(cfg.Fees.ModifyLimitSec),
	}, b.Sequencer, b.Metrics)

	for i, t := range cfg.Types {
		cal, err := b.Calibration.Require(t.TypeID)
		if err != nil {
			return err
		}
		// each book gets its own seed so adding a type leaves the others unchanged
		bookCfg := orderbook.Config{
			TypeID:        t.TypeID,
			RefPrice:      quant.PriceFromDecimal(t.RefPrice),
			RefSpread:     quant.PriceFromDecimal(t.RefSpread),
			Seed:          sim.Seed + int64(i)*1_000_003,
			VolumeBins:    sim.VolumeBins,
			ArrivalBins:   sim.ArrivalBins,
			ArrivalJitter: quant.SimTime(sim.ArrivalJitterSec),
			ExpiryPoll:    quant.SimTime(sim.ExpiryPollSec),
		}
		book, err := b.OMS.NewBook(bookCfg, cal)
		if err != nil {
			return err
		}
		if err := b.Sequencer.AddBook(book); err != nil {
			return err
		}
	}

	b.Base = strategy.NewBase(b.OMS, b.Sequencer, cfg.Fees.TaxRate)
	strat, err := b.newStrategy()
	if err != nil {
		return err
	}
	b.Strategy = strat
	b.Sequencer.SetStrategy(strat)
	return nil
}

func (b *Bootstrap) newStrategy() (strategy.Strategy, error) {
	sc := b.Config.Strategy
	switch sc.Name {
	case "market_maker":
		return strategy.NewMarketMaker(b.Base, strategy.MarketMakerConfig{
			TypeIDs:   b.OMS.TypeIDs(),
			Volume:    quant.Volume(sc.Volume),
			Duration:  sc.Duration,
			MinSpread: quant.PriceFromDecimal(sc.MinSpread),
		})
	case "trend":
		return strategy.NewTrend(b.Base, b.OMS.TypeIDs()[0], quant.Volume(sc.Volume), sc.ShortPeriod, sc.LongPeriod), nil
	default:
		return nil, nil
	}
}

// Simulate runs the loop for the configured duration or until ctx is
// cancelled, then persists the journal. A cancelled run is not an error.
func (b *Bootstrap) Simulate(ctx context.Context) error {
	if b.Storage != nil {
		run, err := b.Storage.CreateRun(b.Config.Simulation.Seed, b.Config.Strategy.Name, b.Config.Simulation.DurationDays)
		if err != nil {
			return err
		}
		b.Run = run
		b.Journal = b.Storage.NewJournal(run.ID)
		b.OMS.SetJournal(b.Journal)
		slog.Info("📝 Journaling run", slog.String("run_id", run.ID))
	}

	defer func() {
		// the sequencer re-panics after dumping state; record the halt first
		if r := recover(); r != nil {
			b.persist(storage.RunStatusHalted)
			panic(r)
		}
	}()

	started := time.Now()
	horizon := quant.Days(b.Config.Simulation.DurationDays)
	runErr := b.Sequencer.Run(ctx, horizon)
	if errors.Is(runErr, context.Canceled) {
		slog.Warn("Simulation interrupted", slog.String("now", b.Sequencer.Now().String()))
		runErr = nil
	}

	slog.Info("✨ Simulation finished",
		slog.String("virtual", b.Sequencer.Now().String()),
		slog.Uint64("events", b.Sequencer.Processed()),
		slog.Duration("wall", time.Since(started)))

	status := storage.RunStatusFinished
	if runErr != nil {
		status = storage.RunStatusHalted
	}
	if err := b.persist(status); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (b *Bootstrap) persist(status string) error {
	if b.Storage == nil || b.Run == nil {
		return nil
	}
	if err := b.Journal.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	if err := b.Storage.SaveLedger(b.Run.ID, LedgerLogs(b.Base.Ledger())); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return b.Storage.FinishRun(b.Run.ID, status, int64(b.Sequencer.Now()), b.Sequencer.Processed())
}

// LedgerLogs converts strategy ledger rows for storage.
func LedgerLogs(rows []strategy.LedgerRow) []storage.LedgerLog {
	out := make([]storage.LedgerLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.LedgerLog{
			Time:            int64(r.Time),
			TypeID:          r.TypeID,
			OrderID:         r.OrderID,
			Status:          string(r.Status),
			Side:            string(r.Side),
			Price:           int64(r.Price),
			Volume:          int64(r.Volume),
			VolumeRemaining: int64(r.VolumeRemaining),
			Gross:           r.Gross,
			SalesTax:        r.SalesTax,
			BrokerFee:       r.BrokerFee,
		})
	}
	return out
}

// Report writes the trading summaries of the run.
func (b *Bootstrap) Report(w io.Writer) {
	fmt.Fprintln(w, b.OMS.Summary())
	if b.Strategy != nil {
		fmt.Fprintln(w, b.Base.Summary())
	}
	m := b.Metrics.Snapshot()
	fmt.Fprintf(w, "events=%d snapshots=%d trades=%d strategy_fills=%d modify_rejected=%d errors=%d\n",
		m.EventsProcessed, m.SnapshotsTaken, m.TradesRecorded, m.OrdersFilled, m.ModifyRejected, m.ErrorsTotal)
}

// Shutdown releases the feed and the database.
func (b *Bootstrap) Shutdown(ctx context.Context) {
	if b.Hub != nil {
		if err := b.Hub.Shutdown(ctx); err != nil {
			slog.Warn("Feed shutdown failed", slog.Any("error", err))
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Database close failed", slog.Any("error", err))
		}
	}
}
