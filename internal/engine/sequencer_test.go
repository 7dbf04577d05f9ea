package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmsim/internal/domain"
	"mmsim/internal/infra"
	"mmsim/internal/orderbook"
	"mmsim/internal/strategy"
	"mmsim/pkg/quant"
)

func calibration() *domain.Calibration {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cal := &domain.Calibration{}
	for i := 0; i < 100; i++ {
		cal.Trades = append(cal.Trades, domain.TradeRecord{
			Time:   base.Add(time.Duration(i*120) * time.Second),
			Buy:    i%2 == 0,
			Volume: int64(1 + i%9),
		})
	}
	actions := []domain.OrderActionType{domain.OrderActionNew, domain.OrderActionChange, domain.OrderActionNew, domain.OrderActionCancel}
	for i := 0; i < 200; i++ {
		rec := domain.OrderActionRecord{
			Time:      base.Add(time.Duration(i*60) * time.Second),
			Action:    actions[i%len(actions)],
			Buy:       i%3 == 0,
			Volume:    int64(10 + i%25),
			MinVolume: 1,
		}
		if rec.Action == domain.OrderActionNew {
			rec.Duration = domain.AllowedDurations[i%len(domain.AllowedDurations)]
			rec.TopOfBook = i%4 == 0
		}
		cal.Orders = append(cal.Orders, rec)
	}
	return cal
}

func newSequencer(t *testing.T, strat strategy.Strategy) *Sequencer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DumpFile = filepath.Join(t.TempDir(), "dump.json")
	return NewSequencer(cfg, strat, &infra.Metrics{})
}

func addBook(t *testing.T, s *Sequencer, typeID int64, cal *domain.Calibration, seed int64) *orderbook.Recorder {
	t.Helper()
	rec := orderbook.NewRecorder()
	b, err := orderbook.New(orderbook.DefaultConfig(typeID, 10000, 200, seed), cal, rec)
	require.NoError(t, err)
	require.NoError(t, s.AddBook(b))
	return rec
}

func TestSequencer_AddBook(t *testing.T) {
	s := newSequencer(t, nil)
	addBook(t, s, 1, nil, 1)

	b, err := orderbook.New(orderbook.DefaultConfig(1, 100, 1, 1), nil, nil)
	require.NoError(t, err)
	assert.Error(t, s.AddBook(b), "duplicate type")

	s.Start()
	other, err := orderbook.New(orderbook.DefaultConfig(2, 100, 1, 1), nil, nil)
	require.NoError(t, err)
	assert.Error(t, s.AddBook(other), "after start")
}

func TestSequencer_SnapshotsAndStrategyTick(t *testing.T) {
	var ticks []quant.SimTime
	s := newSequencer(t, strategy.Func(func(now quant.SimTime) error {
		ticks = append(ticks, now)
		return nil
	}))
	recA := addBook(t, s, 20, nil, 1)
	recB := addBook(t, s, 10, nil, 1)

	require.NoError(t, s.Run(context.Background(), 1000))

	assert.Equal(t, quant.SimTime(1000), s.Now())
	assert.Equal(t, []quant.SimTime{300, 600, 900}, ticks, "one tick per instant across books")
	require.Len(t, recA.Snapshots, 3)
	require.Len(t, recB.Snapshots, 3)
	assert.Equal(t, quant.SimTime(600), recB.Snapshots[1].Time)
}

func TestSequencer_StrategyOrderExpires(t *testing.T) {
	var placed domain.Order
	s := newSequencer(t, nil)
	rec := addBook(t, s, 34, nil, 1)
	s.SetStrategy(strategy.Func(func(now quant.SimTime) error {
		if now != 300 {
			return nil
		}
		b, _ := s.Book(34)
		var err error
		placed, err = b.PlaceStrategyOrder(now, orderbook.OrderRequest{Side: domain.SideBuy, Price: 9000, Volume: 5, Duration: 1})
		return err
	}))

	require.NoError(t, s.Run(context.Background(), 300+quant.Day-1))
	assert.Empty(t, rec.ActionsOf(domain.ActionExpired))

	require.NoError(t, s.Run(context.Background(), 2*quant.Day))
	expired := rec.ActionsOf(domain.ActionExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, placed.OrderID, expired[0].OrderID)
	assert.Equal(t, 300+quant.Day, expired[0].Time)
	assert.Equal(t, domain.OrderStatusExpired, expired[0].Order.Status)
}

func TestSequencer_StrategyErrors(t *testing.T) {
	t.Run("ordinary errors are logged and counted", func(t *testing.T) {
		m := &infra.Metrics{}
		s := NewSequencer(DefaultConfig(), strategy.Func(func(quant.SimTime) error {
			return domain.ErrOrderNotFound
		}), m)
		addBook(t, s, 1, nil, 1)

		require.NoError(t, s.Run(context.Background(), 900))
		assert.Equal(t, uint64(3), m.Snapshot().ErrorsTotal)
	})

	t.Run("illegal transitions stop the run", func(t *testing.T) {
		s := newSequencer(t, strategy.Func(func(quant.SimTime) error {
			return &domain.IllegalTransitionError{OrderID: 1, From: domain.OrderStatusFilled, To: domain.OrderStatusCancelled}
		}))
		addBook(t, s, 1, nil, 1)

		err := s.Run(context.Background(), 900)
		assert.ErrorIs(t, err, domain.ErrIllegalStateTransition)
		assert.Equal(t, quant.SimTime(300), s.Now())
	})
}

func TestSequencer_HaltDumpsState(t *testing.T) {
	s := newSequencer(t, strategy.Func(func(quant.SimTime) error {
		panic("boom")
	}))
	addBook(t, s, 1, nil, 1)

	assert.PanicsWithValue(t, "HALTED: boom", func() {
		_ = s.Run(context.Background(), 900)
	})
	_, err := os.Stat(s.cfg.DumpFile)
	assert.NoError(t, err)
}

func TestSequencer_ContextCancel(t *testing.T) {
	s := newSequencer(t, nil)
	addBook(t, s, 1, calibration(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, quant.Days(30))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSequencer_CalibratedRun(t *testing.T) {
	run := func() ([]domain.Trade, uint64) {
		s := newSequencer(t, nil)
		rec := addBook(t, s, 34, calibration(), 99)
		addBook(t, s, 35, calibration(), 100)
		require.NoError(t, s.Run(context.Background(), quant.Days(2)))

		b, ok := s.Book(34)
		require.True(t, ok)
		require.NoError(t, b.Verify())
		for _, snap := range rec.Snapshots {
			for _, o := range append(snap.Bids, snap.Asks...) {
				require.False(t, o.TradeOrder)
			}
		}
		return rec.Trades, s.Processed()
	}

	tradesA, eventsA := run()
	tradesB, eventsB := run()
	assert.NotEmpty(t, tradesA)
	assert.Equal(t, tradesA, tradesB)
	assert.Equal(t, eventsA, eventsB)
}
