package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmsim/internal/calibration"
	"mmsim/internal/domain"
	"mmsim/internal/infra"
	"mmsim/internal/infra/storage"
	"mmsim/pkg/quant"
)

func historicalData() *domain.Calibration {
	base := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	cal := &domain.Calibration{}
	for i := 0; i < 300; i++ {
		cal.Trades = append(cal.Trades, domain.TradeRecord{
			Time:   base.Add(time.Duration(i*613) * time.Second),
			Buy:    i%2 == 0,
			Volume: int64(1 + i%9),
		})
	}
	actions := []domain.OrderActionType{domain.OrderActionNew, domain.OrderActionNew, domain.OrderActionChange, domain.OrderActionCancel}
	for i := 0; i < 600; i++ {
		rec := domain.OrderActionRecord{
			Time:      base.Add(time.Duration(i*307) * time.Second),
			Action:    actions[i%len(actions)],
			Buy:       i%3 != 0,
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

func testConfig(t *testing.T, strategyName string, withStorage bool) *infra.Config {
	t.Helper()
	dir := t.TempDir()
	calPath := filepath.Join(dir, "calibration.json")
	require.NoError(t, calibration.WriteFile(calPath, calibration.Sets{34: historicalData(), 35: historicalData()}))

	doc := fmt.Sprintf(`
simulation:
  seed: 11
  duration_days: 2
  warmup_orders: 50
fees:
  broker_rate: "0.01"
  tax_rate: "0.02"
  order_change_fee: "1"
types:
  - {type_id: 34, ref_price: "101.00", ref_spread: "2.00"}
  - {type_id: 35, ref_price: "5.50", ref_spread: "0.10"}
calibration:
  path: %q
storage:
  enabled: %t
  db_path: %q
strategy:
  name: %s
  volume: 5
  duration: 1
  min_spread: "0.05"
  short_period: 3
  long_period: 5
logging:
  dir: %q
`, calPath, withStorage, filepath.Join(dir, "mmsim.db"), strategyName, filepath.Join(dir, "logs"))

	cfg, err := infra.ParseConfig([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func newTestBootstrap(t *testing.T, cfg *infra.Config) *Bootstrap {
	t.Helper()
	b := NewBootstrap()
	b.Metrics = &infra.Metrics{}
	require.NoError(t, b.InitializeWith(cfg))
	t.Cleanup(func() { b.Shutdown(context.Background()) })
	return b
}

func TestBootstrap_MarketMakerRun(t *testing.T) {
	cfg := testConfig(t, "market_maker", true)
	b := newTestBootstrap(t, cfg)

	assert.Equal(t, []int64{34, 35}, b.OMS.TypeIDs())
	require.NotNil(t, b.Strategy)

	require.NoError(t, b.Simulate(context.Background()))
	assert.Equal(t, quant.Days(2), b.Sequencer.Now())
	assert.NotZero(t, b.Sequencer.Processed())

	run, err := b.Storage.GetRun(b.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusFinished, run.Status)
	assert.Equal(t, int64(quant.Days(2)), run.SimSeconds)

	trades, err := b.Storage.Trades(b.Run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, trades)

	actions, err := b.Storage.OrderActions(b.Run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, actions)

	ledger, err := b.Storage.Ledger(b.Run.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, len(b.Base.Ledger()))

	// the calibration file was mirrored into the store
	ids, err := b.Storage.CalibrationTypes()
	require.NoError(t, err)
	assert.Equal(t, []int64{34, 35}, ids)

	var out bytes.Buffer
	b.Report(&out)
	assert.Contains(t, out.String(), "OMS Trading Summary")
	assert.Contains(t, out.String(), "Strategy Trading Summary")
}

func TestBootstrap_Deterministic(t *testing.T) {
	run := func() (quant.SimTime, uint64, string) {
		b := newTestBootstrap(t, testConfig(t, "market_maker", false))
		require.NoError(t, b.Simulate(context.Background()))
		return b.Sequencer.Now(), b.Sequencer.Processed(), b.OMS.Summary()
	}

	now1, n1, sum1 := run()
	now2, n2, sum2 := run()
	assert.Equal(t, now1, now2)
	assert.Equal(t, n1, n2)
	assert.Equal(t, sum1, sum2)
}

func TestBootstrap_NoStrategy(t *testing.T) {
	b := newTestBootstrap(t, testConfig(t, "none", false))
	assert.Nil(t, b.Strategy)

	require.NoError(t, b.Simulate(context.Background()))
	assert.Nil(t, b.Run)
	assert.Empty(t, b.Base.Ledger())

	var out bytes.Buffer
	b.Report(&out)
	assert.NotContains(t, out.String(), "Strategy Trading Summary")
}

func TestBootstrap_Cancelled(t *testing.T) {
	b := newTestBootstrap(t, testConfig(t, "trend", true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.Simulate(ctx))
	assert.Less(t, b.Sequencer.Now(), quant.Days(2))

	run, err := b.Storage.GetRun(b.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusFinished, run.Status)
}

func TestBootstrap_CalibrationFromStore(t *testing.T) {
	cfg := testConfig(t, "none", true)
	first := newTestBootstrap(t, cfg)
	first.Shutdown(context.Background())

	cfg.Calibration.Source = "db"
	cfg.Calibration.Path = ""
	require.NoError(t, cfg.Validate())

	b := newTestBootstrap(t, cfg)
	assert.Equal(t, []int64{34, 35}, b.Calibration.TypeIDs())
	assert.Len(t, b.Calibration[34].Trades, 300)
}

func TestBootstrap_MissingCalibration(t *testing.T) {
	cfg := testConfig(t, "none", false)
	cfg.Types = append(cfg.Types, infra.TypeConfig{TypeID: 36, RefPrice: cfg.Types[0].RefPrice})

	b := NewBootstrap()
	b.Metrics = &infra.Metrics{}
	err := b.InitializeWith(cfg)
	assert.ErrorIs(t, err, domain.ErrUnknownType)
}
