package oms

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmsim/internal/domain"
	"mmsim/internal/event"
	"mmsim/internal/infra"
	"mmsim/internal/orderbook"
	"mmsim/pkg/quant"
)

type manualClock struct{ now quant.SimTime }

func (c *manualClock) Now() quant.SimTime { return c.now }

type memJournal struct {
	trades  []domain.Trade
	actions []domain.OrderAction
}

func (j *memJournal) RecordTrade(t domain.Trade)       { j.trades = append(j.trades, t) }
func (j *memJournal) OrderAction(a domain.OrderAction) { j.actions = append(j.actions, a) }

var testFees = Fees{
	BrokerRate: decimal.RequireFromString("0.01"),
	TaxRate:    decimal.RequireFromString("0.02"),
	ChangeFee:  decimal.RequireFromString("1"),
}

// setup returns an OMS with one book whose empty sides price exactly at 100.00.
func setup(t *testing.T) (*OMS, *orderbook.Book, *manualClock, *infra.Metrics) {
	t.Helper()
	clock := &manualClock{}
	m := &infra.Metrics{}
	o := New(Config{Fees: testFees}, clock, m)
	b, err := o.NewBook(orderbook.DefaultConfig(34, 10000, 0, 1), nil)
	require.NoError(t, err)
	return o, b, clock, m
}

func restAsk(b *orderbook.Book, now quant.SimTime, volume quant.Volume) domain.Order {
	return b.InsertSyntheticOrder(now, event.NewOrderArrival{Side: domain.SideSell, Duration: 90, MinVolume: 1, Volume: volume})
}

func assertDone(t *testing.T, order *TrackedOrder) {
	t.Helper()
	select {
	case <-order.Done():
	default:
		t.Fatalf("order %d should be done", order.OrderID())
	}
}

func TestOMS_NewBook(t *testing.T) {
	o, _, _, _ := setup(t)
	_, err := o.NewBook(orderbook.DefaultConfig(34, 100, 1, 1), nil)
	assert.Error(t, err)

	_, err = o.NewBook(orderbook.DefaultConfig(12, 100, 1, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 34}, o.TypeIDs())
}

func TestOMS_CrossingOrderFillsImmediately(t *testing.T) {
	o, b, _, m := setup(t)
	ask := restAsk(b, 0, 5)
	require.Equal(t, quant.Price(10000), ask.Price)

	order, err := o.Order(34, orderbook.OrderRequest{Side: domain.SideBuy, Price: 10100, Volume: 5, MinVolume: 1, Duration: 1})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFilled, order.Status())
	assert.Equal(t, quant.Volume(0), order.VolumeRemaining())
	assert.Equal(t, "-505.00", order.Gross().StringFixed(2))
	assert.Equal(t, "5.05", order.BrokerFees().StringFixed(2))
	assert.True(t, order.SalesTax().IsZero())
	assert.Equal(t, "-510.05", order.Net().StringFixed(2))
	assert.Equal(t, []domain.Fill{{Price: 10100, Volume: 5}}, order.Fills())
	assertDone(t, order)

	_, tracked := o.Tracked(34, order.OrderID())
	assert.False(t, tracked)
	assert.Equal(t, 0, o.OpenOrders())
	assert.Equal(t, 0, b.Len())

	st, ok := o.Stats(34)
	require.True(t, ok)
	assert.Equal(t, int64(1), st.Trades)
	assert.Equal(t, int64(5), st.Volume)
	vwap, ok := st.VWAP()
	require.True(t, ok)
	assert.Equal(t, "101.00", vwap.StringFixed(2))

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.TradesRecorded)
	assert.Equal(t, uint64(1), snap.OrdersFilled)
}

func TestOMS_ModifyThrottle(t *testing.T) {
	o, _, clock, m := setup(t)
	order, err := o.Order(34, orderbook.OrderRequest{Side: domain.SideBuy, Price: 9000, Volume: 5, Duration: 7})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, order.Status())

	clock.now = 100
	err = order.Cancel()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModifyTooSoon)
	assert.True(t, domain.IsRetriable(err))
	var tooSoon *domain.ModifyTooSoonError
	require.True(t, errors.As(err, &tooSoon))
	assert.Equal(t, quant.SimTime(100), tooSoon.Elapsed)
	assert.Equal(t, DefaultModifyLimit, tooSoon.Limit)
	assert.Equal(t, domain.OrderStatusOpen, order.Status())

	clock.now = 299
	assert.ErrorIs(t, o.Change(order, 9100), domain.ErrModifyTooSoon)
	assert.Equal(t, uint64(2), m.Snapshot().ModifyRejected)

	clock.now = 301
	require.NoError(t, order.Cancel())
	assert.Equal(t, domain.OrderStatusCancelled, order.Status())
	assertDone(t, order)
	assert.Equal(t, 0, o.OpenOrders())

	assert.NoError(t, order.Cancel(), "closed handles ignore cancel")
	assert.ErrorIs(t, o.Cancel(order), domain.ErrIllegalStateTransition)
}

func TestOMS_ThrottleBoundary(t *testing.T) {
	o, _, clock, _ := setup(t)
	clock.now = 1000
	order, err := o.Order(34, orderbook.OrderRequest{Side: domain.SideSell, Price: 11000, Volume: 1, Duration: 1})
	require.NoError(t, err)

	clock.now = 1000 + DefaultModifyLimit
	assert.NoError(t, order.Change(10900))
}

func TestOMS_ChangeAccounting(t *testing.T) {
	o, b, clock, _ := setup(t)
	order, err := o.Order(34, orderbook.OrderRequest{Side: domain.SideSell, Price: 10100, Volume: 10, Duration: 30})
	require.NoError(t, err)
	assert.Equal(t, "10.10", order.BrokerFees().StringFixed(2))

	clock.now = 400
	require.NoError(t, order.Change(10200))
	assert.Equal(t, quant.Price(10200), order.Price())
	assert.Equal(t, quant.SimTime(400), order.IssueTime())
	assert.Equal(t, quant.SimTime(0), order.OriginalIssueTime())
	assert.Equal(t, "11.20", order.BrokerFees().StringFixed(2), "change fee plus fee on the increase")

	clock.now = 700
	require.NoError(t, order.Change(10150))
	assert.Equal(t, "12.20", order.BrokerFees().StringFixed(2), "decrease only pays the change fee")

	clock.now = 800
	assert.ErrorIs(t, order.Change(10000), domain.ErrModifyTooSoon)

	snap := b.Snapshot(800)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, quant.Price(10150), snap.Asks[0].Price)
}

func TestOMS_PartialFillsAndSalesTax(t *testing.T) {
	o, b, clock, _ := setup(t)
	order, err := o.Order(34, orderbook.OrderRequest{Side: domain.SideSell, Price: 10000, Volume: 10, Duration: 1})
	require.NoError(t, err)

	clock.now = 60
	fills, err := o.Buy(34, 4)
	require.NoError(t, err)
	assert.Equal(t, []domain.Fill{{Price: 10000, Volume: 4}}, fills)

	assert.Equal(t, quant.Volume(6), order.VolumeRemaining())
	assert.True(t, order.IsOpen())
	assert.Equal(t, "400.00", order.Gross().StringFixed(2))
	assert.Equal(t, "8.00", order.SalesTax().StringFixed(2))
	assert.Equal(t, "382.00", order.Net().StringFixed(2), "400 - 10 broker - 8 tax")

	fills, err = o.Buy(34, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.Fill{{Price: 10000, Volume: 6}}, fills, "stops when asks run out")
	assert.Equal(t, domain.OrderStatusFilled, order.Status())
	assert.Equal(t, "1000.00", order.Gross().StringFixed(2))
	assert.Equal(t, 0, b.Len())

	fills, err = o.Sell(34, 3)
	require.NoError(t, err)
	assert.Empty(t, fills)

	_, err = o.Buy(34, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOMS_Expiry(t *testing.T) {
	o, b, _, _ := setup(t)
	order, err := o.Order(34, orderbook.OrderRequest{Side: domain.SideBuy, Price: 9000, Volume: 5, Duration: 1})
	require.NoError(t, err)

	b.ExpireDue(quant.Day - 1)
	assert.True(t, order.IsOpen())

	b.ExpireDue(quant.Day)
	assert.Equal(t, domain.OrderStatusExpired, order.Status())
	assertDone(t, order)
	assert.Equal(t, 0, o.OpenOrders())
}

func TestOMS_Errors(t *testing.T) {
	o, _, _, _ := setup(t)

	_, err := o.Order(99, orderbook.OrderRequest{Side: domain.SideBuy, Price: 1, Volume: 1, Duration: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownType)
	_, err = o.Buy(99, 1)
	assert.ErrorIs(t, err, domain.ErrUnknownType)
	_, err = o.CurrentBook(99)
	assert.ErrorIs(t, err, domain.ErrUnknownType)
	assert.ErrorIs(t, o.OnNextSnapshot(99, func(domain.Snapshot) {}), domain.ErrUnknownType)

	_, err = o.Order(34, orderbook.OrderRequest{Side: domain.SideBuy, Price: 1, Volume: 1, Duration: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Equal(t, 0, o.OpenOrders())
}

func TestOMS_SnapshotDelivery(t *testing.T) {
	o, b, _, _ := setup(t)
	restAsk(b, 0, 5)

	_, ok := o.LatestSnapshot(34)
	assert.False(t, ok)

	var once, all []quant.SimTime
	require.NoError(t, o.OnNextSnapshot(34, func(s domain.Snapshot) { once = append(once, s.Time) }))
	o.Subscribe(func(s domain.Snapshot) { all = append(all, s.Time) })

	b.TakeSnapshot(300)
	b.TakeSnapshot(600)

	assert.Equal(t, []quant.SimTime{300}, once)
	assert.Equal(t, []quant.SimTime{300, 600}, all)
	latest, ok := o.LatestSnapshot(34)
	require.True(t, ok)
	assert.Equal(t, quant.SimTime(600), latest.Time)
	assert.Len(t, latest.Asks, 1)

	current, err := o.CurrentBook(34)
	require.NoError(t, err)
	assert.Len(t, current.Asks, 1)
}

func TestOMS_Journal(t *testing.T) {
	o, b, _, _ := setup(t)
	j := &memJournal{}
	o.SetJournal(j)
	restAsk(b, 0, 5)

	_, err := o.Order(34, orderbook.OrderRequest{Side: domain.SideBuy, Price: 10000, Volume: 2, Duration: 1})
	require.NoError(t, err)

	require.Len(t, j.trades, 1)
	var kinds []domain.ActionKind
	for _, a := range j.actions {
		kinds = append(kinds, a.Action)
	}
	assert.Equal(t, []domain.ActionKind{domain.ActionCreated, domain.ActionCreated, domain.ActionFilled}, kinds)
}

func TestOMS_Summary(t *testing.T) {
	o, b, _, _ := setup(t)
	_, err := o.NewBook(orderbook.DefaultConfig(35, 500, 10, 1), nil)
	require.NoError(t, err)
	restAsk(b, 0, 5)
	_, err = o.Order(34, orderbook.OrderRequest{Side: domain.SideBuy, Price: 10000, Volume: 5, Duration: 1})
	require.NoError(t, err)

	summary := o.Summary()
	assert.Contains(t, summary, "OMS Trading Summary")
	lines := strings.Split(summary, "\n")
	var row34, row35 string
	for _, l := range lines {
		switch {
		case strings.HasPrefix(strings.TrimSpace(l), "34 |"):
			row34 = l
		case strings.HasPrefix(strings.TrimSpace(l), "35 |"):
			row35 = l
		}
	}
	assert.Contains(t, row34, "100.00")
	assert.NotContains(t, row34, "n/a")
	assert.Contains(t, row35, "n/a")
}

func TestStats_VWAPGuard(t *testing.T) {
	var st Stats
	_, ok := st.VWAP()
	assert.False(t, ok)

	st.add(domain.Trade{Price: 10000, Volume: 1})
	st.add(domain.Trade{Price: 10300, Volume: 2})
	vwap, ok := st.VWAP()
	require.True(t, ok)
	assert.Equal(t, "102.00", vwap.StringFixed(2))
	assert.Equal(t, quant.Price(10000), st.Low)
	assert.Equal(t, quant.Price(10300), st.High)
}
