// Package oms is the order management system between the strategy under test
// and the synthetic books. It owns the books, tracks strategy orders, enforces
// the modify throttle, keeps per-type trade statistics and brokers snapshot
// delivery.
package oms

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"mmsim/internal/domain"
	"mmsim/internal/infra"
	"mmsim/internal/orderbook"
	"mmsim/pkg/quant"
)

// DefaultModifyLimit is the minimum age of an order before it may be changed or cancelled.
const DefaultModifyLimit = 5 * quant.Minute

// Clock reports the virtual time. The sequencer is the production clock.
type Clock interface {
	Now() quant.SimTime
}

// Journal receives every trade and order action, for audit.
type Journal interface {
	RecordTrade(trade domain.Trade)
	OrderAction(action domain.OrderAction)
}

// Fees are the market's transaction costs.
type Fees struct {
	BrokerRate decimal.Decimal // fraction of order value charged at placement
	TaxRate    decimal.Decimal // fraction of sell proceeds
	ChangeFee  decimal.Decimal // flat fee per price change
}

// Config parametrizes the OMS.
type Config struct {
	Fees        Fees
	ModifyLimit quant.SimTime
}

type orderKey struct {
	typeID  int64
	orderID int64
}

// OMS implements orderbook.Listener for every book it owns.
// It must only be used from the scheduler goroutine.
type OMS struct {
	cfg     Config
	clock   Clock
	metrics *infra.Metrics
	journal Journal

	books   map[int64]*orderbook.Book
	typeIDs []int64
	stats   map[int64]*Stats
	tracked map[orderKey]*TrackedOrder

	// set while PlaceStrategyOrder runs, so the creation notification can be captured
	placing bool
	created *TrackedOrder

	latest      map[int64]domain.Snapshot
	waiting     map[int64][]func(domain.Snapshot)
	subscribers []func(domain.Snapshot)
}

// New creates an OMS with no books.
func New(cfg Config, clock Clock, metrics *infra.Metrics) *OMS {
	if cfg.ModifyLimit <= 0 {
		cfg.ModifyLimit = DefaultModifyLimit
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &OMS{
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		books:   make(map[int64]*orderbook.Book),
		stats:   make(map[int64]*Stats),
		tracked: make(map[orderKey]*TrackedOrder),
		latest:  make(map[int64]domain.Snapshot),
		waiting: make(map[int64][]func(domain.Snapshot)),
	}
}

// SetJournal installs the audit journal.
func (o *OMS) SetJournal(j Journal) {
	o.journal = j
}

// NewBook creates a book reporting to this OMS and registers it.
func (o *OMS) NewBook(cfg orderbook.Config, cal *domain.Calibration, opts ...orderbook.Option) (*orderbook.Book, error) {
	if _, ok := o.books[cfg.TypeID]; ok {
		return nil, fmt.Errorf("type %d: book already registered", cfg.TypeID)
	}
	b, err := orderbook.New(cfg, cal, o, opts...)
	if err != nil {
		return nil, err
	}
	o.books[cfg.TypeID] = b
	o.typeIDs = append(o.typeIDs, cfg.TypeID)
	slices.Sort(o.typeIDs)
	o.stats[cfg.TypeID] = &Stats{}
	return b, nil
}

// TypeIDs returns the registered asset types in ascending order.
func (o *OMS) TypeIDs() []int64 {
	return slices.Clone(o.typeIDs)
}

func (o *OMS) book(typeID int64) (*orderbook.Book, error) {
	b, ok := o.books[typeID]
	if !ok {
		return nil, fmt.Errorf("type %d: %w", typeID, domain.ErrUnknownType)
	}
	return b, nil
}

// Order places a strategy limit order and returns its tracked handle. The
// handle may already be filled when Order returns.
func (o *OMS) Order(typeID int64, req orderbook.OrderRequest) (*TrackedOrder, error) {
	b, err := o.book(typeID)
	if err != nil {
		return nil, err
	}

	o.placing, o.created = true, nil
	_, err = b.PlaceStrategyOrder(o.clock.Now(), req)
	created := o.created
	o.placing, o.created = false, nil
	if err != nil {
		return nil, err
	}
	if created == nil {
		panic(fmt.Sprintf("ENGINE_STATE_VIOLATION: type %d: strategy order created without notification", typeID))
	}
	return created, nil
}

// Change reprices an open tracked order. It fails with a ModifyTooSoonError
// inside the throttle window.
func (o *OMS) Change(t *TrackedOrder, price quant.Price) error {
	if err := o.checkModify(t, domain.OrderStatusOpen); err != nil {
		return err
	}
	b, err := o.book(t.typeID)
	if err != nil {
		return err
	}
	_, err = b.ChangeStrategyOrder(o.clock.Now(), t.orderID, price)
	return err
}

// Cancel removes an open tracked order from its book. It fails with a
// ModifyTooSoonError inside the throttle window.
func (o *OMS) Cancel(t *TrackedOrder) error {
	if err := o.checkModify(t, domain.OrderStatusCancelled); err != nil {
		return err
	}
	b, err := o.book(t.typeID)
	if err != nil {
		return err
	}
	_, err = b.CancelStrategyOrder(o.clock.Now(), t.orderID)
	return err
}

func (o *OMS) checkModify(t *TrackedOrder, to domain.OrderStatus) error {
	if !t.IsOpen() {
		return &domain.IllegalTransitionError{OrderID: t.orderID, From: t.status, To: to}
	}
	elapsed := o.clock.Now() - t.issueTime
	if elapsed < o.cfg.ModifyLimit {
		o.metrics.RecordModifyRejected()
		return &domain.ModifyTooSoonError{OrderID: t.orderID, Elapsed: elapsed, Limit: o.cfg.ModifyLimit}
	}
	return nil
}

// Buy lifts asks at market. An empty result means there was no liquidity.
func (o *OMS) Buy(typeID int64, volume quant.Volume) ([]domain.Fill, error) {
	b, err := o.book(typeID)
	if err != nil {
		return nil, err
	}
	if volume <= 0 {
		return nil, fmt.Errorf("volume %d: %w", volume, domain.ErrInvalidOrder)
	}
	return b.BuyAtMarket(o.clock.Now(), volume), nil
}

// Sell hits bids at market.
func (o *OMS) Sell(typeID int64, volume quant.Volume) ([]domain.Fill, error) {
	b, err := o.book(typeID)
	if err != nil {
		return nil, err
	}
	if volume <= 0 {
		return nil, fmt.Errorf("volume %d: %w", volume, domain.ErrInvalidOrder)
	}
	return b.SellAtMarket(o.clock.Now(), volume), nil
}

// Tracked looks up a tracked order that is still open.
func (o *OMS) Tracked(typeID, orderID int64) (*TrackedOrder, bool) {
	t, ok := o.tracked[orderKey{typeID, orderID}]
	return t, ok
}

// OpenOrders returns the number of tracked open orders.
func (o *OMS) OpenOrders() int {
	return len(o.tracked)
}

// RecordTrade updates statistics and applies fills to tracked orders.
func (o *OMS) RecordTrade(trade domain.Trade) {
	if st, ok := o.stats[trade.TypeID]; ok {
		st.add(trade)
	}
	o.metrics.RecordTrade()
	if o.journal != nil {
		o.journal.RecordTrade(trade)
	}

	for _, id := range []int64{trade.BidID, trade.AskID} {
		t, ok := o.tracked[orderKey{trade.TypeID, id}]
		if !ok {
			continue
		}
		if err := t.applyFill(trade.Volume, trade.Price, o.cfg.Fees.TaxRate); err != nil {
			panic(fmt.Sprintf("ENGINE_STATE_VIOLATION: %v", err))
		}
	}
}

// OrderAction follows the lifecycle of strategy orders.
func (o *OMS) OrderAction(action domain.OrderAction) {
	slog.Debug("ORDER",
		slog.Int64("type_id", action.TypeID),
		slog.Int64("order_id", action.OrderID),
		slog.String("action", string(action.Action)),
		slog.String("origin", string(action.Origin)),
	)
	if o.journal != nil {
		o.journal.OrderAction(action)
	}
	if action.Origin != domain.OriginStrategy || action.Order.TradeOrder {
		return
	}

	key := orderKey{action.TypeID, action.OrderID}
	if action.Action == domain.ActionCreated {
		if o.placing {
			t := newTrackedOrder(o, action.Order, o.cfg.Fees.BrokerRate)
			o.tracked[key] = t
			o.created = t
		}
		return
	}

	t, ok := o.tracked[key]
	if !ok {
		return
	}
	var err error
	switch action.Action {
	case domain.ActionChanged:
		err = t.applyChange(action.Time, action.Order.Price, o.cfg.Fees)
	case domain.ActionFilled:
		if t.IsOpen() {
			err = &domain.IllegalTransitionError{OrderID: t.orderID, From: t.status, To: domain.OrderStatusFilled}
		}
		o.metrics.RecordOrderFilled()
		delete(o.tracked, key)
	case domain.ActionCancelled:
		err = t.finish(domain.OrderStatusCancelled)
		delete(o.tracked, key)
	case domain.ActionExpired:
		err = t.finish(domain.OrderStatusExpired)
		delete(o.tracked, key)
	}
	if err != nil {
		panic(fmt.Sprintf("ENGINE_STATE_VIOLATION: %v", err))
	}
}

// NewSnapshot stores the snapshot and delivers it to waiters and subscribers.
func (o *OMS) NewSnapshot(snap domain.Snapshot) {
	o.latest[snap.TypeID] = snap

	waiters := o.waiting[snap.TypeID]
	delete(o.waiting, snap.TypeID)
	for _, fn := range waiters {
		fn(snap)
	}
	for _, fn := range o.subscribers {
		fn(snap)
	}
}

// OnNextSnapshot registers fn to receive the next snapshot of a type, once.
func (o *OMS) OnNextSnapshot(typeID int64, fn func(domain.Snapshot)) error {
	if _, err := o.book(typeID); err != nil {
		return err
	}
	o.waiting[typeID] = append(o.waiting[typeID], fn)
	return nil
}

// Subscribe registers fn to receive every snapshot of every type.
func (o *OMS) Subscribe(fn func(domain.Snapshot)) {
	o.subscribers = append(o.subscribers, fn)
}

// LatestSnapshot returns the most recent periodic snapshot of a type.
func (o *OMS) LatestSnapshot(typeID int64) (domain.Snapshot, bool) {
	snap, ok := o.latest[typeID]
	return snap, ok
}

// CurrentBook captures the live book of a type at the current virtual time.
func (o *OMS) CurrentBook(typeID int64) (domain.Snapshot, error) {
	b, err := o.book(typeID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return b.Snapshot(o.clock.Now()), nil
}
