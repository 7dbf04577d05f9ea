// Package orderbook implements the synthetic limit order book for one asset type.
//
// Each side is a slice of orders in priority order: bids by descending price,
// asks by ascending price, equal prices by arrival. Background orders and trades
// are generated from samplers calibrated on historical data; strategy orders go
// through the same insertion and matching rules. The book is single-threaded:
// callers must not use it from more than one goroutine.
package orderbook

import (
	"fmt"
	"math"

	"mmsim/internal/domain"
	"mmsim/internal/sampler"
	"mmsim/pkg/quant"
)

const (
	// DefaultVolumeBins is the histogram resolution for volume samplers.
	DefaultVolumeBins = 1000
	// DefaultArrivalBins is the histogram resolution for inter-arrival samplers.
	DefaultArrivalBins = 10000
	// DefaultArrivalJitter is the maximum random shift added to each inter-arrival sample.
	DefaultArrivalJitter = 5 * quant.Minute
	// DefaultExpiryPoll is how far ahead expiry is scheduled when the book is empty.
	DefaultExpiryPoll = 5 * quant.Minute

	// placementBias is the geometric parameter used to pick positions in a side.
	placementBias = 0.5
)

// Listener receives everything a book reports. The OMS is the production listener.
type Listener interface {
	RecordTrade(trade domain.Trade)
	OrderAction(action domain.OrderAction)
	NewSnapshot(snap domain.Snapshot)
}

// Config parametrizes one book.
type Config struct {
	TypeID    int64
	RefPrice  quant.Price // anchors the first order on an empty side
	RefSpread quant.Price
	Seed      int64

	VolumeBins    int
	ArrivalBins   int
	ArrivalJitter quant.SimTime
	ExpiryPoll    quant.SimTime
}

// DefaultConfig returns a config with the default sampler resolution.
func DefaultConfig(typeID int64, refPrice, refSpread quant.Price, seed int64) Config {
	return Config{
		TypeID:        typeID,
		RefPrice:      refPrice,
		RefSpread:     refSpread,
		Seed:          seed,
		VolumeBins:    DefaultVolumeBins,
		ArrivalBins:   DefaultArrivalBins,
		ArrivalJitter: DefaultArrivalJitter,
		ExpiryPoll:    DefaultExpiryPoll,
	}
}

// Option customizes a Book.
type Option func(*Book)

// WithRand replaces the seeded positional randomness (tests script draws with it).
func WithRand(r sampler.Rand) Option {
	return func(b *Book) { b.rng = r }
}

// Book is the synthetic order book for one asset type.
type Book struct {
	cfg      Config
	bids     []*domain.Order
	asks     []*domain.Order
	nextID   int64
	listener Listener
	rng      sampler.Rand
	gens     generators

	snapshot *domain.Snapshot
}

// New builds a book. cal may be nil, in which case no stochastic stream is active
// and the book only reacts to direct calls.
func New(cfg Config, cal *domain.Calibration, listener Listener, opts ...Option) (*Book, error) {
	if cfg.RefPrice <= 0 {
		return nil, fmt.Errorf("type %d: reference price must be positive", cfg.TypeID)
	}
	if cfg.RefSpread < 0 {
		return nil, fmt.Errorf("type %d: reference spread must not be negative", cfg.TypeID)
	}
	if cfg.VolumeBins <= 0 {
		cfg.VolumeBins = DefaultVolumeBins
	}
	if cfg.ArrivalBins <= 0 {
		cfg.ArrivalBins = DefaultArrivalBins
	}
	if cfg.ExpiryPoll <= 0 {
		cfg.ExpiryPoll = DefaultExpiryPoll
	}
	if listener == nil {
		listener = NewRecorder()
	}

	b := &Book{
		cfg:      cfg,
		nextID:   1,
		listener: listener,
		rng:      sampler.NewRand(cfg.Seed),
	}
	for _, opt := range opts {
		opt(b)
	}

	if cal != nil {
		if err := cal.Validate(); err != nil {
			return nil, fmt.Errorf("type %d: %w", cfg.TypeID, err)
		}
		gens, err := buildGenerators(cfg, cal)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", cfg.TypeID, err)
		}
		b.gens = gens
	}
	return b, nil
}

// TypeID returns the asset type this book serves.
func (b *Book) TypeID() int64 { return b.cfg.TypeID }

// Len returns the number of resting orders on both sides.
func (b *Book) Len() int { return len(b.bids) + len(b.asks) }

// Depth returns the number of resting orders on one side.
func (b *Book) Depth(side domain.Side) int { return len(*b.sideOf(side)) }

// BestBid returns the best bid price.
func (b *Book) BestBid() (quant.Price, bool) {
	if len(b.bids) == 0 {
		return 0, false
	}
	return b.bids[0].Price, true
}

// BestAsk returns the best ask price.
func (b *Book) BestAsk() (quant.Price, bool) {
	if len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].Price, true
}

// Snapshot captures all resting orders at the given virtual time.
func (b *Book) Snapshot(now quant.SimTime) domain.Snapshot {
	snap := domain.Snapshot{
		TypeID: b.cfg.TypeID,
		Time:   now,
		Bids:   make([]domain.Order, len(b.bids)),
		Asks:   make([]domain.Order, len(b.asks)),
	}
	for i, o := range b.bids {
		snap.Bids[i] = *o
	}
	for i, o := range b.asks {
		snap.Asks[i] = *o
	}
	return snap
}

// TakeSnapshot captures the book, keeps it as the current snapshot and reports it.
func (b *Book) TakeSnapshot(now quant.SimTime) domain.Snapshot {
	snap := b.Snapshot(now)
	b.snapshot = &snap
	b.listener.NewSnapshot(snap)
	return snap
}

// LastSnapshot returns the most recent periodic snapshot.
func (b *Book) LastSnapshot() (domain.Snapshot, bool) {
	if b.snapshot == nil {
		return domain.Snapshot{}, false
	}
	return *b.snapshot, true
}

// Verify checks the resting-book invariants: sorted sides, no transient
// trade orders, sane volumes, and an uncrossed spread.
func (b *Book) Verify() error {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		orders := *b.sideOf(side)
		for i, o := range orders {
			if o.TradeOrder {
				return fmt.Errorf("type %d: trade order %d resting on %s side", b.cfg.TypeID, o.OrderID, side)
			}
			if o.VolumeRemaining <= 0 || o.VolumeRemaining > o.Volume {
				return fmt.Errorf("type %d: order %d has remaining volume %d of %d", b.cfg.TypeID, o.OrderID, o.VolumeRemaining, o.Volume)
			}
			if !o.IsOpen() {
				return fmt.Errorf("type %d: order %d resting with status %s", b.cfg.TypeID, o.OrderID, o.Status)
			}
			if i > 0 && better(side, o.Price, orders[i-1].Price) {
				return fmt.Errorf("type %d: %s side out of order at %d", b.cfg.TypeID, side, i)
			}
		}
	}
	if len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].Price >= b.asks[0].Price {
		return fmt.Errorf("type %d: crossed book bid %s >= ask %s", b.cfg.TypeID, b.bids[0].Price, b.asks[0].Price)
	}
	return nil
}

func (b *Book) sideOf(side domain.Side) *[]*domain.Order {
	if side == domain.SideBuy {
		return &b.bids
	}
	return &b.asks
}

func (b *Book) newOrder(now quant.SimTime, side domain.Side, price quant.Price, volume, minVolume quant.Volume, duration int, origin domain.Origin) *domain.Order {
	o := &domain.Order{
		OrderID:         b.nextID,
		TypeID:          b.cfg.TypeID,
		Side:            side,
		Price:           price,
		Volume:          volume,
		VolumeRemaining: volume,
		MinVolume:       minVolume,
		IssueTime:       now,
		Duration:        duration,
		ExpireTime:      now + quant.Days(duration),
		Origin:          origin,
		Status:          domain.OrderStatusOpen,
	}
	b.nextID++
	return o
}

// insertSorted places an order behind every order with a better or equal price.
func (b *Book) insertSorted(o *domain.Order) int {
	orders := b.sideOf(o.Side)
	pos := 0
	for pos < len(*orders) && !better(o.Side, o.Price, (*orders)[pos].Price) {
		pos++
	}
	insertAt(orders, pos, o)
	return pos
}

func (b *Book) find(orderID int64, origin domain.Origin) (*domain.Order, int) {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		for i, o := range *b.sideOf(side) {
			if o.OrderID == orderID && o.Origin == origin && !o.TradeOrder {
				return o, i
			}
		}
	}
	return nil, -1
}

func (b *Book) notify(now quant.SimTime, kind domain.ActionKind, o *domain.Order, oldPrice quant.Price) {
	b.listener.OrderAction(domain.OrderAction{
		Time:     now,
		Action:   kind,
		TypeID:   b.cfg.TypeID,
		OrderID:  o.OrderID,
		Origin:   o.Origin,
		Side:     o.Side,
		OldPrice: oldPrice,
		Order:    *o,
	})
}

// mustTransition applies an engine-driven transition. Failure is a defect, so it halts.
func mustTransition(o *domain.Order, to domain.OrderStatus) {
	if err := o.Transition(to); err != nil {
		panic(fmt.Sprintf("ENGINE_STATE_VIOLATION: %v", err))
	}
}

func mustFill(o *domain.Order, volume quant.Volume) {
	if err := o.Fill(volume); err != nil {
		panic(fmt.Sprintf("ENGINE_STATE_VIOLATION: %v", err))
	}
}

// better reports whether price a has strictly higher priority than b on side.
func better(side domain.Side, a, b quant.Price) bool {
	if side == domain.SideBuy {
		return a > b
	}
	return a < b
}

// improve returns the price one tick ahead of p on side.
func improve(side domain.Side, p quant.Price) quant.Price {
	if side == domain.SideBuy {
		return p + quant.Tick
	}
	return p - quant.Tick
}

// worsen returns the price one tick behind p on side, never below one tick.
func worsen(side domain.Side, p quant.Price) quant.Price {
	if side == domain.SideBuy {
		return max(p-quant.Tick, quant.Tick)
	}
	return p + quant.Tick
}

// referencePrice offsets the reference price away from the spread by a random
// fraction of the reference spread, truncated to a whole tick.
func (b *Book) referencePrice(side domain.Side) quant.Price {
	sign := 1.0
	if side == domain.SideBuy {
		sign = -1.0
	}
	u := b.rng.Float64()
	ticks := math.Floor(float64(b.cfg.RefPrice) + sign*float64(b.cfg.RefSpread)*u + 1e-9)
	return max(quant.Price(ticks), quant.Tick)
}

func insertAt(orders *[]*domain.Order, pos int, o *domain.Order) {
	*orders = append(*orders, nil)
	copy((*orders)[pos+1:], (*orders)[pos:])
	(*orders)[pos] = o
}

func removeAt(orders *[]*domain.Order, pos int) *domain.Order {
	s := *orders
	o := s[pos]
	copy(s[pos:], s[pos+1:])
	s[len(s)-1] = nil
	*orders = s[:len(s)-1]
	return o
}
