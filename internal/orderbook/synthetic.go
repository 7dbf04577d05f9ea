package orderbook

import (
	"log/slog"

	"mmsim/internal/domain"
	"mmsim/internal/event"
	"mmsim/pkg/quant"
)

// Apply handles one sampled arrival and runs the matching pass it requires.
// Cancellation cannot cross the spread, so it is the only arrival not followed by a match.
func (b *Book) Apply(now quant.SimTime, a event.Arrival) []domain.Trade {
	switch a := a.(type) {
	case event.TradeArrival:
		if !b.InsertSyntheticTrade(now, a) {
			return nil
		}
		return b.Match(now)
	case event.NewOrderArrival:
		b.InsertSyntheticOrder(now, a)
		return b.Match(now)
	case event.ChangeArrival:
		if !b.ChangeSyntheticOrder(now, a) {
			return nil
		}
		return b.Match(now)
	case event.CancelArrival:
		b.CancelSyntheticOrder(now, a)
	}
	return nil
}

// Warmup inserts count synthetic new orders to populate the book.
// It returns the number inserted, which is zero when the new-order stream is disabled.
func (b *Book) Warmup(now quant.SimTime, count int) int {
	inserted := 0
	for range count {
		a, ok := b.NextNewOrder()
		if !ok {
			break
		}
		b.Apply(now, a)
		inserted++
	}
	slog.Debug("book warmed up", slog.Int64("type_id", b.cfg.TypeID), slog.Int("orders", inserted), slog.Int("resting", b.Len()))
	return inserted
}

// InsertSyntheticOrder places a new background order and reports its creation.
//
// The first order on an empty side is priced off the reference price. A
// top-of-book request is priced one tick ahead of the current best and goes
// first. Otherwise a geometric draw picks the order to sit behind, and the
// new order is priced one tick behind it.
func (b *Book) InsertSyntheticOrder(now quant.SimTime, a event.NewOrderArrival) domain.Order {
	orders := b.sideOf(a.Side)

	var price quant.Price
	top := false
	switch {
	case len(*orders) == 0:
		price = b.referencePrice(a.Side)
	case a.TopOfBook:
		price = max(improve(a.Side, (*orders)[0].Price), quant.Tick)
		top = true
	default:
		k := min(b.rng.Geometric(placementBias), len(*orders)) - 1
		price = worsen(a.Side, (*orders)[k].Price)
	}

	o := b.newOrder(now, a.Side, price, a.Volume, a.MinVolume, a.Duration, domain.OriginSimulated)
	if top {
		insertAt(orders, 0, o)
	} else {
		b.insertSorted(o)
	}
	b.notify(now, domain.ActionCreated, o, 0)
	return *o
}

// InsertSyntheticTrade models a historical trade as a transient order at the
// best opposing price. It returns false when there is no liquidity to cross.
func (b *Book) InsertSyntheticTrade(now quant.SimTime, a event.TradeArrival) bool {
	return b.insertTradeOrder(now, a.Side, a.Volume, domain.OriginSimulated)
}

func (b *Book) insertTradeOrder(now quant.SimTime, side domain.Side, volume quant.Volume, origin domain.Origin) bool {
	opposite := *b.sideOf(side.Opposite())
	if len(opposite) == 0 || volume <= 0 {
		return false
	}
	o := b.newOrder(now, side, opposite[0].Price, volume, 1, 0, origin)
	o.ExpireTime = now
	o.TradeOrder = true
	insertAt(b.sideOf(side), 0, o)
	return true
}

// ChangeSyntheticOrder reprices a background order to the front of its side.
// Selection favors orders near the top. It returns false when nothing changed:
// the side has fewer than two orders, no background order rests there, or the
// selected order already holds the best price.
func (b *Book) ChangeSyntheticOrder(now quant.SimTime, a event.ChangeArrival) bool {
	orders := b.sideOf(a.Side)
	if len(*orders) <= 1 {
		return false
	}
	candidates := b.simulatedPositions(*orders)
	if len(candidates) == 0 {
		return false
	}

	k := min(b.rng.Geometric(placementBias), len(candidates)) - 1
	pos := candidates[k]
	best := (*orders)[0].Price
	if (*orders)[pos].Price == best {
		return false
	}

	o := removeAt(orders, pos)
	oldPrice := o.Price
	o.Price = max(improve(a.Side, best), quant.Tick)
	o.Reissue(now)
	insertAt(orders, 0, o)
	b.notify(now, domain.ActionChanged, o, oldPrice)
	return true
}

// CancelSyntheticOrder removes a background order, favoring orders near the back.
func (b *Book) CancelSyntheticOrder(now quant.SimTime, a event.CancelArrival) bool {
	orders := b.sideOf(a.Side)
	candidates := b.simulatedPositions(*orders)
	if len(candidates) == 0 {
		return false
	}

	k := max(len(candidates)-b.rng.Geometric(placementBias), 0)
	o := removeAt(orders, candidates[k])
	mustTransition(o, domain.OrderStatusCancelled)
	b.notify(now, domain.ActionCancelled, o, 0)
	return true
}

func (b *Book) simulatedPositions(orders []*domain.Order) []int {
	var pos []int
	for i, o := range orders {
		if o.Origin == domain.OriginSimulated && !o.TradeOrder {
			pos = append(pos, i)
		}
	}
	return pos
}
