package orderbook

import (
	"fmt"

	"mmsim/internal/domain"
	"mmsim/pkg/quant"
)

// OrderRequest is a limit order submitted by the strategy under test.
type OrderRequest struct {
	Side      domain.Side
	Price     quant.Price
	Volume    quant.Volume
	MinVolume quant.Volume
	Duration  int // days
}

// Validate checks the request against market rules.
func (r OrderRequest) Validate() error {
	if r.Side != domain.SideBuy && r.Side != domain.SideSell {
		return fmt.Errorf("side %q: %w", r.Side, domain.ErrInvalidOrder)
	}
	if r.Price <= 0 {
		return fmt.Errorf("price %s: %w", r.Price, domain.ErrInvalidOrder)
	}
	if r.Volume <= 0 {
		return fmt.Errorf("volume %d: %w", r.Volume, domain.ErrInvalidOrder)
	}
	if r.MinVolume < 0 || r.MinVolume > r.Volume {
		return fmt.Errorf("min volume %d: %w", r.MinVolume, domain.ErrInvalidOrder)
	}
	if !domain.IsAllowedDuration(r.Duration) {
		return fmt.Errorf("duration %d: %w", r.Duration, domain.ErrInvalidOrder)
	}
	return nil
}

// PlaceStrategyOrder inserts a strategy order at its price priority, reports
// the creation and then matches. The order may fill before this returns; the
// returned copy reflects its state after matching.
func (b *Book) PlaceStrategyOrder(now quant.SimTime, req OrderRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}
	o := b.newOrder(now, req.Side, req.Price, req.Volume, max(req.MinVolume, 1), req.Duration, domain.OriginStrategy)
	b.insertSorted(o)
	b.notify(now, domain.ActionCreated, o, 0)
	b.Match(now)
	return *o, nil
}

// CancelStrategyOrder removes a resting strategy order.
func (b *Book) CancelStrategyOrder(now quant.SimTime, orderID int64) (domain.Order, error) {
	o, pos := b.find(orderID, domain.OriginStrategy)
	if o == nil {
		return domain.Order{}, fmt.Errorf("type %d order %d: %w", b.cfg.TypeID, orderID, domain.ErrOrderNotFound)
	}
	removeAt(b.sideOf(o.Side), pos)
	mustTransition(o, domain.OrderStatusCancelled)
	b.notify(now, domain.ActionCancelled, o, 0)
	return *o, nil
}

// ChangeStrategyOrder reprices a resting strategy order, resets its issue
// time and moves it behind every order of better or equal price. The change
// is reported before matching.
func (b *Book) ChangeStrategyOrder(now quant.SimTime, orderID int64, price quant.Price) (domain.Order, error) {
	if price <= 0 {
		return domain.Order{}, fmt.Errorf("price %s: %w", price, domain.ErrInvalidOrder)
	}
	o, pos := b.find(orderID, domain.OriginStrategy)
	if o == nil {
		return domain.Order{}, fmt.Errorf("type %d order %d: %w", b.cfg.TypeID, orderID, domain.ErrOrderNotFound)
	}
	removeAt(b.sideOf(o.Side), pos)
	oldPrice := o.Price
	o.Price = price
	o.Reissue(now)
	b.insertSorted(o)
	b.notify(now, domain.ActionChanged, o, oldPrice)
	b.Match(now)
	return *o, nil
}

// BuyAtMarket lifts the best ask until volume is bought or no asks remain.
// An empty result means there was no liquidity.
func (b *Book) BuyAtMarket(now quant.SimTime, volume quant.Volume) []domain.Fill {
	return b.crossAtMarket(now, domain.SideBuy, volume)
}

// SellAtMarket hits the best bid until volume is sold or no bids remain.
func (b *Book) SellAtMarket(now quant.SimTime, volume quant.Volume) []domain.Fill {
	return b.crossAtMarket(now, domain.SideSell, volume)
}

func (b *Book) crossAtMarket(now quant.SimTime, side domain.Side, volume quant.Volume) []domain.Fill {
	var fills []domain.Fill
	for volume > 0 {
		if !b.insertTradeOrder(now, side, volume, domain.OriginStrategy) {
			break
		}
		trades := b.Match(now)
		if len(trades) == 0 {
			break
		}
		for _, t := range trades {
			fills = append(fills, domain.Fill{Price: t.Price, Volume: t.Volume})
			volume -= t.Volume
		}
	}
	return fills
}
