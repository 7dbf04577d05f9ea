package strategy

import (
	"fmt"
	"log/slog"

	"mmsim/internal/domain"
	"mmsim/internal/oms"
	"mmsim/internal/orderbook"
	"mmsim/pkg/quant"
)

// MarketMakerConfig parametrizes MarketMaker.
type MarketMakerConfig struct {
	TypeIDs   []int64
	Volume    quant.Volume
	Duration  int         // days
	MinSpread quant.Price // never quote inside this distance from the opposite best
}

// MarketMaker keeps one bid and one ask at the top of each book, as long as
// the spread stays wide enough, and replaces each side once it closes.
type MarketMaker struct {
	*Base
	cfg  MarketMakerConfig
	bids map[int64]*oms.TrackedOrder
	asks map[int64]*oms.TrackedOrder
}

// NewMarketMaker creates the example market maker.
func NewMarketMaker(base *Base, cfg MarketMakerConfig) (*MarketMaker, error) {
	if cfg.Volume <= 0 {
		return nil, fmt.Errorf("market maker volume %d: %w", cfg.Volume, domain.ErrInvalidOrder)
	}
	if !domain.IsAllowedDuration(cfg.Duration) {
		return nil, fmt.Errorf("market maker duration %d: %w", cfg.Duration, domain.ErrInvalidOrder)
	}
	if cfg.MinSpread < quant.Tick {
		cfg.MinSpread = quant.Tick
	}
	return &MarketMaker{
		Base: base,
		cfg:  cfg,
		bids: make(map[int64]*oms.TrackedOrder),
		asks: make(map[int64]*oms.TrackedOrder),
	}, nil
}

// Run quotes or promotes both sides of every configured type.
func (m *MarketMaker) Run(now quant.SimTime) error {
	for _, typeID := range m.cfg.TypeIDs {
		snap, ok := m.OMS.LatestSnapshot(typeID)
		if !ok {
			continue
		}
		bid, okBid := BestBid(snap)
		ask, okAsk := BestAsk(snap)
		if !okBid || !okAsk {
			continue
		}
		// the best bid may never come closer than MinSpread to the best ask, and vice versa
		if err := m.quote(typeID, domain.SideBuy, snap, m.bids, bid+quant.Tick, ask-m.cfg.MinSpread); err != nil {
			return err
		}
		if err := m.quote(typeID, domain.SideSell, snap, m.asks, ask-quant.Tick, bid+m.cfg.MinSpread); err != nil {
			return err
		}
	}
	return nil
}

func (m *MarketMaker) quote(typeID int64, side domain.Side, snap domain.Snapshot, orders map[int64]*oms.TrackedOrder, price, limit quant.Price) error {
	if order, ok := orders[typeID]; ok && order.IsOpen() {
		_, res, err := m.PromoteOrder(order, snap, limit)
		if err != nil {
			return err
		}
		if res == PromoteChanged {
			slog.Debug("quote promoted", slog.Int64("type_id", typeID), slog.String("side", string(side)), slog.Int64("order_id", order.OrderID()))
		}
		return nil
	}

	if limit < quant.Tick || (side.IsBuy() && price > limit) || (!side.IsBuy() && price < limit) {
		return nil // spread too tight to quote
	}
	order, err := m.TrackedOrder(typeID, orderbook.OrderRequest{
		Side:      side,
		Price:     price,
		Volume:    m.cfg.Volume,
		MinVolume: 1,
		Duration:  m.cfg.Duration,
	})
	if err != nil {
		return err
	}
	orders[typeID] = order
	return nil
}
