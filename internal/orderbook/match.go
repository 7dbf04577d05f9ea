package orderbook

import (
	"log/slog"

	"mmsim/internal/domain"
	"mmsim/pkg/quant"
)

// Match trades the book until the spread is no longer crossed, then purges
// any transient trade orders. Every trade is reported to the listener before
// the orders involved are filled.
func (b *Book) Match(now quant.SimTime) []domain.Trade {
	var trades []domain.Trade
	for len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].Price >= b.asks[0].Price {
		bid, ask := b.bids[0], b.asks[0]

		trigger := domain.TriggerNone
		switch {
		case bid.TradeOrder:
			trigger = domain.TriggerBuyTrade
		case ask.TradeOrder:
			trigger = domain.TriggerSellTrade
		}

		trade := domain.Trade{
			Time:      now,
			TypeID:    b.cfg.TypeID,
			Volume:    min(bid.VolumeRemaining, ask.VolumeRemaining),
			Price:     max(bid.Price, ask.Price),
			BidID:     bid.OrderID,
			AskID:     ask.OrderID,
			BidOrigin: bid.Origin,
			AskOrigin: ask.Origin,
			Trigger:   trigger,
		}
		slog.Debug("TRADE",
			slog.Int64("type_id", trade.TypeID),
			slog.String("price", trade.Price.String()),
			slog.Int64("volume", int64(trade.Volume)),
			slog.String("trigger", string(trigger)),
		)
		b.listener.RecordTrade(trade)
		trades = append(trades, trade)

		mustFill(bid, trade.Volume)
		mustFill(ask, trade.Volume)
		if bid.Status == domain.OrderStatusFilled {
			removeAt(&b.bids, 0)
			b.notify(now, domain.ActionFilled, bid, 0)
		}
		if ask.Status == domain.OrderStatusFilled {
			removeAt(&b.asks, 0)
			b.notify(now, domain.ActionFilled, ask, 0)
		}
	}

	b.bids = purgeTradeOrders(b.bids)
	b.asks = purgeTradeOrders(b.asks)
	return trades
}

func purgeTradeOrders(orders []*domain.Order) []*domain.Order {
	kept := orders[:0]
	for _, o := range orders {
		if !o.TradeOrder {
			kept = append(kept, o)
		}
	}
	for i := len(kept); i < len(orders); i++ {
		orders[i] = nil
	}
	return kept
}
