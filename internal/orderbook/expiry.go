package orderbook

import (
	"mmsim/internal/domain"
	"mmsim/pkg/quant"
)

// NextExpiry returns the earliest expire time among resting orders, or now
// plus the poll interval when the book is empty.
func (b *Book) NextExpiry(now quant.SimTime) quant.SimTime {
	if b.Len() == 0 {
		return now + b.cfg.ExpiryPoll
	}
	next := quant.SimTime(-1)
	for _, orders := range [][]*domain.Order{b.bids, b.asks} {
		for _, o := range orders {
			if next < 0 || o.ExpireTime < next {
				next = o.ExpireTime
			}
		}
	}
	return next
}

// ExpireDue removes every order whose expire time has been reached.
// Only strategy orders are reported to the listener.
func (b *Book) ExpireDue(now quant.SimTime) []domain.Order {
	var expired []domain.Order
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		orders := b.sideOf(side)
		for i := 0; i < len(*orders); {
			o := (*orders)[i]
			if o.ExpireTime > now {
				i++
				continue
			}
			removeAt(orders, i)
			mustTransition(o, domain.OrderStatusExpired)
			expired = append(expired, *o)
			if o.Origin == domain.OriginStrategy {
				b.notify(now, domain.ActionExpired, o, 0)
			}
		}
	}
	return expired
}
