package domain

import "mmsim/pkg/quant"

// Snapshot is an immutable capture of all resting orders for one asset type.
// Bids are in priority order (best first), as are Asks.
type Snapshot struct {
	TypeID int64         `json:"type_id"`
	Time   quant.SimTime `json:"time"`
	Bids   []Order       `json:"bids"`
	Asks   []Order       `json:"asks"`
}

// BestBid returns the top resting bid, if any.
func (s *Snapshot) BestBid() (Order, bool) {
	if len(s.Bids) == 0 {
		return Order{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top resting ask, if any.
func (s *Snapshot) BestAsk() (Order, bool) {
	if len(s.Asks) == 0 {
		return Order{}, false
	}
	return s.Asks[0], true
}

// Side returns the orders resting on one side.
func (s *Snapshot) Side(side Side) []Order {
	if side == SideBuy {
		return s.Bids
	}
	return s.Asks
}

// Len returns the total number of resting orders.
func (s *Snapshot) Len() int {
	return len(s.Bids) + len(s.Asks)
}
