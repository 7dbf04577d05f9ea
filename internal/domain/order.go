package domain

import (
	"mmsim/pkg/quant"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsBuy reports whether the side is the bid side.
func (s Side) IsBuy() bool { return s == SideBuy }

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// SideOf maps a buy flag to a Side.
func SideOf(buy bool) Side {
	if buy {
		return SideBuy
	}
	return SideSell
}

// Origin tells who created an order.
type Origin string

const (
	OriginSimulated Origin = "simulated"
	OriginStrategy  Origin = "strategy"
)

// OrderStatus is the lifecycle state of an order.
// Open is the only non-terminal state.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusOpen
}

// AllowedDurations lists the order durations, in days, the market accepts.
var AllowedDurations = []int{1, 3, 7, 14, 30, 90}

// IsAllowedDuration reports whether days is one of AllowedDurations.
func IsAllowedDuration(days int) bool {
	for _, d := range AllowedDurations {
		if d == days {
			return true
		}
	}
	return false
}

// Order is a resting (or transient) order on one side of a book.
// VolumeRemaining only ever decreases and equals Volume minus matched volume.
type Order struct {
	OrderID         int64         `json:"order_id"`
	TypeID          int64         `json:"type_id"`
	Side            Side          `json:"side"`
	Price           quant.Price   `json:"price"`
	Volume          quant.Volume  `json:"volume"`
	VolumeRemaining quant.Volume  `json:"volume_remaining"`
	MinVolume       quant.Volume  `json:"min_volume"`
	IssueTime       quant.SimTime `json:"issue_time"`
	Duration        int           `json:"duration"` // days
	ExpireTime      quant.SimTime `json:"expire_time"`
	Origin          Origin        `json:"origin"`
	TradeOrder      bool          `json:"trade_order"`
	Status          OrderStatus   `json:"status"`
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

// Filled returns the cumulative matched volume.
func (o *Order) Filled() quant.Volume {
	return o.Volume - o.VolumeRemaining
}

// Reissue resets issue and expiry times after a price change.
func (o *Order) Reissue(now quant.SimTime) {
	o.IssueTime = now
	o.ExpireTime = now + quant.Days(o.Duration)
}

// Fill removes volume from the order, moving it to Filled when nothing remains.
func (o *Order) Fill(volume quant.Volume) error {
	if !o.IsOpen() {
		return &IllegalTransitionError{OrderID: o.OrderID, From: o.Status, To: OrderStatusFilled}
	}
	if volume <= 0 || volume > o.VolumeRemaining {
		return &IllegalTransitionError{OrderID: o.OrderID, From: o.Status, To: OrderStatusFilled}
	}
	o.VolumeRemaining -= volume
	if o.VolumeRemaining == 0 {
		o.Status = OrderStatusFilled
	}
	return nil
}

// Transition moves an open order to a terminal status.
func (o *Order) Transition(to OrderStatus) error {
	if !o.IsOpen() || !to.IsTerminal() {
		return &IllegalTransitionError{OrderID: o.OrderID, From: o.Status, To: to}
	}
	o.Status = to
	return nil
}
