package domain

import "mmsim/pkg/quant"

// Trigger tags which kind of event caused a match.
type Trigger string

const (
	TriggerNone      Trigger = ""
	TriggerBuyTrade  Trigger = "buy_trade"
	TriggerSellTrade Trigger = "sell_trade"
)

// Trade is an immutable record of one match between a bid and an ask.
type Trade struct {
	Time      quant.SimTime `json:"time"`
	TypeID    int64         `json:"type_id"`
	Volume    quant.Volume  `json:"volume"`
	Price     quant.Price   `json:"price"`
	BidID     int64         `json:"bid_id"`
	AskID     int64         `json:"ask_id"`
	BidOrigin Origin        `json:"bid_origin"`
	AskOrigin Origin        `json:"ask_origin"`
	Trigger   Trigger       `json:"trigger,omitempty"`
}

// ActionKind enumerates order lifecycle notifications emitted by a book.
type ActionKind string

const (
	ActionCreated   ActionKind = "created"
	ActionChanged   ActionKind = "changed"
	ActionFilled    ActionKind = "filled"
	ActionCancelled ActionKind = "cancelled"
	ActionExpired   ActionKind = "expired"
)

// OrderAction is a lifecycle notification for one order.
// Order carries a copy of the order after the action was applied.
type OrderAction struct {
	Time     quant.SimTime `json:"time"`
	Action   ActionKind    `json:"action"`
	TypeID   int64         `json:"type_id"`
	OrderID  int64         `json:"order_id"`
	Origin   Origin        `json:"origin"`
	Side     Side          `json:"side"`
	OldPrice quant.Price   `json:"old_price,omitempty"`
	Order    Order         `json:"order"`
}

// Fill is one (price, volume) execution returned by a market-style order.
type Fill struct {
	Price  quant.Price  `json:"price"`
	Volume quant.Volume `json:"volume"`
}
