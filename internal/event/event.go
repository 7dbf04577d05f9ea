// Package event defines the scheduled events that drive a simulation and the
// priority queue that orders them.
package event

import (
	"mmsim/internal/domain"
	"mmsim/pkg/quant"
)

// Kind identifies an event stream. The numeric order is the tie-break order
// for events scheduled at the same virtual time.
type Kind int

const (
	KindSnapshot Kind = iota
	KindTrade
	KindNewOrder
	KindChangeOrder
	KindCancelOrder
	KindExpiry
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "SNAPSHOT"
	case KindTrade:
		return "TRADE"
	case KindNewOrder:
		return "NEW_ORDER"
	case KindChangeOrder:
		return "CHANGE_ORDER"
	case KindCancelOrder:
		return "CANCEL_ORDER"
	case KindExpiry:
		return "EXPIRY"
	default:
		return "UNKNOWN"
	}
}

// Arrival is a sampled stochastic event waiting to be applied to a book.
type Arrival interface {
	Kind() Kind
	// After is the sampled inter-arrival delay.
	After() quant.SimTime
}

// TradeArrival is a historical-style trade crossing the spread.
// Side is the aggressor: a buy trade lifts the best ask.
type TradeArrival struct {
	Delay  quant.SimTime
	Side   domain.Side
	Volume quant.Volume
}

func (TradeArrival) Kind() Kind             { return KindTrade }
func (a TradeArrival) After() quant.SimTime { return a.Delay }

// NewOrderArrival is a new synthetic limit order.
type NewOrderArrival struct {
	Delay     quant.SimTime
	Side      domain.Side
	Duration  int // days
	MinVolume quant.Volume
	Volume    quant.Volume
	TopOfBook bool
}

func (NewOrderArrival) Kind() Kind             { return KindNewOrder }
func (a NewOrderArrival) After() quant.SimTime { return a.Delay }

// ChangeArrival reprices a resting synthetic order to the top of its side.
type ChangeArrival struct {
	Delay quant.SimTime
	Side  domain.Side
}

func (ChangeArrival) Kind() Kind             { return KindChangeOrder }
func (a ChangeArrival) After() quant.SimTime { return a.Delay }

// CancelArrival removes a resting synthetic order.
type CancelArrival struct {
	Delay quant.SimTime
	Side  domain.Side
}

func (CancelArrival) Kind() Kind             { return KindCancelOrder }
func (a CancelArrival) After() quant.SimTime { return a.Delay }

// Event is one pending entry of the scheduler.
// Arrival is nil for snapshot and expiry events.
type Event struct {
	At      quant.SimTime
	Kind    Kind
	TypeID  int64
	Seq     uint64 // insertion order, assigned by the queue
	Gen     uint64 // expiry generation; stale expiries are skipped
	Arrival Arrival
}

// Before is the total order used by the queue: time, kind, type id, insertion.
func (e *Event) Before(o *Event) bool {
	if e.At != o.At {
		return e.At < o.At
	}
	if e.Kind != o.Kind {
		return e.Kind < o.Kind
	}
	if e.TypeID != o.TypeID {
		return e.TypeID < o.TypeID
	}
	return e.Seq < o.Seq
}
