package strategy

import (
	"log/slog"

	"mmsim/internal/domain"
	"mmsim/pkg/quant"
	"mmsim/pkg/safe"
)

// Signal is the output of a crossover detector.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

// String returns the string representation of Signal
func (s Signal) String() string {
	switch s {
	case SignalNone:
		return "NONE"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// SMACross detects short/long simple moving average crossovers.
// It is stateful and deterministic.
// Uses a ring buffer so updates do not allocate.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	// State (Ring Buffer)
	prices []int64
	head   int   // Current write position
	count  int   // Number of elements filled
	sum    int64 // Running sum for the longest period

	prevShortSMA int64
	prevLongSMA  int64
}

// NewSMACross creates a detector.
func NewSMACross(shortPeriod, longPeriod int) *SMACross {
	if shortPeriod >= longPeriod {
		panic("SMACross: shortPeriod must be less than longPeriod")
	}
	return &SMACross{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		prices:      make([]int64, longPeriod), // Fixed size allocation
	}
}

// Update feeds one price and reports a crossover, if any.
func (s *SMACross) Update(price int64) Signal {
	// 1. Update Price History (Ring Buffer)
	// If full, subtract the oldest value from sum before overwriting
	if s.count == s.longPeriod {
		s.sum = safe.SafeSub(s.sum, s.prices[s.head])
	}
	s.prices[s.head] = price
	s.sum = safe.SafeAdd(s.sum, price)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}

	// 2. Check if we have enough data
	if s.count < s.longPeriod {
		return SignalNone
	}

	// 3. Calculate SMAs
	currLongSMA := safe.SafeDiv(s.sum, int64(s.longPeriod))
	currShortSMA := s.calculateShortSMA()

	// 4. Check for Cross
	signal := SignalNone
	if s.prevShortSMA != 0 && s.prevLongSMA != 0 {
		switch {
		case s.prevShortSMA <= s.prevLongSMA && currShortSMA > currLongSMA:
			signal = SignalBuy
		case s.prevShortSMA >= s.prevLongSMA && currShortSMA < currLongSMA:
			signal = SignalSell
		}
	}

	// 5. Update State
	s.prevShortSMA = currShortSMA
	s.prevLongSMA = currLongSMA
	return signal
}

// calculateShortSMA calculates the SMA for the short period using the ring buffer.
func (s *SMACross) calculateShortSMA() int64 {
	var sum int64
	// head points to the next write slot, so head-1 is the latest
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = safe.SafeAdd(sum, s.prices[idx])
	}
	return safe.SafeDiv(sum, int64(s.shortPeriod))
}

// Midpoint returns the mid price of a snapshot in ticks, rounded down.
func Midpoint(snap domain.Snapshot) (int64, bool) {
	bid, okBid := BestBid(snap)
	ask, okAsk := BestAsk(snap)
	if !okBid || !okAsk {
		return 0, false
	}
	return (int64(bid) + int64(ask)) / 2, true
}

// Trend trades one type at market on SMA crossovers of the snapshot midpoint.
// It is the directional counterpart of MarketMaker.
type Trend struct {
	*Base
	typeID   int64
	volume   quant.Volume
	detector *SMACross
	lastSeen quant.SimTime
	seen     bool
}

// NewTrend creates a crossover trader.
func NewTrend(base *Base, typeID int64, volume quant.Volume, shortPeriod, longPeriod int) *Trend {
	return &Trend{
		Base:     base,
		typeID:   typeID,
		volume:   volume,
		detector: NewSMACross(shortPeriod, longPeriod),
	}
}

// Run feeds the latest snapshot midpoint to the detector and trades on a cross.
func (t *Trend) Run(now quant.SimTime) error {
	snap, ok := t.OMS.LatestSnapshot(t.typeID)
	if !ok || (t.seen && snap.Time == t.lastSeen) {
		return nil
	}
	t.seen, t.lastSeen = true, snap.Time

	mid, ok := Midpoint(snap)
	if !ok {
		return nil
	}

	var fills []domain.Fill
	var err error
	switch t.detector.Update(mid) {
	case SignalBuy:
		fills, err = t.MarketBuy(t.typeID, t.volume)
	case SignalSell:
		fills, err = t.MarketSell(t.typeID, t.volume)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	slog.Debug("STRATEGY_ACTION", slog.Int64("type_id", t.typeID), slog.String("now", now.String()), slog.Int("fills", len(fills)))
	return nil
}
