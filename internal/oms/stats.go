package oms

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mmsim/internal/domain"
	"mmsim/pkg/quant"
	"mmsim/pkg/safe"
)

// Stats aggregates the trades of one asset type.
type Stats struct {
	Trades   int64
	Volume   int64
	Weighted int64 // sum of price ticks * volume
	Low      quant.Price
	High     quant.Price
}

func (s *Stats) add(t domain.Trade) {
	if s.Trades == 0 || t.Price < s.Low {
		s.Low = t.Price
	}
	if s.Trades == 0 || t.Price > s.High {
		s.High = t.Price
	}
	s.Trades = safe.SafeAdd(s.Trades, 1)
	s.Volume = safe.SafeAdd(s.Volume, int64(t.Volume))
	s.Weighted = safe.SafeAdd(s.Weighted, safe.SafeMul(int64(t.Price), int64(t.Volume)))
}

// VWAP returns the volume-weighted average price. ok is false before the first trade.
func (s Stats) VWAP() (vwap decimal.Decimal, ok bool) {
	if s.Volume == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(s.Weighted).Div(decimal.NewFromInt(s.Volume)).Shift(-2), true
}

// Stats returns the trade statistics of a type.
func (o *OMS) Stats(typeID int64) (Stats, bool) {
	st, ok := o.stats[typeID]
	if !ok {
		return Stats{}, false
	}
	return *st, true
}

// Summary renders the per-type trading summary table.
func (o *OMS) Summary() string {
	var sb strings.Builder
	rule := strings.Repeat("-", 86)
	fmt.Fprintf(&sb, "%s\n%s\n\n", rule, center("OMS Trading Summary", 86))
	fmt.Fprintf(&sb, "%10s | %10s | %15s | %12s | %12s | %12s\n", "Type ID", "Trades", "Volume", "Low", "High", "VWAP")
	fmt.Fprintf(&sb, "%s\n", rule)
	for _, typeID := range o.typeIDs {
		st := o.stats[typeID]
		low, high, vwap := "n/a", "n/a", "n/a"
		if v, ok := st.VWAP(); ok {
			low, high, vwap = st.Low.String(), st.High.String(), v.StringFixed(2)
		}
		fmt.Fprintf(&sb, "%10d | %10d | %15d | %12s | %12s | %12s\n", typeID, st.Trades, st.Volume, low, high, vwap)
	}
	return sb.String()
}

func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad/2) + s
}
