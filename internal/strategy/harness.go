package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"mmsim/internal/domain"
	"mmsim/internal/oms"
	"mmsim/internal/orderbook"
	"mmsim/pkg/quant"
)

// BestBid returns the best bid price of a snapshot.
func BestBid(snap domain.Snapshot) (quant.Price, bool) {
	o, ok := snap.BestBid()
	return o.Price, ok
}

// BestAsk returns the best ask price of a snapshot.
func BestAsk(snap domain.Snapshot) (quant.Price, bool) {
	o, ok := snap.BestAsk()
	return o.Price, ok
}

// PromoteResult tells what PromoteOrder did.
type PromoteResult int

const (
	PromoteNone      PromoteResult = iota // still at the top, closed, or nothing to beat
	PromoteChanged                        // repriced one tick ahead of the top
	PromoteThrottled                      // reprice refused by the modify throttle
	PromoteLimited                        // required price is beyond the limit
)

// String returns the string representation of PromoteResult
func (r PromoteResult) String() string {
	switch r {
	case PromoteNone:
		return "NONE"
	case PromoteChanged:
		return "CHANGED"
	case PromoteThrottled:
		return "THROTTLED"
	case PromoteLimited:
		return "LIMITED"
	default:
		return "UNKNOWN"
	}
}

// NoLimit disables the price limit of PromoteOrder.
const NoLimit quant.Price = 0

// LedgerRow is one entry of the strategy ledger.
type LedgerRow struct {
	Time            quant.SimTime      `json:"time"`
	TypeID          int64              `json:"type_id"`
	OrderID         int64              `json:"order_id,omitempty"` // zero for market executions
	Status          domain.OrderStatus `json:"status"`
	Side            domain.Side        `json:"side"`
	Price           quant.Price        `json:"price"`
	Volume          quant.Volume       `json:"volume"`
	VolumeRemaining quant.Volume       `json:"volume_remaining"`
	Gross           decimal.Decimal    `json:"gross"`
	SalesTax        decimal.Decimal    `json:"sales_tax"`
	BrokerFee       decimal.Decimal    `json:"broker_fee"`
}

// Net is gross minus fees and tax.
func (r LedgerRow) Net() decimal.Decimal {
	return r.Gross.Sub(r.BrokerFee).Sub(r.SalesTax)
}

type marketExecution struct {
	seq  int
	time quant.SimTime
	row  LedgerRow
}

// Base is the harness embedded by strategies under test. It remembers every
// order it placed, so the ledger and P&L cover the whole run.
type Base struct {
	OMS     *oms.OMS
	clock   oms.Clock
	taxRate decimal.Decimal

	orders []*oms.TrackedOrder
	market []marketExecution
}

// NewBase creates a harness over an OMS. taxRate is applied to market sells.
func NewBase(o *oms.OMS, clock oms.Clock, taxRate decimal.Decimal) *Base {
	return &Base{OMS: o, clock: clock, taxRate: taxRate}
}

// TrackedOrder places a limit order and remembers it for reporting.
func (b *Base) TrackedOrder(typeID int64, req orderbook.OrderRequest) (*oms.TrackedOrder, error) {
	order, err := b.OMS.Order(typeID, req)
	if err != nil {
		return nil, err
	}
	b.orders = append(b.orders, order)
	return order, nil
}

// Orders returns every order placed through the harness, in placement order.
func (b *Base) Orders() []*oms.TrackedOrder {
	return slices.Clone(b.orders)
}

// PromoteOrder reprices order one tick ahead of the top of its side when the
// snapshot shows another order in front. A non-zero limit caps a bid price
// from above and an ask price from below. Throttle rejections are reported as
// PromoteThrottled, not as errors.
func (b *Base) PromoteOrder(order *oms.TrackedOrder, snap domain.Snapshot, limit quant.Price) (quant.Price, PromoteResult, error) {
	if !order.IsOpen() {
		return 0, PromoteNone, nil
	}
	side := snap.Side(order.Side())
	if len(side) == 0 || side[0].OrderID == order.OrderID() {
		return 0, PromoteNone, nil
	}

	price := side[0].Price + quant.Tick
	if !order.Side().IsBuy() {
		price = max(side[0].Price-quant.Tick, quant.Tick)
	}
	if limit != NoLimit && ((order.Side().IsBuy() && price > limit) || (!order.Side().IsBuy() && price < limit)) {
		return price, PromoteLimited, nil
	}

	err := order.Change(price)
	switch {
	case err == nil:
		return price, PromoteChanged, nil
	case errors.Is(err, domain.ErrModifyTooSoon):
		slog.Debug("promote throttled", slog.Int64("order_id", order.OrderID()), slog.Any("error", err))
		return price, PromoteThrottled, nil
	default:
		return price, PromoteNone, err
	}
}

// MarketBuy buys at market and records the execution in the ledger.
func (b *Base) MarketBuy(typeID int64, volume quant.Volume) ([]domain.Fill, error) {
	fills, err := b.OMS.Buy(typeID, volume)
	if err != nil {
		return nil, err
	}
	b.recordMarket(typeID, domain.SideBuy, volume, fills)
	return fills, nil
}

// MarketSell sells at market and records the execution in the ledger.
func (b *Base) MarketSell(typeID int64, volume quant.Volume) ([]domain.Fill, error) {
	fills, err := b.OMS.Sell(typeID, volume)
	if err != nil {
		return nil, err
	}
	b.recordMarket(typeID, domain.SideSell, volume, fills)
	return fills, nil
}

func (b *Base) recordMarket(typeID int64, side domain.Side, volume quant.Volume, fills []domain.Fill) {
	if len(fills) == 0 {
		return
	}
	row := LedgerRow{
		Time:     b.clock.Now(),
		TypeID:   typeID,
		Status:   domain.OrderStatusFilled,
		Side:     side,
		Volume:   volume,
		Gross:    decimal.Zero,
		SalesTax: decimal.Zero,
	}
	filled := quant.Volume(0)
	for _, f := range fills {
		filled += f.Volume
		row.Gross = row.Gross.Add(f.Price.Decimal().Mul(f.Volume.Decimal()))
	}
	row.VolumeRemaining = volume - filled
	// average execution price, truncated to a tick
	row.Price = quant.PriceFromDecimal(row.Gross.Div(filled.Decimal()))
	if side.IsBuy() {
		row.Gross = row.Gross.Neg()
	} else {
		row.SalesTax = row.Gross.Mul(b.taxRate)
	}
	b.market = append(b.market, marketExecution{seq: len(b.orders), time: row.Time, row: row})
}

// Ledger returns every order and market execution sorted by original issue time.
func (b *Base) Ledger() []LedgerRow {
	type entry struct {
		time quant.SimTime
		seq  int
		row  LedgerRow
	}
	entries := make([]entry, 0, len(b.orders)+len(b.market))
	for i, o := range b.orders {
		entries = append(entries, entry{time: o.OriginalIssueTime(), seq: i, row: LedgerRow{
			Time:            o.OriginalIssueTime(),
			TypeID:          o.TypeID(),
			OrderID:         o.OrderID(),
			Status:          o.Status(),
			Side:            o.Side(),
			Price:           o.Price(),
			Volume:          o.Volume(),
			VolumeRemaining: o.VolumeRemaining(),
			Gross:           o.Gross(),
			SalesTax:        o.SalesTax(),
			BrokerFee:       o.BrokerFees(),
		}})
	}
	for _, m := range b.market {
		entries = append(entries, entry{time: m.time, seq: m.seq, row: m.row})
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		if a.time != b.time {
			return int(a.time - b.time)
		}
		return a.seq - b.seq
	})

	rows := make([]LedgerRow, len(entries))
	for i, e := range entries {
		rows[i] = e.row
	}
	return rows
}

// PnL is the net result of the whole ledger.
func (b *Base) PnL() decimal.Decimal {
	total := decimal.Zero
	for _, r := range b.Ledger() {
		total = total.Add(r.Net())
	}
	return total
}

// Summary renders the ledger with a running P&L column.
func (b *Base) Summary() string {
	var sb strings.Builder
	rule := strings.Repeat("-", 98)
	fmt.Fprintf(&sb, "%s\n%s%s\n\n", rule, strings.Repeat(" ", (98-24)/2), "Strategy Trading Summary")
	fmt.Fprintf(&sb, "%10s | %-25s | %8s | %10s | %15s | %15s\n", "Type", "Status", "Side", "Price", "Volume", "PNL")
	fmt.Fprintf(&sb, "%s\n", rule)
	pnl := decimal.Zero
	for _, r := range b.Ledger() {
		pnl = pnl.Add(r.Net())
		fmt.Fprintf(&sb, "%10d | %-25s | %8s | %10s | %15d | %15s\n", r.TypeID, r.Status, r.Side, r.Price, r.Volume, pnl.StringFixed(2))
	}
	return sb.String()
}
