package oms

import (
	"github.com/shopspring/decimal"

	"mmsim/internal/domain"
	"mmsim/pkg/quant"
)

// TrackedOrder is the OMS view of one strategy order. It carries the
// accounting for the order: broker fees, sales tax and signed gross proceeds.
// Its fields are only mutated by the OMS, from the scheduler goroutine.
type TrackedOrder struct {
	oms *OMS

	orderID   int64
	typeID    int64
	side      domain.Side
	price     quant.Price
	volume    quant.Volume
	remaining quant.Volume
	minVolume quant.Volume
	duration  int

	issueTime         quant.SimTime
	originalIssueTime quant.SimTime
	status            domain.OrderStatus

	brokerFees decimal.Decimal
	salesTax   decimal.Decimal
	gross      decimal.Decimal
	fills      []domain.Fill

	done chan struct{}
}

func newTrackedOrder(oms *OMS, o domain.Order, brokerRate decimal.Decimal) *TrackedOrder {
	return &TrackedOrder{
		oms:               oms,
		orderID:           o.OrderID,
		typeID:            o.TypeID,
		side:              o.Side,
		price:             o.Price,
		volume:            o.Volume,
		remaining:         o.VolumeRemaining,
		minVolume:         o.MinVolume,
		duration:          o.Duration,
		issueTime:         o.IssueTime,
		originalIssueTime: o.IssueTime,
		status:            domain.OrderStatusOpen,
		brokerFees:        o.Price.Decimal().Mul(o.Volume.Decimal()).Mul(brokerRate),
		done:              make(chan struct{}),
	}
}

func (t *TrackedOrder) OrderID() int64                   { return t.orderID }
func (t *TrackedOrder) TypeID() int64                    { return t.typeID }
func (t *TrackedOrder) Side() domain.Side                { return t.side }
func (t *TrackedOrder) Price() quant.Price               { return t.price }
func (t *TrackedOrder) Volume() quant.Volume             { return t.volume }
func (t *TrackedOrder) VolumeRemaining() quant.Volume    { return t.remaining }
func (t *TrackedOrder) MinVolume() quant.Volume          { return t.minVolume }
func (t *TrackedOrder) Duration() int                    { return t.duration }
func (t *TrackedOrder) IssueTime() quant.SimTime         { return t.issueTime }
func (t *TrackedOrder) OriginalIssueTime() quant.SimTime { return t.originalIssueTime }
func (t *TrackedOrder) Status() domain.OrderStatus       { return t.status }
func (t *TrackedOrder) IsOpen() bool                     { return t.status == domain.OrderStatusOpen }
func (t *TrackedOrder) Gross() decimal.Decimal           { return t.gross }
func (t *TrackedOrder) BrokerFees() decimal.Decimal      { return t.brokerFees }
func (t *TrackedOrder) SalesTax() decimal.Decimal        { return t.salesTax }

// Net is gross proceeds minus broker fees and sales tax.
func (t *TrackedOrder) Net() decimal.Decimal {
	return t.gross.Sub(t.brokerFees).Sub(t.salesTax)
}

// Fills returns the executions applied to the order, oldest first.
func (t *TrackedOrder) Fills() []domain.Fill {
	out := make([]domain.Fill, len(t.fills))
	copy(out, t.fills)
	return out
}

// Done is closed once the order leaves the Open status.
func (t *TrackedOrder) Done() <-chan struct{} {
	return t.done
}

// Cancel asks the OMS to cancel the order. It is a no-op once the order is closed.
func (t *TrackedOrder) Cancel() error {
	if !t.IsOpen() {
		return nil
	}
	return t.oms.Cancel(t)
}

// Change asks the OMS to reprice the order. It is a no-op once the order is closed.
func (t *TrackedOrder) Change(price quant.Price) error {
	if !t.IsOpen() {
		return nil
	}
	return t.oms.Change(t, price)
}

// applyChange records a reprice: a flat change fee, plus broker fees on the
// remaining volume when the price goes up.
func (t *TrackedOrder) applyChange(now quant.SimTime, price quant.Price, fees Fees) error {
	if !t.IsOpen() {
		return &domain.IllegalTransitionError{OrderID: t.orderID, From: t.status, To: domain.OrderStatusOpen}
	}
	t.issueTime = now
	t.brokerFees = t.brokerFees.Add(fees.ChangeFee)
	if delta := price - t.price; delta > 0 {
		t.brokerFees = t.brokerFees.Add(delta.Decimal().Mul(t.remaining.Decimal()).Mul(fees.BrokerRate))
	}
	t.price = price
	return nil
}

// applyFill books one execution. Buys have negative gross; sells pay sales tax.
func (t *TrackedOrder) applyFill(volume quant.Volume, price quant.Price, taxRate decimal.Decimal) error {
	if !t.IsOpen() || volume <= 0 || volume > t.remaining {
		return &domain.IllegalTransitionError{OrderID: t.orderID, From: t.status, To: domain.OrderStatusFilled}
	}
	t.remaining -= volume
	t.fills = append(t.fills, domain.Fill{Price: price, Volume: volume})

	gross := price.Decimal().Mul(volume.Decimal())
	if t.side.IsBuy() {
		gross = gross.Neg()
	} else {
		t.salesTax = t.salesTax.Add(gross.Mul(taxRate))
	}
	t.gross = t.gross.Add(gross)

	if t.remaining == 0 {
		t.close(domain.OrderStatusFilled)
	}
	return nil
}

// finish moves the order to a terminal status reported by the book.
func (t *TrackedOrder) finish(status domain.OrderStatus) error {
	if !t.IsOpen() {
		return &domain.IllegalTransitionError{OrderID: t.orderID, From: t.status, To: status}
	}
	t.close(status)
	return nil
}

func (t *TrackedOrder) close(status domain.OrderStatus) {
	t.status = status
	close(t.done)
}
