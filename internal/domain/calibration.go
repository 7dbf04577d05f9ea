package domain

import "time"

// OrderActionType classifies historical order-action records.
type OrderActionType string

const (
	OrderActionNew    OrderActionType = "new"
	OrderActionChange OrderActionType = "change"
	OrderActionCancel OrderActionType = "cancel"
)

// TradeRecord is one historical trade used for calibration.
type TradeRecord struct {
	Time   time.Time `json:"time"`
	Buy    bool      `json:"buy"`
	Volume int64     `json:"volume"`
}

// OrderActionRecord is one historical order action used for calibration.
// Duration and TopOfBook are only meaningful for new orders.
type OrderActionRecord struct {
	Time      time.Time       `json:"time"`
	Action    OrderActionType `json:"action"`
	Buy       bool            `json:"buy"`
	Volume    int64           `json:"volume"`
	MinVolume int64           `json:"min_volume"`
	Duration  int             `json:"duration"`
	TopOfBook bool            `json:"tob"`
}

// Calibration is the historical input for one asset type.
// Both slices must be in non-decreasing time order.
type Calibration struct {
	Trades []TradeRecord       `json:"trades"`
	Orders []OrderActionRecord `json:"orders"`
}

// Validate checks the time ordering of both record sets.
func (c *Calibration) Validate() error {
	for i := 1; i < len(c.Trades); i++ {
		if c.Trades[i].Time.Before(c.Trades[i-1].Time) {
			return &CalibrationError{Set: "trades", Index: i, Err: ErrCalibrationUnordered}
		}
	}
	for i := 1; i < len(c.Orders); i++ {
		if c.Orders[i].Time.Before(c.Orders[i-1].Time) {
			return &CalibrationError{Set: "orders", Index: i, Err: ErrCalibrationUnordered}
		}
	}
	return nil
}

// OrdersOf filters order actions by type, preserving order.
func (c *Calibration) OrdersOf(action OrderActionType) []OrderActionRecord {
	var out []OrderActionRecord
	for _, o := range c.Orders {
		if o.Action == action {
			out = append(out, o)
		}
	}
	return out
}
