// Package quant defines the fixed-point units used on the simulation hotpath.
// Prices are ticks of 0.01, volumes are whole units, time is virtual seconds.
package quant

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Price is a price in ticks (1 tick = 0.01).
type Price int64

// Volume is an asset quantity in whole units.
type Volume int64

// SimTime is virtual time in seconds since the start of a simulation.
type SimTime int64

const (
	// Tick is the minimum price increment.
	Tick Price = 1

	// TicksPerUnit converts between ticks and whole currency units.
	TicksPerUnit = 100

	Minute SimTime = 60
	Hour   SimTime = 60 * Minute
	Day    SimTime = 24 * Hour
)

// PriceFromFloat truncates a float price to two decimals.
// A tiny epsilon absorbs binary representation error (100.1*100 = 10009.999...).
func PriceFromFloat(f float64) Price {
	return Price(math.Floor(f*TicksPerUnit + 1e-9))
}

// PriceFromDecimal truncates a decimal price to two decimals.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Shift(2).Truncate(0).IntPart())
}

// Decimal returns the price as a decimal with two places.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -2)
}

// Float returns the price as a float64.
func (p Price) Float() float64 {
	return float64(p) / TicksPerUnit
}

// String formats the price as "101.00".
func (p Price) String() string {
	return p.Decimal().StringFixed(2)
}

// Decimal returns the volume as a decimal.
func (v Volume) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}

// Days converts a whole number of days to virtual seconds.
func Days(n int) SimTime {
	return SimTime(n) * Day
}

// String formats virtual time as "d+hh:mm:ss".
func (t SimTime) String() string {
	sign := ""
	if t < 0 {
		sign = "-"
		t = -t
	}
	d := t / Day
	rem := t % Day
	return fmt.Sprintf("%s%d+%02d:%02d:%02d", sign, d, rem/Hour, (rem%Hour)/Minute, rem%Minute)
}
