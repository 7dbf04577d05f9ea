package strategy

import (
	"mmsim/pkg/quant"
)

// Strategy is the interface that all strategies under test must implement.
// It is called synchronously by the Sequencer, once per virtual instant at
// which fresh snapshots were taken, after every event at that instant.
type Strategy interface {
	// Run lets the strategy inspect the latest snapshots and place, change or
	// cancel orders. Calls into the OMS complete, including any matching,
	// before they return.
	Run(now quant.SimTime) error
}

// Func adapts a plain function to the Strategy interface.
type Func func(now quant.SimTime) error

// Run calls f(now).
func (f Func) Run(now quant.SimTime) error { return f(now) }
