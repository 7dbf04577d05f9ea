package orderbook

import "mmsim/internal/domain"

// Recorder is a Listener that keeps everything it receives in memory.
type Recorder struct {
	Trades    []domain.Trade
	Actions   []domain.OrderAction
	Snapshots []domain.Snapshot
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) RecordTrade(trade domain.Trade)        { r.Trades = append(r.Trades, trade) }
func (r *Recorder) OrderAction(action domain.OrderAction) { r.Actions = append(r.Actions, action) }
func (r *Recorder) NewSnapshot(snap domain.Snapshot)      { r.Snapshots = append(r.Snapshots, snap) }

// ActionsOf returns the recorded actions of one kind.
func (r *Recorder) ActionsOf(kind domain.ActionKind) []domain.OrderAction {
	var out []domain.OrderAction
	for _, a := range r.Actions {
		if a.Action == kind {
			out = append(out, a)
		}
	}
	return out
}
