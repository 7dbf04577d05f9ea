package storage

import (
	"gorm.io/gorm"

	"mmsim/internal/domain"
)

// Journal buffers the trades and order actions of one run in memory.
// It does no I/O until Flush, so it is safe to attach to the simulation loop.
// Not safe for concurrent use.
type Journal struct {
	store   *Storage
	runID   string
	trades  []TradeLog
	actions []OrderActionLog
}

// NewJournal creates a journal writing to the given run.
func (s *Storage) NewJournal(runID string) *Journal {
	return &Journal{store: s, runID: runID}
}

// RunID returns the run this journal writes to.
func (j *Journal) RunID() string {
	return j.runID
}

// RecordTrade buffers a trade.
func (j *Journal) RecordTrade(t domain.Trade) {
	j.trades = append(j.trades, TradeLog{
		RunID:     j.runID,
		Time:      int64(t.Time),
		TypeID:    t.TypeID,
		Price:     int64(t.Price),
		Volume:    int64(t.Volume),
		BidID:     t.BidID,
		AskID:     t.AskID,
		BidOrigin: string(t.BidOrigin),
		AskOrigin: string(t.AskOrigin),
		Trigger:   string(t.Trigger),
	})
}

// OrderAction buffers an order lifecycle notification.
func (j *Journal) OrderAction(a domain.OrderAction) {
	j.actions = append(j.actions, OrderActionLog{
		RunID:           j.runID,
		Time:            int64(a.Time),
		TypeID:          a.TypeID,
		OrderID:         a.OrderID,
		Action:          string(a.Action),
		Origin:          string(a.Origin),
		Side:            string(a.Side),
		Price:           int64(a.Order.Price),
		OldPrice:        int64(a.OldPrice),
		VolumeRemaining: int64(a.Order.VolumeRemaining),
		Status:          string(a.Order.Status),
	})
}

// Pending returns the number of buffered trades and actions.
func (j *Journal) Pending() (trades, actions int) {
	return len(j.trades), len(j.actions)
}

// Flush writes everything buffered in one transaction and clears the buffer.
func (j *Journal) Flush() error {
	if len(j.trades) == 0 && len(j.actions) == 0 {
		return nil
	}
	err := j.store.db.Transaction(func(tx *gorm.DB) error {
		if len(j.trades) > 0 {
			if err := tx.CreateInBatches(&j.trades, batchSize).Error; err != nil {
				return err
			}
		}
		if len(j.actions) > 0 {
			if err := tx.CreateInBatches(&j.actions, batchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.trades = j.trades[:0]
	j.actions = j.actions[:0]
	return nil
}
