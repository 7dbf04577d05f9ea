package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalibrationTrade is one stored historical trade.
type CalibrationTrade struct {
	ID     uint      `gorm:"primaryKey"`
	TypeID int64     `gorm:"index:idx_cal_trade,priority:1"`
	Time   time.Time `gorm:"index:idx_cal_trade,priority:2"`
	Buy    bool
	Volume int64
}

// CalibrationOrder is one stored historical order action.
type CalibrationOrder struct {
	ID        uint      `gorm:"primaryKey"`
	TypeID    int64     `gorm:"index:idx_cal_order,priority:1"`
	Time      time.Time `gorm:"index:idx_cal_order,priority:2"`
	Action    string    `gorm:"size:8"`
	Buy       bool
	Volume    int64
	MinVolume int64
	Duration  int
	TopOfBook bool
}

// Run statuses.
const (
	RunStatusRunning  = "RUNNING"
	RunStatusFinished = "FINISHED"
	RunStatusHalted   = "HALTED"
)

// SimRun is one simulation run.
type SimRun struct {
	ID         string `gorm:"primaryKey;size:36"`
	Seed       int64
	Strategy   string
	Days       int
	Status     string `gorm:"size:16"`
	SimSeconds int64  // virtual time reached
	Events     uint64
	StartedAt  time.Time
	FinishedAt *time.Time
}

// TradeLog is one journaled trade.
type TradeLog struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"index;size:36"`
	Time      int64
	TypeID    int64
	Price     int64 // ticks
	Volume    int64
	BidID     int64
	AskID     int64
	BidOrigin string
	AskOrigin string
	Trigger   string
}

// OrderActionLog is one journaled order lifecycle notification.
type OrderActionLog struct {
	ID              uint   `gorm:"primaryKey"`
	RunID           string `gorm:"index;size:36"`
	Time            int64
	TypeID          int64
	OrderID         int64
	Action          string
	Origin          string
	Side            string
	Price           int64
	OldPrice        int64
	VolumeRemaining int64
	Status          string
}

// LedgerLog is one row of a strategy ledger.
type LedgerLog struct {
	ID              uint   `gorm:"primaryKey"`
	RunID           string `gorm:"index;size:36"`
	Time            int64
	TypeID          int64
	OrderID         int64
	Status          string
	Side            string
	Price           int64
	Volume          int64
	VolumeRemaining int64
	Gross           decimal.Decimal `gorm:"type:text"`
	SalesTax        decimal.Decimal `gorm:"type:text"`
	BrokerFee       decimal.Decimal `gorm:"type:text"`
}
