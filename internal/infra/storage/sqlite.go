package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mmsim/internal/domain"
)

const batchSize = 500

// Storage persists calibration sets and simulation journals.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (creating if needed) the SQLite database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty DB path")
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(
		&CalibrationTrade{}, &CalibrationOrder{},
		&SimRun{}, &TradeLog{}, &OrderActionLog{}, &LedgerLog{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Calibration Operations
// ======================================================================================

// SaveCalibration replaces the stored calibration set of a type.
func (s *Storage) SaveCalibration(typeID int64, cal *domain.Calibration) error {
	if err := cal.Validate(); err != nil {
		return err
	}

	trades := make([]CalibrationTrade, 0, len(cal.Trades))
	for _, t := range cal.Trades {
		trades = append(trades, CalibrationTrade{TypeID: typeID, Time: t.Time.UTC(), Buy: t.Buy, Volume: t.Volume})
	}
	orders := make([]CalibrationOrder, 0, len(cal.Orders))
	for _, o := range cal.Orders {
		orders = append(orders, CalibrationOrder{
			TypeID:    typeID,
			Time:      o.Time.UTC(),
			Action:    string(o.Action),
			Buy:       o.Buy,
			Volume:    o.Volume,
			MinVolume: o.MinVolume,
			Duration:  o.Duration,
			TopOfBook: o.TopOfBook,
		})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("type_id = ?", typeID).Delete(&CalibrationTrade{}).Error; err != nil {
			return err
		}
		if err := tx.Where("type_id = ?", typeID).Delete(&CalibrationOrder{}).Error; err != nil {
			return err
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(&trades, batchSize).Error; err != nil {
				return err
			}
		}
		if len(orders) > 0 {
			if err := tx.CreateInBatches(&orders, batchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadCalibration reads the calibration set of a type in time order.
func (s *Storage) LoadCalibration(typeID int64) (*domain.Calibration, error) {
	var trades []CalibrationTrade
	if err := s.db.Where("type_id = ?", typeID).Order("time, id").Find(&trades).Error; err != nil {
		return nil, err
	}
	var orders []CalibrationOrder
	if err := s.db.Where("type_id = ?", typeID).Order("time, id").Find(&orders).Error; err != nil {
		return nil, err
	}
	if len(trades) == 0 && len(orders) == 0 {
		return nil, fmt.Errorf("calibration for type %d: %w", typeID, domain.ErrUnknownType)
	}

	cal := &domain.Calibration{
		Trades: make([]domain.TradeRecord, 0, len(trades)),
		Orders: make([]domain.OrderActionRecord, 0, len(orders)),
	}
	for _, t := range trades {
		cal.Trades = append(cal.Trades, domain.TradeRecord{Time: t.Time, Buy: t.Buy, Volume: t.Volume})
	}
	for _, o := range orders {
		cal.Orders = append(cal.Orders, domain.OrderActionRecord{
			Time:      o.Time,
			Action:    domain.OrderActionType(o.Action),
			Buy:       o.Buy,
			Volume:    o.Volume,
			MinVolume: o.MinVolume,
			Duration:  o.Duration,
			TopOfBook: o.TopOfBook,
		})
	}
	return cal, nil
}

// CalibrationTypes lists every type with stored calibration data, ascending.
func (s *Storage) CalibrationTypes() ([]int64, error) {
	var fromTrades, fromOrders []int64
	if err := s.db.Model(&CalibrationTrade{}).Distinct().Pluck("type_id", &fromTrades).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&CalibrationOrder{}).Distinct().Pluck("type_id", &fromOrders).Error; err != nil {
		return nil, err
	}
	ids := append(fromTrades, fromOrders...)
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// ======================================================================================
// Run Operations
// ======================================================================================

// CreateRun registers a new running simulation.
func (s *Storage) CreateRun(seed int64, strategy string, days int) (*SimRun, error) {
	run := &SimRun{
		ID:        uuid.NewString(),
		Seed:      seed,
		Strategy:  strategy,
		Days:      days,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun records the final state of a run.
func (s *Storage) FinishRun(runID, status string, simSeconds int64, events uint64) error {
	now := time.Now().UTC()
	res := s.db.Model(&SimRun{}).Where("id = ?", runID).Updates(map[string]any{
		"status":      status,
		"sim_seconds": simSeconds,
		"events":      events,
		"finished_at": &now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s: %w", runID, gorm.ErrRecordNotFound)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Storage) GetRun(runID string) (*SimRun, error) {
	var run SimRun
	if err := s.db.First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// SaveLedger stores the strategy ledger of a run.
func (s *Storage) SaveLedger(runID string, rows []LedgerLog) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].RunID = runID
	}
	return s.db.CreateInBatches(&rows, batchSize).Error
}

// Trades returns the journaled trades of a run in record order.
func (s *Storage) Trades(runID string) ([]TradeLog, error) {
	var out []TradeLog
	err := s.db.Where("run_id = ?", runID).Order("id").Find(&out).Error
	return out, err
}

// OrderActions returns the journaled order actions of a run in record order.
func (s *Storage) OrderActions(runID string) ([]OrderActionLog, error) {
	var out []OrderActionLog
	err := s.db.Where("run_id = ?", runID).Order("id").Find(&out).Error
	return out, err
}

// Ledger returns the stored strategy ledger of a run.
func (s *Storage) Ledger(runID string) ([]LedgerLog, error) {
	var out []LedgerLog
	err := s.db.Where("run_id = ?", runID).Order("id").Find(&out).Error
	return out, err
}
