// Package calibration loads the per-type historical data that drives the
// synthetic books, from a JSON document or from the SQLite store.
//
// The document format is
//
//	{"types": {"34": {"trades": [...], "orders": [...]}}}
//
// where trades and orders are domain.TradeRecord and domain.OrderActionRecord.
package calibration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"

	"mmsim/internal/domain"
)

// Sets maps asset type ids to their calibration data.
type Sets map[int64]*domain.Calibration

// TypeIDs returns the ids in ascending order.
func (s Sets) TypeIDs() []int64 {
	return slices.Sorted(maps.Keys(s))
}

type document struct {
	Types map[string]*domain.Calibration `json:"types"`
}

// Store is the persistence the loader imports into and reads from.
type Store interface {
	SaveCalibration(typeID int64, cal *domain.Calibration) error
	LoadCalibration(typeID int64) (*domain.Calibration, error)
	CalibrationTypes() ([]int64, error)
}

// Decode reads and validates a calibration document.
func Decode(r io.Reader) (Sets, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode calibration: %w", err)
	}

	sets := make(Sets, len(doc.Types))
	for key, cal := range doc.Types {
		typeID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("calibration type %q: %w", key, err)
		}
		if cal == nil {
			cal = &domain.Calibration{}
		}
		if err := cal.Validate(); err != nil {
			return nil, fmt.Errorf("type %d: %w", typeID, err)
		}
		sets[typeID] = cal
	}
	return sets, nil
}

// Encode writes sets as a calibration document.
func Encode(w io.Writer, sets Sets) error {
	doc := document{Types: make(map[string]*domain.Calibration, len(sets))}
	for id, cal := range sets {
		doc.Types[strconv.FormatInt(id, 10)] = cal
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// LoadFile reads a calibration document from disk.
func LoadFile(path string) (Sets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sets, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, id := range sets.TypeIDs() {
		slog.Debug("Calibration loaded",
			slog.Int64("type_id", id),
			slog.Int("trades", len(sets[id].Trades)),
			slog.Int("orders", len(sets[id].Orders)))
	}
	return sets, nil
}

// WriteFile exports sets to disk.
func WriteFile(path string, sets Sets) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, sets); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Import stores every set.
func Import(store Store, sets Sets) error {
	for _, id := range sets.TypeIDs() {
		if err := store.SaveCalibration(id, sets[id]); err != nil {
			return fmt.Errorf("import type %d: %w", id, err)
		}
	}
	return nil
}

// FromStore loads the given types, or every stored type when none are given.
func FromStore(store Store, typeIDs ...int64) (Sets, error) {
	if len(typeIDs) == 0 {
		ids, err := store.CalibrationTypes()
		if err != nil {
			return nil, err
		}
		typeIDs = ids
	}

	sets := make(Sets, len(typeIDs))
	for _, id := range typeIDs {
		cal, err := store.LoadCalibration(id)
		if err != nil {
			return nil, err
		}
		sets[id] = cal
	}
	return sets, nil
}

// Require returns the set of a type or ErrUnknownType.
func (s Sets) Require(typeID int64) (*domain.Calibration, error) {
	cal, ok := s[typeID]
	if !ok {
		return nil, fmt.Errorf("calibration for type %d: %w", typeID, domain.ErrUnknownType)
	}
	return cal, nil
}
