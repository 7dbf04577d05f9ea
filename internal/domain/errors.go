package domain

import (
	"errors"
	"fmt"

	"mmsim/pkg/quant"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

var (
	// ErrIllegalStateTransition means an order that is not open was asked to change state.
	// It signals an engine or caller defect and is never retriable.
	ErrIllegalStateTransition = errors.New("illegal order state transition")

	// ErrModifyTooSoon is returned when a change/cancel arrives inside the throttle window. Retriable.
	ErrModifyTooSoon = errors.New("order modified too soon")

	// ErrOrderNotFound is returned when a referenced order is not resting on either side.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnknownType is returned for an asset type with no registered book.
	ErrUnknownType = errors.New("unknown asset type")

	// ErrCalibrationUnordered is returned when calibration records are not time-ordered.
	ErrCalibrationUnordered = errors.New("calibration records not time-ordered")

	// ErrNoObservations is returned when a sampler is built from an empty data set.
	ErrNoObservations = errors.New("no observations")

	// ErrInvalidOrder is returned for strategy orders with non-positive price/volume or a bad duration.
	ErrInvalidOrder = errors.New("invalid order")
)

// IllegalTransitionError records the offending transition.
type IllegalTransitionError struct {
	OrderID int64
	From    OrderStatus
	To      OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order %d: %s -> %s: %v", e.OrderID, e.From, e.To, ErrIllegalStateTransition)
}

func (e *IllegalTransitionError) IsRetriable() bool {
	return false
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalStateTransition
}

// ModifyTooSoonError reports how long the caller still has to wait.
type ModifyTooSoonError struct {
	OrderID int64
	Elapsed quant.SimTime
	Limit   quant.SimTime
}

func (e *ModifyTooSoonError) Error() string {
	return fmt.Sprintf("order %d: %v (elapsed %ds, limit %ds)", e.OrderID, ErrModifyTooSoon, e.Elapsed, e.Limit)
}

func (e *ModifyTooSoonError) IsRetriable() bool {
	return true
}

func (e *ModifyTooSoonError) Unwrap() error {
	return ErrModifyTooSoon
}

// RetryAfter returns the virtual seconds left until the order may be modified.
func (e *ModifyTooSoonError) RetryAfter() quant.SimTime {
	return e.Limit - e.Elapsed
}

// CalibrationError locates a bad calibration record.
type CalibrationError struct {
	Set   string
	Index int
	Err   error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration %s[%d]: %v", e.Set, e.Index, e.Err)
}

func (e *CalibrationError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
