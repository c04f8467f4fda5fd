package floor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State enumerates the service phases a table cycles through.
type State string

const (
	// StateEmpty marks a free table.
	StateEmpty State = "empty"
	// StateOrderWait marks seated guests waiting to order.
	StateOrderWait State = "order-wait"
	// StateEating marks a table in active service with a last-order deadline.
	StateEating State = "eating"
	// StateAfterWait marks guests waiting for the after-meal item.
	StateAfterWait State = "after-wait"
	// StateAfterDone marks the after-meal item as served.
	StateAfterDone State = "after-done"
	// StateBillWait marks guests waiting to pay.
	StateBillWait State = "bill-wait"
	// StateReset marks a vacated table being reset.
	StateReset State = "reset"
)

// Plan enumerates the food and drink plans chosen at order time.
// The zero value means no plan has been chosen.
type Plan string

const (
	PlanNone      Plan = ""
	PlanSingle    Plan = "single"
	PlanUnlimited Plan = "unlimited"
)

var (
	// ErrUnknownState indicates a state tag outside the service cycle.
	ErrUnknownState = errors.New("floor: unknown state")
	// ErrUnknownPlan indicates a plan tag outside the supported plans.
	ErrUnknownPlan = errors.New("floor: unknown plan")
	// ErrUnknownTable indicates an identifier missing from the registry.
	ErrUnknownTable = errors.New("floor: unknown table")
)

// ParseState validates a persisted or user supplied state tag.
func ParseState(raw string) (State, error) {
	state := State(strings.TrimSpace(raw))
	if _, ok := stateOrder[state]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, raw)
	}
	return state, nil
}

// ParsePlan validates a plan tag. An empty tag is rejected; absence is expressed by
// the caller, not by the parser.
func ParsePlan(raw string) (Plan, error) {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanSingle:
		return PlanSingle, nil
	case PlanUnlimited:
		return PlanUnlimited, nil
	default:
		return PlanNone, fmt.Errorf("%w: %q", ErrUnknownPlan, raw)
	}
}

// Valid reports whether the plan is one of the selectable plans.
func (p Plan) Valid() bool {
	return p == PlanSingle || p == PlanUnlimited
}

// TableID identifies a registered table.
type TableID string

// String returns the underlying identifier.
func (id TableID) String() string {
	return string(id)
}

// TableRecord is the operational state of one table.
// Zero time values mean the timestamp is absent.
type TableRecord struct {
	State          State
	Food           Plan
	Drink          Plan
	LastOrderAt    time.Time
	StateStartedAt time.Time
}

// NewTableRecord returns a record for a free table with every optional field absent.
func NewTableRecord() TableRecord {
	return TableRecord{State: StateEmpty}
}

// HasLastOrder reports whether a last-order deadline is set.
func (r TableRecord) HasLastOrder() bool {
	return !r.LastOrderAt.IsZero()
}

// HasStateTimer reports whether the elapsed-time timer is running.
func (r TableRecord) HasStateTimer() bool {
	return !r.StateStartedAt.IsZero()
}
