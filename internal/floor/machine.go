package floor

import (
	"errors"
	"fmt"
	"time"
)

// DefaultServiceWindow is the time from order commit to the last-order deadline.
const DefaultServiceWindow = 90 * time.Minute

var (
	// ErrIncompleteOrder indicates a commit without both a food and a drink plan.
	ErrIncompleteOrder = errors.New("floor: order requires both food and drink plans")
	// ErrNotAwaitingOrder indicates a commit for a table that is not waiting to order.
	ErrNotAwaitingOrder = errors.New("floor: table is not waiting for an order")
)

// Step reports what Advance did with the record.
type Step int

const (
	// StepAdvanced means the record moved to the next state in the cycle.
	StepAdvanced Step = iota
	// StepCaptureRequired means the table waits for an order capture and was left untouched.
	StepCaptureRequired
)

// cycle lists the service states in order; the last state wraps to the first.
var cycle = []State{
	StateEmpty,
	StateOrderWait,
	StateEating,
	StateAfterWait,
	StateAfterDone,
	StateBillWait,
	StateReset,
}

var stateOrder = func() map[State]int {
	order := make(map[State]int, len(cycle))
	for index, state := range cycle {
		order[state] = index
	}
	return order
}()

// transitions maps each state to the state a plain advance moves it to.
// order-wait has no entry: leaving it requires CommitOrder.
var transitions = map[State]State{
	StateEmpty:     StateOrderWait,
	StateEating:    StateAfterWait,
	StateAfterWait: StateAfterDone,
	StateAfterDone: StateBillWait,
	StateBillWait:  StateReset,
	StateReset:     StateEmpty,
}

// States returns the service cycle in order.
func States() []State {
	states := make([]State, len(cycle))
	copy(states, cycle)
	return states
}

// Machine applies service transitions to table records.
type Machine struct {
	serviceWindow time.Duration
}

// NewMachine returns a machine using window as the last-order offset.
// A non-positive window falls back to DefaultServiceWindow.
func NewMachine(window time.Duration) Machine {
	if window <= 0 {
		window = DefaultServiceWindow
	}
	return Machine{serviceWindow: window}
}

// ServiceWindow returns the configured last-order offset.
func (m Machine) ServiceWindow() time.Duration {
	if m.serviceWindow <= 0 {
		return DefaultServiceWindow
	}
	return m.serviceWindow
}

// Advance moves the record one step along the service cycle.
func (m Machine) Advance(record TableRecord, now time.Time) (TableRecord, Step, error) {
	if record.State == StateOrderWait {
		return record, StepCaptureRequired, nil
	}
	next, ok := transitions[record.State]
	if !ok {
		return record, StepAdvanced, fmt.Errorf("%w: %q", ErrUnknownState, record.State)
	}

	updated := record
	updated.State = next
	switch next {
	case StateOrderWait, StateAfterDone:
		updated.StateStartedAt = now
	case StateEmpty:
		updated = NewTableRecord()
	default:
		updated.StateStartedAt = time.Time{}
	}
	return updated, StepAdvanced, nil
}

// CommitOrder moves a table waiting to order into service with the chosen plans.
// The record is returned unchanged when the commit is rejected.
func (m Machine) CommitOrder(record TableRecord, food, drink Plan, now time.Time) (TableRecord, error) {
	if !food.Valid() || !drink.Valid() {
		return record, ErrIncompleteOrder
	}
	if record.State != StateOrderWait {
		return record, fmt.Errorf("%w: state %s", ErrNotAwaitingOrder, record.State)
	}
	return TableRecord{
		State:       StateEating,
		Food:        food,
		Drink:       drink,
		LastOrderAt: now.Add(m.ServiceWindow()),
	}, nil
}
