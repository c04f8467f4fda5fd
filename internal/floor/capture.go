package floor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SelectionGroup names one of the two single-select groups of an order capture.
type SelectionGroup string

const (
	GroupFood  SelectionGroup = "food"
	GroupDrink SelectionGroup = "drink"
)

var (
	// ErrUnknownGroup indicates a selection group other than food or drink.
	ErrUnknownGroup = errors.New("floor: unknown selection group")
	// ErrCaptureClosed indicates an operation on a confirmed or cancelled capture.
	ErrCaptureClosed = errors.New("floor: order capture is closed")
)

// ParseSelectionGroup validates a selection group name.
func ParseSelectionGroup(raw string) (SelectionGroup, error) {
	switch SelectionGroup(strings.ToLower(strings.TrimSpace(raw))) {
	case GroupFood:
		return GroupFood, nil
	case GroupDrink:
		return GroupDrink, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGroup, raw)
	}
}

// OrderCapture collects a food and a drink plan for one table. It only yields a
// pair once both groups have a selection.
type OrderCapture struct {
	ID       string
	TableID  TableID
	OpenedAt time.Time
	food     Plan
	drink    Plan
	closed   bool
}

// NewOrderCapture opens a capture with no selection.
func NewOrderCapture(id string, table TableID, openedAt time.Time) *OrderCapture {
	return &OrderCapture{ID: id, TableID: table, OpenedAt: openedAt}
}

// Select records the plan for a group, replacing any earlier choice in that group.
func (c *OrderCapture) Select(group SelectionGroup, plan Plan) error {
	if c.closed {
		return ErrCaptureClosed
	}
	if !plan.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	switch group {
	case GroupFood:
		c.food = plan
	case GroupDrink:
		c.drink = plan
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	return nil
}

// SelectFood records the food plan.
func (c *OrderCapture) SelectFood(plan Plan) error {
	return c.Select(GroupFood, plan)
}

// SelectDrink records the drink plan.
func (c *OrderCapture) SelectDrink(plan Plan) error {
	return c.Select(GroupDrink, plan)
}

// Selection returns the current choices; absent groups are PlanNone.
func (c *OrderCapture) Selection() (Plan, Plan) {
	return c.food, c.drink
}

// CanConfirm reports whether both groups have a selection.
func (c *OrderCapture) CanConfirm() bool {
	return !c.closed && c.food.Valid() && c.drink.Valid()
}

// Confirm closes the capture and yields the selected pair.
func (c *OrderCapture) Confirm() (Plan, Plan, error) {
	if c.closed {
		return PlanNone, PlanNone, ErrCaptureClosed
	}
	if !c.CanConfirm() {
		return PlanNone, PlanNone, ErrIncompleteOrder
	}
	c.closed = true
	return c.food, c.drink, nil
}

// Cancel discards the selection.
func (c *OrderCapture) Cancel() {
	c.food = PlanNone
	c.drink = PlanNone
	c.closed = true
}

// Closed reports whether the capture was confirmed or cancelled.
func (c *OrderCapture) Closed() bool {
	return c.closed
}
