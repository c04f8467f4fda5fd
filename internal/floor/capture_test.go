package floor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderCaptureRequiresBothGroups(t *testing.T) {
	capture := NewOrderCapture("capture-1", "A1", baseTime())
	require.False(t, capture.CanConfirm())

	require.NoError(t, capture.SelectFood(PlanSingle))
	require.False(t, capture.CanConfirm())
	_, _, err := capture.Confirm()
	require.ErrorIs(t, err, ErrIncompleteOrder)
	require.False(t, capture.Closed())

	require.NoError(t, capture.SelectDrink(PlanUnlimited))
	require.True(t, capture.CanConfirm())

	food, drink, err := capture.Confirm()
	require.NoError(t, err)
	require.Equal(t, PlanSingle, food)
	require.Equal(t, PlanUnlimited, drink)
	require.True(t, capture.Closed())
}

func TestOrderCaptureSelectionIsSingleChoicePerGroup(t *testing.T) {
	capture := NewOrderCapture("capture-1", "A1", baseTime())
	require.NoError(t, capture.Select(GroupFood, PlanSingle))
	require.NoError(t, capture.Select(GroupFood, PlanUnlimited))

	food, drink := capture.Selection()
	require.Equal(t, PlanUnlimited, food)
	require.Equal(t, PlanNone, drink)
}

func TestOrderCaptureRejectsInvalidInput(t *testing.T) {
	capture := NewOrderCapture("capture-1", "A1", baseTime())
	require.ErrorIs(t, capture.Select(GroupFood, PlanNone), ErrUnknownPlan)
	require.ErrorIs(t, capture.Select(GroupFood, Plan("half")), ErrUnknownPlan)
	require.ErrorIs(t, capture.Select(SelectionGroup("dessert"), PlanSingle), ErrUnknownGroup)
}

func TestOrderCaptureCancelDiscardsSelection(t *testing.T) {
	capture := NewOrderCapture("capture-1", "A1", baseTime())
	require.NoError(t, capture.SelectFood(PlanSingle))
	require.NoError(t, capture.SelectDrink(PlanSingle))

	capture.Cancel()
	require.True(t, capture.Closed())
	require.False(t, capture.CanConfirm())
	require.ErrorIs(t, capture.SelectFood(PlanSingle), ErrCaptureClosed)

	_, _, err := capture.Confirm()
	require.ErrorIs(t, err, ErrCaptureClosed)
}

func TestParseSelectionGroup(t *testing.T) {
	group, err := ParseSelectionGroup(" Food ")
	require.NoError(t, err)
	require.Equal(t, GroupFood, group)

	group, err = ParseSelectionGroup("drink")
	require.NoError(t, err)
	require.Equal(t, GroupDrink, group)

	_, err = ParseSelectionGroup("dessert")
	require.ErrorIs(t, err, ErrUnknownGroup)
}
