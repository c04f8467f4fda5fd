package floor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdvanceFollowsServiceCycle(t *testing.T) {
	machine := NewMachine(0)
	now := baseTime()

	record := NewTableRecord()
	record, step, err := machine.Advance(record, now)
	require.NoError(t, err)
	require.Equal(t, StepAdvanced, step)
	require.Equal(t, StateOrderWait, record.State)
	require.Equal(t, now, record.StateStartedAt)
	requireInvariants(t, record)

	record, err = machine.CommitOrder(record, PlanSingle, PlanUnlimited, now)
	require.NoError(t, err)
	requireInvariants(t, record)

	expected := []State{StateAfterWait, StateAfterDone, StateBillWait, StateReset, StateEmpty}
	for _, want := range expected {
		now = now.Add(time.Minute)
		record, step, err = machine.Advance(record, now)
		require.NoError(t, err)
		require.Equal(t, StepAdvanced, step)
		require.Equal(t, want, record.State)
		requireInvariants(t, record)
	}
}

func TestAdvanceOnOrderWaitRequiresCapture(t *testing.T) {
	machine := NewMachine(0)
	started := baseTime()
	record := TableRecord{State: StateOrderWait, StateStartedAt: started}

	for attempt := 0; attempt < 3; attempt++ {
		updated, step, err := machine.Advance(record, started.Add(time.Duration(attempt)*time.Minute))
		require.NoError(t, err)
		require.Equal(t, StepCaptureRequired, step)
		require.Equal(t, record, updated)
	}
}

func TestCycleClosesAfterSevenSteps(t *testing.T) {
	machine := NewMachine(0)
	for _, start := range States() {
		if start == StateOrderWait {
			continue
		}
		t.Run(string(start), func(t *testing.T) {
			now := baseTime()
			record := recordIn(t, machine, start, now)

			for step := 0; step < len(States()); step++ {
				now = now.Add(time.Second)
				if record.State == StateOrderWait {
					var err error
					record, err = machine.CommitOrder(record, PlanUnlimited, PlanSingle, now)
					require.NoError(t, err)
					continue
				}
				var err error
				record, _, err = machine.Advance(record, now)
				require.NoError(t, err)
			}
			require.Equal(t, start, record.State)
		})
	}
}

func TestCommitOrderRejectsIncompletePair(t *testing.T) {
	machine := NewMachine(0)
	record := TableRecord{State: StateOrderWait, StateStartedAt: baseTime()}

	pairs := [][2]Plan{
		{PlanSingle, PlanNone},
		{PlanNone, PlanUnlimited},
		{PlanNone, PlanNone},
		{Plan("half"), PlanSingle},
	}
	for _, pair := range pairs {
		updated, err := machine.CommitOrder(record, pair[0], pair[1], baseTime())
		require.ErrorIs(t, err, ErrIncompleteOrder)
		require.Equal(t, record, updated)
	}
}

func TestCommitOrderRequiresOrderWait(t *testing.T) {
	machine := NewMachine(0)
	record := TableRecord{State: StateAfterWait}

	updated, err := machine.CommitOrder(record, PlanSingle, PlanSingle, baseTime())
	require.ErrorIs(t, err, ErrNotAwaitingOrder)
	require.Equal(t, record, updated)
}

func TestCommitOrderSetsDeadlineFromCommitTime(t *testing.T) {
	machine := NewMachine(0)
	committed := baseTime().Add(7 * time.Minute)
	record := TableRecord{State: StateOrderWait, StateStartedAt: baseTime()}

	record, err := machine.CommitOrder(record, PlanUnlimited, PlanUnlimited, committed)
	require.NoError(t, err)
	require.Equal(t, StateEating, record.State)
	require.Equal(t, committed.Add(90*time.Minute), record.LastOrderAt)
	require.False(t, record.HasStateTimer())

	deadline := record.LastOrderAt
	now := committed
	for record.State != StateReset {
		now = now.Add(10 * time.Minute)
		record, _, err = machine.Advance(record, now)
		require.NoError(t, err)
		require.Equal(t, deadline, record.LastOrderAt, "deadline changed in %s", record.State)
	}

	record, _, err = machine.Advance(record, now)
	require.NoError(t, err)
	require.Equal(t, StateEmpty, record.State)
	require.False(t, record.HasLastOrder())
}

func TestCommitOrderUsesConfiguredWindow(t *testing.T) {
	machine := NewMachine(2 * time.Hour)
	record, err := machine.CommitOrder(TableRecord{State: StateOrderWait}, PlanSingle, PlanSingle, baseTime())
	require.NoError(t, err)
	require.Equal(t, baseTime().Add(2*time.Hour), record.LastOrderAt)
}

func TestAdvanceToEmptyClearsEverything(t *testing.T) {
	machine := NewMachine(0)
	records := []TableRecord{
		{State: StateReset, Food: PlanSingle, Drink: PlanUnlimited, LastOrderAt: baseTime(), StateStartedAt: baseTime()},
		{State: StateReset},
		{State: StateReset, LastOrderAt: baseTime()},
	}
	for _, record := range records {
		updated, _, err := machine.Advance(record, baseTime())
		require.NoError(t, err)
		require.Equal(t, NewTableRecord(), updated)
	}
}

func TestAdvanceTimerOnlyInTimedStates(t *testing.T) {
	machine := NewMachine(0)
	now := baseTime()

	afterWait := TableRecord{State: StateAfterWait, Food: PlanSingle, Drink: PlanSingle, LastOrderAt: now}
	afterDone, _, err := machine.Advance(afterWait, now)
	require.NoError(t, err)
	require.Equal(t, StateAfterDone, afterDone.State)
	require.Equal(t, now, afterDone.StateStartedAt)

	billWait, _, err := machine.Advance(afterDone, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, StateBillWait, billWait.State)
	require.False(t, billWait.HasStateTimer())
	require.Equal(t, PlanSingle, billWait.Food)
}

func TestAdvanceRejectsUnknownState(t *testing.T) {
	machine := NewMachine(0)
	record := TableRecord{State: State("closed")}

	updated, _, err := machine.Advance(record, baseTime())
	require.ErrorIs(t, err, ErrUnknownState)
	require.Equal(t, record, updated)
}

// recordIn drives a fresh record to the requested state.
func recordIn(t *testing.T, machine Machine, target State, now time.Time) TableRecord {
	t.Helper()
	record := NewTableRecord()
	for record.State != target {
		if record.State == StateOrderWait {
			var err error
			record, err = machine.CommitOrder(record, PlanSingle, PlanSingle, now)
			require.NoError(t, err)
			continue
		}
		var err error
		record, _, err = machine.Advance(record, now)
		require.NoError(t, err)
	}
	return record
}
