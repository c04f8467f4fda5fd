package floor

import (
	"fmt"
	"time"
)

// Labels holds the display strings of the floor map.
type Labels struct {
	States map[State]string
	Food   map[Plan]string
	Drink  map[Plan]string
}

// DefaultLabels returns the Japanese labels used on the floor tablets.
func DefaultLabels() Labels {
	return Labels{
		States: map[State]string{
			StateEmpty:     "空",
			StateOrderWait: "オーダー待ち",
			StateEating:    "食事中",
			StateAfterWait: "アフター待ち",
			StateAfterDone: "アフター完了",
			StateBillWait:  "会計待ち",
			StateReset:     "再セット",
		},
		Food: map[Plan]string{
			PlanSingle:    "F:単品",
			PlanUnlimited: "F:放題",
		},
		Drink: map[Plan]string{
			PlanSingle:    "D:単品",
			PlanUnlimited: "D:放題",
		},
	}
}

// TableCell is the rendered view of one table.
type TableCell struct {
	ID         TableID `json:"id"`
	State      State   `json:"state"`
	StateLabel string  `json:"state_label"`
	FoodLabel  string  `json:"food_label,omitempty"`
	DrinkLabel string  `json:"drink_label,omitempty"`
	Elapsed    string  `json:"elapsed,omitempty"`
}

// Cell is one grid cell; Table is nil for inert floor space.
type Cell struct {
	Position
	Table *TableCell `json:"table,omitempty"`
}

// FloorMap is the full grid in row-major order.
type FloorMap struct {
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`
	Cells   []Cell `json:"cells"`
}

// BuildFloorMap renders every grid cell from the current records.
func BuildFloorMap(registry *Registry, records map[TableID]TableRecord, now time.Time, labels Labels) FloorMap {
	floorMap := FloorMap{
		Columns: GridColumns,
		Rows:    GridRows,
		Cells:   make([]Cell, 0, GridColumns*GridRows),
	}
	for row := 0; row < GridRows; row++ {
		for column := 0; column < GridColumns; column++ {
			position := Position{Column: column, Row: row}
			cell := Cell{Position: position}
			if id, ok := registry.TableAt(position); ok {
				record, found := records[id]
				if !found {
					record = NewTableRecord()
				}
				cell.Table = buildTableCell(id, record, now, labels)
			}
			floorMap.Cells = append(floorMap.Cells, cell)
		}
	}
	return floorMap
}

func buildTableCell(id TableID, record TableRecord, now time.Time, labels Labels) *TableCell {
	cell := &TableCell{
		ID:         id,
		State:      record.State,
		StateLabel: labels.States[record.State],
	}
	switch record.State {
	case StateEating:
		cell.FoodLabel = planLabel(labels.Food, record.Food)
		cell.DrinkLabel = planLabel(labels.Drink, record.Drink)
	case StateOrderWait, StateAfterDone:
		if record.HasStateTimer() {
			cell.Elapsed = FormatElapsed(now.Sub(record.StateStartedAt))
		}
	}
	return cell
}

// planLabel falls back to the single-item label, as the tablets always did.
func planLabel(labels map[Plan]string, plan Plan) string {
	if plan == PlanUnlimited {
		return labels[PlanUnlimited]
	}
	return labels[PlanSingle]
}

// FormatElapsed renders a duration as minutes:seconds, truncated to whole seconds.
func FormatElapsed(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	totalSeconds := int64(elapsed / time.Second)
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// FormatClock renders a wall-clock time as HH:MM.
func FormatClock(value time.Time) string {
	return value.Format("15:04")
}
