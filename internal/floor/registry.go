package floor

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// GridColumns is the width of the floor grid.
	GridColumns = 8
	// GridRows is the height of the floor grid.
	GridRows = 6
)

var (
	// ErrInvalidLayout indicates a registry layout that cannot be placed on the grid.
	ErrInvalidLayout = errors.New("floor: invalid layout")
)

// Position is a zero-based (column, row) cell on the floor grid.
type Position struct {
	Column int `yaml:"column" json:"column"`
	Row    int `yaml:"row" json:"row"`
}

// TablePlacement binds a table identifier to its grid cell.
type TablePlacement struct {
	ID       TableID `yaml:"id"`
	Position `yaml:",inline"`
}

// Registry is the fixed, ordered set of tables and their grid positions.
type Registry struct {
	order     []TableID
	positions map[TableID]Position
	cells     map[Position]TableID
	index     map[TableID]int
}

// DefaultPlacements is the compiled-in floor layout.
var DefaultPlacements = []TablePlacement{
	{ID: "C3", Position: Position{Column: 2, Row: 0}},
	{ID: "C2", Position: Position{Column: 3, Row: 0}},
	{ID: "C1", Position: Position{Column: 4, Row: 0}},
	{ID: "C4", Position: Position{Column: 0, Row: 2}},
	{ID: "C5", Position: Position{Column: 0, Row: 3}},
	{ID: "E4", Position: Position{Column: 2, Row: 2}},
	{ID: "E3", Position: Position{Column: 3, Row: 2}},
	{ID: "E5", Position: Position{Column: 2, Row: 3}},
	{ID: "E2", Position: Position{Column: 3, Row: 3}},
	{ID: "E6", Position: Position{Column: 2, Row: 4}},
	{ID: "E1", Position: Position{Column: 3, Row: 4}},
	{ID: "B3", Position: Position{Column: 5, Row: 2}},
	{ID: "B2", Position: Position{Column: 6, Row: 2}},
	{ID: "B4", Position: Position{Column: 5, Row: 3}},
	{ID: "B1", Position: Position{Column: 6, Row: 3}},
	{ID: "A4", Position: Position{Column: 4, Row: 5}},
	{ID: "A3", Position: Position{Column: 5, Row: 5}},
	{ID: "A2", Position: Position{Column: 6, Row: 5}},
	{ID: "A1", Position: Position{Column: 7, Row: 5}},
	{ID: "F2", Position: Position{Column: 0, Row: 5}},
	{ID: "F1", Position: Position{Column: 1, Row: 5}},
}

// NewRegistry validates placements and returns a registry preserving their order.
func NewRegistry(placements []TablePlacement) (*Registry, error) {
	if len(placements) == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrInvalidLayout)
	}
	registry := &Registry{
		order:     make([]TableID, 0, len(placements)),
		positions: make(map[TableID]Position, len(placements)),
		cells:     make(map[Position]TableID, len(placements)),
		index:     make(map[TableID]int, len(placements)),
	}
	for _, placement := range placements {
		id := TableID(strings.TrimSpace(placement.ID.String()))
		if id == "" {
			return nil, fmt.Errorf("%w: empty table id", ErrInvalidLayout)
		}
		if _, exists := registry.positions[id]; exists {
			return nil, fmt.Errorf("%w: duplicate table %s", ErrInvalidLayout, id)
		}
		position := placement.Position
		if position.Column < 0 || position.Column >= GridColumns || position.Row < 0 || position.Row >= GridRows {
			return nil, fmt.Errorf("%w: table %s at (%d,%d) is outside the %dx%d grid",
				ErrInvalidLayout, id, position.Column, position.Row, GridColumns, GridRows)
		}
		if occupant, taken := registry.cells[position]; taken {
			return nil, fmt.Errorf("%w: tables %s and %s share (%d,%d)",
				ErrInvalidLayout, occupant, id, position.Column, position.Row)
		}
		registry.index[id] = len(registry.order)
		registry.order = append(registry.order, id)
		registry.positions[id] = position
		registry.cells[position] = id
	}
	return registry, nil
}

// DefaultRegistry returns the compiled-in layout.
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(DefaultPlacements)
	if err != nil {
		panic(err)
	}
	return registry
}

type layoutFile struct {
	Tables []TablePlacement `yaml:"tables"`
}

// LoadRegistryFile reads a YAML layout of the form `tables: [{id, column, row}]`.
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	var layout layoutFile
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return NewRegistry(layout.Tables)
}

// IDs returns the table identifiers in registry order.
func (r *Registry) IDs() []TableID {
	ids := make([]TableID, len(r.order))
	copy(ids, r.order)
	return ids
}

// Len returns the number of registered tables.
func (r *Registry) Len() int {
	return len(r.order)
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id TableID) bool {
	_, ok := r.positions[id]
	return ok
}

// Position returns the grid cell of a registered table.
func (r *Registry) Position(id TableID) (Position, bool) {
	position, ok := r.positions[id]
	return position, ok
}

// TableAt returns the table placed at the given cell, if any.
func (r *Registry) TableAt(position Position) (TableID, bool) {
	id, ok := r.cells[position]
	return id, ok
}

// Rank returns the insertion order of a registered table, or -1.
func (r *Registry) Rank(id TableID) int {
	rank, ok := r.index[id]
	if !ok {
		return -1
	}
	return rank
}
