package floor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorruptSnapshot indicates a persisted snapshot that cannot be restored.
var ErrCorruptSnapshot = errors.New("floor: corrupt snapshot")

// snapshotRecord is the persisted form of a TableRecord.
type snapshotRecord struct {
	State          string  `json:"state"`
	Food           *string `json:"food"`
	Drink          *string `json:"drink"`
	LoTime         *int64  `json:"loTime"`
	StateStartTime *int64  `json:"stateStartTime"`
}

// Snapshot is a decoded persisted floor: records for registered tables plus the raw
// entries of identifiers the registry no longer knows about.
type Snapshot struct {
	Records map[TableID]TableRecord
	Orphans map[string]json.RawMessage
}

// EncodeSnapshot serializes records and orphans as one JSON object keyed by table id.
func EncodeSnapshot(records map[TableID]TableRecord, orphans map[string]json.RawMessage) ([]byte, error) {
	payload := make(map[string]json.RawMessage, len(records)+len(orphans))
	for id, raw := range orphans {
		payload[id] = raw
	}
	for id, record := range records {
		encoded, err := json.Marshal(toSnapshotRecord(record))
		if err != nil {
			return nil, fmt.Errorf("encode table %s: %w", id, err)
		}
		payload[id.String()] = encoded
	}
	return json.Marshal(payload)
}

// DecodeSnapshot parses a persisted snapshot against the registry. Any malformed
// entry for a registered table fails the whole snapshot.
func DecodeSnapshot(data []byte, registry *Registry) (Snapshot, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	snapshot := Snapshot{
		Records: make(map[TableID]TableRecord, len(payload)),
		Orphans: make(map[string]json.RawMessage),
	}
	for key, raw := range payload {
		id := TableID(key)
		if !registry.Contains(id) {
			snapshot.Orphans[key] = raw
			continue
		}
		var stored snapshotRecord
		if err := json.Unmarshal(raw, &stored); err != nil {
			return Snapshot{}, fmt.Errorf("%w: table %s: %v", ErrCorruptSnapshot, key, err)
		}
		record, err := fromSnapshotRecord(stored)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: table %s: %v", ErrCorruptSnapshot, key, err)
		}
		snapshot.Records[id] = record
	}
	return snapshot, nil
}

func toSnapshotRecord(record TableRecord) snapshotRecord {
	return snapshotRecord{
		State:          string(record.State),
		Food:           planTag(record.Food),
		Drink:          planTag(record.Drink),
		LoTime:         epochMillis(record.LastOrderAt),
		StateStartTime: epochMillis(record.StateStartedAt),
	}
}

func fromSnapshotRecord(stored snapshotRecord) (TableRecord, error) {
	state, err := ParseState(stored.State)
	if err != nil {
		return TableRecord{}, err
	}
	food, err := parseOptionalPlan(stored.Food)
	if err != nil {
		return TableRecord{}, err
	}
	drink, err := parseOptionalPlan(stored.Drink)
	if err != nil {
		return TableRecord{}, err
	}
	record := TableRecord{
		State:          state,
		Food:           food,
		Drink:          drink,
		LastOrderAt:    fromEpochMillis(stored.LoTime),
		StateStartedAt: fromEpochMillis(stored.StateStartTime),
	}
	if err := checkRecordInvariants(record); err != nil {
		return TableRecord{}, err
	}
	return record, nil
}

// checkRecordInvariants rejects field combinations the state machine never produces.
func checkRecordInvariants(record TableRecord) error {
	switch record.State {
	case StateEating:
		if !record.Food.Valid() || !record.Drink.Valid() {
			return errors.New("eating table without both plans")
		}
		if !record.HasLastOrder() {
			return errors.New("eating table without last order time")
		}
	case StateEmpty:
		if record != NewTableRecord() {
			return errors.New("empty table with service fields set")
		}
	}
	timed := record.State == StateOrderWait || record.State == StateAfterDone
	if timed != record.HasStateTimer() {
		if timed {
			return fmt.Errorf("%s table without state start time", record.State)
		}
		return fmt.Errorf("%s table with state start time", record.State)
	}
	return nil
}

func planTag(plan Plan) *string {
	if plan == PlanNone {
		return nil
	}
	tag := string(plan)
	return &tag
}

func parseOptionalPlan(tag *string) (Plan, error) {
	if tag == nil {
		return PlanNone, nil
	}
	return ParsePlan(*tag)
}

func epochMillis(value time.Time) *int64 {
	if value.IsZero() {
		return nil
	}
	millis := value.UnixMilli()
	return &millis
}

func fromEpochMillis(millis *int64) time.Time {
	if millis == nil {
		return time.Time{}
	}
	return time.UnixMilli(*millis)
}
