package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// StatusShape discriminates the three historical wire shapes of the
// runtime status report, parsed once at the boundary instead of
// duck-typed at every call site.
type StatusShape string

const (
	ShapeEmpty          StatusShape = "empty"
	ShapeSingleInstance StatusShape = "single_instance"
	ShapeConfigKeyed    StatusShape = "config_keyed"
	ShapeSymbolKeyed    StatusShape = "symbol_keyed"
)

// InstanceStatus is one runtime instance report. Tolerant of the field
// aliases the engine has used over time (pnl vs current_pnl, numeric or
// string config_id).
type InstanceStatus struct {
	IsRunning bool
	Symbol    string
	ConfigID  *int64
	Pnl       *decimal.Decimal
	StartedAt string
}

type instanceStatusWire struct {
	IsRunning  bool             `json:"is_running"`
	Symbol     string           `json:"symbol"`
	ConfigID   json.RawMessage  `json:"config_id"`
	Pnl        *decimal.Decimal `json:"pnl"`
	CurrentPnl *decimal.Decimal `json:"current_pnl"`
	StartedAt  string           `json:"started_at"`
}

func (st *InstanceStatus) UnmarshalJSON(data []byte) error {
	var w instanceStatusWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	st.IsRunning = w.IsRunning
	st.Symbol = w.Symbol
	st.StartedAt = w.StartedAt
	st.Pnl = w.Pnl
	if st.Pnl == nil {
		st.Pnl = w.CurrentPnl
	}
	st.ConfigID = parseConfigID(w.ConfigID)
	return nil
}

// parseConfigID accepts a JSON number or a numeric string, else nil.
func parseConfigID(raw json.RawMessage) *int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	s := strings.Trim(string(raw), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// StatusEntry is one decoded entry of a keyed status map plus its raw key.
type StatusEntry struct {
	Key    string
	Status InstanceStatus
}

// RuntimeStatus is the discriminated form of a raw status payload.
type RuntimeStatus struct {
	Shape   StatusShape
	Single  *InstanceStatus // set when Shape == ShapeSingleInstance
	Entries []StatusEntry   // set for the keyed shapes, in key-sorted decode order
}

// ParseRuntimeStatus classifies a raw status payload into one of the three
// wire shapes. A payload matching none of them yields ShapeEmpty together
// with the classification error, so the caller can report the degradation
// without failing the resolve pass.
func ParseRuntimeStatus(raw []byte) (*RuntimeStatus, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return &RuntimeStatus{Shape: ShapeEmpty}, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return &RuntimeStatus{Shape: ShapeEmpty}, fmt.Errorf("status payload is not an object: %w", err)
	}
	if len(top) == 0 {
		return &RuntimeStatus{Shape: ShapeEmpty}, nil
	}

	// Legacy single-instance shape carries is_running at the top level.
	if _, ok := top["is_running"]; ok {
		var st InstanceStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			return &RuntimeStatus{Shape: ShapeEmpty}, fmt.Errorf("single-instance status: %w", err)
		}
		return &RuntimeStatus{Shape: ShapeSingleInstance, Single: &st}, nil
	}

	// Otherwise a keyed map. Every value must decode as an instance status.
	entries := make([]StatusEntry, 0, len(top))
	allNumericKeys := true
	for key, val := range top {
		var st InstanceStatus
		if err := json.Unmarshal(val, &st); err != nil {
			return &RuntimeStatus{Shape: ShapeEmpty}, fmt.Errorf("status entry %q: %w", key, err)
		}
		if _, err := strconv.ParseInt(key, 10, 64); err != nil {
			allNumericKeys = false
		}
		entries = append(entries, StatusEntry{Key: key, Status: st})
	}
	// Keep decode order deterministic; Go map iteration is not.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	shape := ShapeSymbolKeyed
	if allNumericKeys {
		shape = ShapeConfigKeyed
	}
	return &RuntimeStatus{Shape: shape, Entries: entries}, nil
}

// EntryConfigID resolves the configuration id of a keyed entry: the
// explicit config_id wins, else a numeric key is the id.
func EntryConfigID(e StatusEntry) *int64 {
	if e.Status.ConfigID != nil {
		return e.Status.ConfigID
	}
	if n, err := strconv.ParseInt(e.Key, 10, 64); err == nil {
		return &n
	}
	return nil
}
