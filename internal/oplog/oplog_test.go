package oplog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tradefleet/fleetd/internal/fleet"
)

func openTempLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "oplog.db"))
	if err != nil {
		t.Fatalf("open oplog: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordBulkAndReadBack(t *testing.T) {
	l := openTempLog(t)

	cid := int64(5)
	res := &fleet.BulkResult{
		OperationID: "op-1",
		Action:      fleet.ActionDelete,
		StartedAt:   time.Now().Add(-time.Second),
		FinishedAt:  time.Now(),
		Items: []fleet.ItemResult{
			{CanonicalID: "5", Command: fleet.CommandDelete, Symbol: "BTC/USDT", ConfigID: &cid},
			{CanonicalID: "legacy-ETH/USDT", Command: fleet.CommandStop, Symbol: "ETH/USDT"},
			{CanonicalID: "9", Skipped: true},
			{CanonicalID: "7", Command: fleet.CommandDelete, Error: "engine rejected"},
		},
	}
	if err := l.RecordBulk(context.Background(), res); err != nil {
		t.Fatalf("record: %v", err)
	}

	ops, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
	if ops[0].OperationID != "op-1" || ops[0].ItemCount != 4 || ops[0].FailedCount != 1 {
		t.Fatalf("unexpected op summary: %+v", ops[0])
	}

	items, err := l.Items(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	byID := make(map[string]fleet.ItemResult, len(items))
	for _, item := range items {
		byID[item.CanonicalID] = item
	}
	if got := byID["5"]; got.Command != fleet.CommandDelete || got.ConfigID == nil || *got.ConfigID != 5 {
		t.Fatalf("config-backed item wrong: %+v", got)
	}
	if got := byID["legacy-ETH/USDT"]; got.Command != fleet.CommandStop || got.ConfigID != nil {
		t.Fatalf("legacy item wrong: %+v", got)
	}
	if !byID["9"].Skipped {
		t.Fatalf("skipped flag lost: %+v", byID["9"])
	}
	if byID["7"].Error != "engine rejected" {
		t.Fatalf("error text lost: %+v", byID["7"])
	}
}

func TestRecentOrdering(t *testing.T) {
	l := openTempLog(t)
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		res := &fleet.BulkResult{
			OperationID: id,
			Action:      fleet.ActionStart,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			FinishedAt:  base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if err := l.RecordBulk(context.Background(), res); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	ops, err := l.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(ops) != 2 || ops[0].OperationID != "new" || ops[1].OperationID != "mid" {
		t.Fatalf("expected newest first, got %+v", ops)
	}
}
