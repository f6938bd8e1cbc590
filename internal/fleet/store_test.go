package fleet

import (
	"testing"
	"time"

	"github.com/tradefleet/fleetd/internal/domain"
)

func TestStore_ApplyResolvePrunesSelection(t *testing.T) {
	store := NewStore()
	rs := NewResolver(nil)

	res := rs.ResolveRaw([]domain.BotConfiguration{cfg(1, "A"), cfg(2, "B"), cfg(3, "C")}, nil)
	store.ApplyResolve(res, 1, time.Now())
	store.SelectAll()
	if store.SelectionCount() != 3 {
		t.Fatalf("expected 3 selected, got %d", store.SelectionCount())
	}

	// next refresh loses bot 2
	res = rs.ResolveRaw([]domain.BotConfiguration{cfg(1, "A"), cfg(3, "C")}, nil)
	snap := store.ApplyResolve(res, 2, time.Now())

	if len(snap.SelectedIDs) != 2 {
		t.Fatalf("expected stale id pruned, got %v", snap.SelectedIDs)
	}
	if snap.SelectedIDs[0] != "1" || snap.SelectedIDs[1] != "3" {
		t.Fatalf("post-refresh selection must be {1,3}, got %v", snap.SelectedIDs)
	}
	if store.IsSelected("2") {
		t.Fatalf("id 2 must not stay selected")
	}
}

func TestStore_AllSelected(t *testing.T) {
	store := NewStore()
	if store.AllSelected() {
		t.Fatalf("empty fleet is never all-selected")
	}
	res := NewResolver(nil).ResolveRaw([]domain.BotConfiguration{cfg(1, "A"), cfg(2, "B")}, nil)
	store.ApplyResolve(res, 1, time.Now())

	store.Select("1")
	if store.AllSelected() {
		t.Fatalf("1 of 2 is not all")
	}
	store.Select("2")
	if !store.AllSelected() {
		t.Fatalf("expected all selected")
	}
}

func TestStore_SnapshotOrderAndToken(t *testing.T) {
	store := NewStore()
	res := NewResolver(nil).ResolveRaw(
		[]domain.BotConfiguration{cfg(2, "B"), cfg(1, "A")},
		[]byte(`{"ZZZ/USDT":{"is_running":true,"symbol":"ZZZ/USDT"}}`),
	)
	snap := store.ApplyResolve(res, 7, time.Now())

	if snap.RefreshToken != 7 {
		t.Fatalf("token not carried: %d", snap.RefreshToken)
	}
	got := make([]string, 0, len(snap.Records))
	for _, rec := range snap.Records {
		got = append(got, rec.CanonicalID)
	}
	want := []string{"2", "1", "legacy-ZZZ/USDT"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("display order wrong: got %v want %v", got, want)
		}
	}
}

func TestStore_RejectsStaleToken(t *testing.T) {
	store := NewStore()
	rs := NewResolver(nil)

	fresh := rs.ResolveRaw([]domain.BotConfiguration{cfg(1, "A"), cfg(2, "B")}, nil)
	store.ApplyResolve(fresh, 2, time.Now())

	// a slower refresh issued earlier finishes late; it must not win
	stale := rs.ResolveRaw([]domain.BotConfiguration{cfg(1, "A")}, nil)
	snap := store.ApplyResolve(stale, 1, time.Now())

	if snap.RefreshToken != 2 {
		t.Fatalf("stale token applied: %d", snap.RefreshToken)
	}
	if len(snap.Records) != 2 {
		t.Fatalf("stale result replaced the fleet: %v", snap.Records)
	}
	if _, ok := store.Get("2"); !ok {
		t.Fatalf("record 2 rolled back by stale refresh")
	}
}

func TestStore_ConfigCountIgnoresLegacy(t *testing.T) {
	store := NewStore()
	res := NewResolver(nil).ResolveRaw(
		[]domain.BotConfiguration{cfg(1, "A")},
		[]byte(`{"X/USDT":{"is_running":true,"symbol":"X/USDT"}}`),
	)
	store.ApplyResolve(res, 1, time.Now())
	if store.ConfigCount() != 1 {
		t.Fatalf("legacy records must not count as configurations, got %d", store.ConfigCount())
	}
}

func TestStore_SubscribePublishesOnResolve(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()
	defer cancel()

	res := NewResolver(nil).ResolveRaw([]domain.BotConfiguration{cfg(1, "A")}, nil)
	store.ApplyResolve(res, 3, time.Now())

	select {
	case snap := <-ch:
		if snap.RefreshToken != 3 {
			t.Fatalf("unexpected snapshot token %d", snap.RefreshToken)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot published")
	}
}

func TestStore_StartingKeys(t *testing.T) {
	store := NewStore()
	store.BeginStart("BTC/USDT-1")
	store.BeginStart("ETH/USDT")
	keys := store.StartingKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 starting keys, got %v", keys)
	}
	store.EndStart("BTC/USDT-1")
	keys = store.StartingKeys()
	if len(keys) != 1 || keys[0] != "ETH/USDT" {
		t.Fatalf("unexpected keys after EndStart: %v", keys)
	}
}
