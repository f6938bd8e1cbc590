package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tradefleet/fleetd/internal/domain"
	"github.com/tradefleet/fleetd/internal/engine"
)

// Action is a bulk lifecycle operation.
type Action string

const (
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionDelete Action = "delete"
)

// CommandKind is the command actually issued for one item. It can differ
// from the action: deleting a legacy record degrades to a stop, and
// deleting a running configured bot issues stop then delete.
type CommandKind string

const (
	CommandStart  CommandKind = "start"
	CommandStop   CommandKind = "stop"
	CommandDelete CommandKind = "delete"
)

// ItemResult is the settled outcome for one selected id. Failures stay
// per-item; they are never folded into a single pass/fail.
type ItemResult struct {
	CanonicalID string      `json:"canonicalId"`
	Command     CommandKind `json:"command"`
	Symbol      string      `json:"symbol,omitempty"`
	ConfigID    *int64      `json:"configId,omitempty"`
	Skipped     bool        `json:"skipped,omitempty"` // id vanished from the fleet before dispatch
	Error       string      `json:"error,omitempty"`
}

func (ir *ItemResult) OK() bool { return ir.Error == "" && !ir.Skipped }

// BulkResult is the settled outcome of a whole bulk operation.
type BulkResult struct {
	OperationID string       `json:"operationId"`
	Action      Action       `json:"action"`
	Items       []ItemResult `json:"items"`
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt"`
}

// Recorder persists settled bulk operations (audit log). Recording failures
// are logged, not propagated: the commands already happened.
type Recorder interface {
	RecordBulk(ctx context.Context, res *BulkResult) error
}

// Coordinator resolves selected canonical ids back to engine commands and
// issues them concurrently and independently. It never refreshes the fleet
// itself; callers must trigger a refresh once a bulk call returns.
type Coordinator struct {
	api      engine.API
	store    *Store
	recorder Recorder
	log      *logrus.Entry
}

func NewCoordinator(api engine.API, store *Store, recorder Recorder, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.WithField("component", "coordinator")
	}
	return &Coordinator{api: api, store: store, recorder: recorder, log: log}
}

// BulkStart issues a start command for every selected id still present in
// the fleet.
func (c *Coordinator) BulkStart(ctx context.Context, ids []string) *BulkResult {
	return c.run(ctx, ActionStart, ids, c.startOne)
}

// BulkStop issues a stop command for every selected id still present in
// the fleet.
func (c *Coordinator) BulkStop(ctx context.Context, ids []string) *BulkResult {
	return c.run(ctx, ActionStop, ids, c.stopOne)
}

// BulkDelete deletes configuration-backed records. Legacy runtime-only
// records have no configuration to remove and are stopped instead; this
// asymmetry is deliberate. A running configured bot is stopped first, then
// deleted.
func (c *Coordinator) BulkDelete(ctx context.Context, ids []string) *BulkResult {
	return c.run(ctx, ActionDelete, ids, c.deleteOne)
}

func (c *Coordinator) run(ctx context.Context, action Action, ids []string, one func(context.Context, *domain.CanonicalBotRecord) ItemResult) *BulkResult {
	res := &BulkResult{
		OperationID: uuid.NewString(),
		Action:      action,
		StartedAt:   time.Now(),
		Items:       make([]ItemResult, len(ids)),
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var wg sync.WaitGroup
	for i, id := range sorted {
		rec, ok := c.store.Get(id)
		if !ok {
			res.Items[i] = ItemResult{CanonicalID: id, Skipped: true}
			continue
		}
		wg.Add(1)
		go func(i int, rec *domain.CanonicalBotRecord) {
			defer wg.Done()
			res.Items[i] = one(ctx, rec)
		}(i, rec)
	}
	wg.Wait()
	res.FinishedAt = time.Now()

	failed := 0
	for i := range res.Items {
		if res.Items[i].Error != "" {
			failed++
		}
	}
	c.log.Infof("bulk %s settled: op=%s items=%d failed=%d", action, res.OperationID, len(res.Items), failed)

	if c.recorder != nil {
		if err := c.recorder.RecordBulk(ctx, res); err != nil {
			c.log.Warnf("record bulk op %s: %v", res.OperationID, err)
		}
	}
	return res
}

func (c *Coordinator) startOne(ctx context.Context, rec *domain.CanonicalBotRecord) ItemResult {
	item := ItemResult{CanonicalID: rec.CanonicalID, Command: CommandStart, Symbol: rec.Symbol, ConfigID: rec.ConfigID}

	key := rec.StartKey()
	c.store.BeginStart(key)
	defer c.store.EndStart(key)

	if err := c.api.Start(ctx, commandFor(rec)); err != nil {
		item.Error = err.Error()
	}
	return item
}

func (c *Coordinator) stopOne(ctx context.Context, rec *domain.CanonicalBotRecord) ItemResult {
	item := ItemResult{CanonicalID: rec.CanonicalID, Command: CommandStop, Symbol: rec.Symbol, ConfigID: rec.ConfigID}
	if err := c.api.Stop(ctx, commandFor(rec)); err != nil {
		item.Error = err.Error()
	}
	return item
}

func (c *Coordinator) deleteOne(ctx context.Context, rec *domain.CanonicalBotRecord) ItemResult {
	item := ItemResult{CanonicalID: rec.CanonicalID, Symbol: rec.Symbol, ConfigID: rec.ConfigID}

	if !rec.Deletable() {
		// Nothing persisted to remove; stopping is the only meaningful action.
		item.Command = CommandStop
		if err := c.api.Stop(ctx, commandFor(rec)); err != nil {
			item.Error = err.Error()
		}
		return item
	}

	item.Command = CommandDelete
	if rec.IsRunning {
		// Engine keeps a deleted config's instance running unless stopped
		// first; stop failure aborts this item's delete.
		if err := c.api.Stop(ctx, commandFor(rec)); err != nil {
			item.Error = err.Error()
			return item
		}
	}
	if err := c.api.DeleteConfig(ctx, *rec.ConfigID); err != nil {
		item.Error = err.Error()
	}
	return item
}

func commandFor(rec *domain.CanonicalBotRecord) engine.Command {
	if rec.ConfigID != nil {
		return engine.Command{ConfigID: rec.ConfigID}
	}
	return engine.Command{Symbol: rec.Symbol}
}
