package fleet

import (
	"github.com/sirupsen/logrus"

	"github.com/tradefleet/fleetd/internal/domain"
)

// Resolver merges persisted configurations and a runtime status report into
// one canonical fleet map. Pure with respect to its inputs: the same
// (configs, status) pair always yields the same map.
type Resolver struct {
	log *logrus.Entry
}

func NewResolver(log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.WithField("component", "resolver")
	}
	return &Resolver{log: log}
}

// Diagnostics reports a degraded (but non-fatal) resolve pass.
type Diagnostics struct {
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// Result is a resolved fleet view. Records is keyed by canonical id; Order
// preserves display order (configs first, then legacy insertions). Callers
// must not rely on Order for correctness.
type Result struct {
	Records     map[string]*domain.CanonicalBotRecord
	Order       []string
	Diagnostics Diagnostics
}

// ResolveRaw parses the raw status payload first. A payload matching no
// known shape degrades to an empty status and marks the result degraded;
// it never fails the pass.
func (rs *Resolver) ResolveRaw(configs []domain.BotConfiguration, rawStatus []byte) *Result {
	status, err := domain.ParseRuntimeStatus(rawStatus)
	res := rs.Resolve(configs, status)
	if err != nil {
		res.Diagnostics = Diagnostics{Degraded: true, Reason: err.Error()}
		rs.log.Warnf("status payload unrecognized, resolving configs only: %v", err)
	}
	return res
}

// Resolve implements the merge. Configurations seed the map; the status
// report is then folded in according to its shape.
func (rs *Resolver) Resolve(configs []domain.BotConfiguration, status *domain.RuntimeStatus) *Result {
	res := &Result{Records: make(map[string]*domain.CanonicalBotRecord, len(configs))}

	for i := range configs {
		rec := recordFromConfig(&configs[i])
		res.insert(rec)
	}

	if status == nil {
		return res
	}

	switch status.Shape {
	case domain.ShapeEmpty:
		// nothing to merge
	case domain.ShapeSingleInstance:
		rs.mergeSingle(res, configs, status.Single)
	case domain.ShapeConfigKeyed, domain.ShapeSymbolKeyed:
		for _, e := range status.Entries {
			rs.mergeEntry(res, e)
		}
	}
	return res
}

// mergeSingle handles the legacy flat shape: one instance for the whole
// account. Prefer its config_id, then a symbol match against the seeded
// configs, then a standalone legacy record.
func (rs *Resolver) mergeSingle(res *Result, configs []domain.BotConfiguration, st *domain.InstanceStatus) {
	if st == nil {
		return
	}
	if st.ConfigID != nil {
		res.upsertRunning(domain.ConfigCanonicalID(*st.ConfigID), st.ConfigID, st, domain.SourceRunning)
		return
	}
	if st.Symbol != "" {
		for i := range configs {
			if configs[i].Symbol == st.Symbol {
				id := configs[i].ID
				res.upsertRunning(domain.ConfigCanonicalID(id), &id, st, domain.SourceRunning)
				return
			}
		}
		res.upsertRunning(domain.LegacyCanonicalID(st.Symbol), nil, st, domain.SourceRunningLegacy)
		return
	}
	rs.log.Warn("single-instance status without config_id or symbol, dropped")
}

func (rs *Resolver) mergeEntry(res *Result, e domain.StatusEntry) {
	if cid := domain.EntryConfigID(e); cid != nil {
		res.upsertRunning(domain.ConfigCanonicalID(*cid), cid, &e.Status, domain.SourceRunning)
		return
	}
	symbol := e.Status.Symbol
	if symbol == "" {
		// Symbol-keyed shape with a bare value: the key is the symbol.
		symbol = e.Key
		e.Status.Symbol = symbol
	}
	res.upsertRunning(domain.LegacyCanonicalID(symbol), nil, &e.Status, domain.SourceRunningLegacy)
}

func recordFromConfig(c *domain.BotConfiguration) *domain.CanonicalBotRecord {
	id := c.ID
	return &domain.CanonicalBotRecord{
		CanonicalID: domain.ConfigCanonicalID(c.ID),
		ConfigID:    &id,
		Symbol:      c.Symbol,
		IsRunning:   false,
		Source:      domain.SourceConfig,
		Strategy:    c.Strategy,
		Timeframe:   c.Timeframe,
		AmountUsdt:  c.AmountUsdt,
		Leverage:    c.Leverage,
		DryRun:      c.DryRun,
		Exchange:    c.Exchange,
		TakeProfit:  c.TakeProfit,
		StopLoss:    c.StopLoss,
	}
}

func (res *Result) insert(rec *domain.CanonicalBotRecord) {
	if _, exists := res.Records[rec.CanonicalID]; !exists {
		res.Order = append(res.Order, rec.CanonicalID)
	}
	res.Records[rec.CanonicalID] = rec
}

// upsertRunning folds a runtime report into the record under canonicalID,
// creating it when no configuration seeded one. Runtime fields win over the
// seed; static fields stay unless the report supplies a replacement.
func (res *Result) upsertRunning(canonicalID string, configID *int64, st *domain.InstanceStatus, source domain.RecordSource) {
	rec, ok := res.Records[canonicalID]
	if !ok {
		rec = &domain.CanonicalBotRecord{
			CanonicalID: canonicalID,
			ConfigID:    configID,
			Symbol:      st.Symbol,
			Source:      source,
		}
		res.insert(rec)
	} else {
		rec.Source = source
		if rec.ConfigID == nil {
			rec.ConfigID = configID
		}
	}

	rec.IsRunning = st.IsRunning
	if st.Pnl != nil {
		rec.Pnl = st.Pnl
	}
	if st.StartedAt != "" {
		rec.StartedAt = st.StartedAt
	}
	if rec.Symbol == "" {
		rec.Symbol = st.Symbol
	}
}
