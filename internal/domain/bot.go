package domain

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// RecordSource tells where a canonical record came from.
type RecordSource string

const (
	// SourceConfig: seeded from a persisted configuration, no runtime report.
	SourceConfig RecordSource = "config"
	// SourceRunning: a runtime report matched a known configuration id.
	SourceRunning RecordSource = "running"
	// SourceRunningLegacy: a runtime report with no configuration id,
	// identified only by symbol. Cannot be deleted, only stopped.
	SourceRunningLegacy RecordSource = "running_legacy"
)

// BotConfiguration is a persisted bot config as the engine stores it.
// Owned by the engine; read-only here.
type BotConfiguration struct {
	ID         int64            `json:"id"`
	Symbol     string           `json:"symbol"`
	Strategy   string           `json:"strategy"`
	Timeframe  string           `json:"timeframe"`
	AmountUsdt decimal.Decimal  `json:"amountUsdt"`
	Leverage   int              `json:"leverage"`
	DryRun     bool             `json:"dryRun"`
	Exchange   string           `json:"exchange"`
	TakeProfit *decimal.Decimal `json:"takeProfit,omitempty"`
	StopLoss   *decimal.Decimal `json:"stopLoss,omitempty"`
}

// CanonicalBotRecord is the merged view of one bot. Recomputed on every
// resolve pass and never mutated in place; a new map replaces the old one.
type CanonicalBotRecord struct {
	CanonicalID string           `json:"canonicalId"`
	ConfigID    *int64           `json:"configId,omitempty"`
	Symbol      string           `json:"symbol"`
	IsRunning   bool             `json:"isRunning"`
	Source      RecordSource     `json:"source"`
	Strategy    string           `json:"strategy,omitempty"`
	Timeframe   string           `json:"timeframe,omitempty"`
	AmountUsdt  decimal.Decimal  `json:"amountUsdt"`
	Leverage    int              `json:"leverage,omitempty"`
	DryRun      bool             `json:"dryRun"`
	Exchange    string           `json:"exchange,omitempty"`
	TakeProfit  *decimal.Decimal `json:"takeProfit,omitempty"`
	StopLoss    *decimal.Decimal `json:"stopLoss,omitempty"`
	Pnl         *decimal.Decimal `json:"pnl,omitempty"`
	StartedAt   string           `json:"startedAt,omitempty"`
}

// ConfigCanonicalID builds the canonical identifier for a configuration id.
func ConfigCanonicalID(configID int64) string {
	return strconv.FormatInt(configID, 10)
}

// LegacyCanonicalID builds the canonical identifier for a symbol-only
// runtime instance.
func LegacyCanonicalID(symbol string) string {
	return "legacy-" + symbol
}

// StartKey is the transient key marking an in-flight start request for this
// record. Independent of the canonical id on purpose: the UI keyed its
// feedback this way long before canonical ids existed.
func (r *CanonicalBotRecord) StartKey() string {
	if r.ConfigID != nil {
		return fmt.Sprintf("%s-%d", r.Symbol, *r.ConfigID)
	}
	return r.Symbol
}

// Deletable reports whether the record is backed by a persisted
// configuration. Legacy runtime-only records have nothing to delete.
func (r *CanonicalBotRecord) Deletable() bool {
	return r.ConfigID != nil && r.Source != SourceRunningLegacy
}
