package engine

import (
	"context"

	"github.com/tradefleet/fleetd/internal/domain"
)

// Command addresses one bot instance for start/stop. ConfigID when the bot
// is configuration-backed, Symbol alone for legacy instances.
type Command struct {
	ConfigID *int64 `json:"config_id,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
}

// API is the trading-engine/config-store contract the fleet engine consumes.
// Status is returned raw: the wire shape varies historically and is
// classified by the domain parser, not here.
type API interface {
	FetchConfigs(ctx context.Context) ([]domain.BotConfiguration, error)
	FetchStatus(ctx context.Context) ([]byte, error)
	Start(ctx context.Context, cmd Command) error
	Stop(ctx context.Context, cmd Command) error
	DeleteConfig(ctx context.Context, configID int64) error
}
