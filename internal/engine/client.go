package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tradefleet/fleetd/internal/domain"
)

// Client talks HTTP+JSON to the trading engine. Retries are limited to
// idempotent reads; commands are issued exactly once and failures surface
// to the caller. Retry policy is per-client in resty, so reads and
// commands go through separate clients.
type Client struct {
	reads    *resty.Client
	commands *resty.Client
}

type ClientOptions struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	RetryCount int
}

func NewClient(opts ClientOptions) *Client {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	// resty picks up HTTP_PROXY / HTTPS_PROXY from the environment.
	newHTTP := func() *resty.Client {
		c := resty.New().
			SetBaseURL(base).
			SetTimeout(opts.Timeout)
		if opts.AuthToken != "" {
			c.SetAuthToken(opts.AuthToken)
		}
		return c
	}

	reads := newHTTP().
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if wait, ok := retryAfterDelay(resp.Header().Get("Retry-After")); ok {
					return wait, nil
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{reads: reads, commands: newHTTP()}
}

// retryAfterDelay parses a Retry-After header, either delta-seconds or an
// HTTP-date.
func retryAfterDelay(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait, true
		}
		return 0, true
	}
	return 0, false
}

func (c *Client) FetchConfigs(ctx context.Context) ([]domain.BotConfiguration, error) {
	resp, err := c.reads.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/api/configs")
	if err != nil {
		return nil, errors.Wrap(err, "fetch configs")
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetch configs: status=%d body=%s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	var configs []domain.BotConfiguration
	if err := json.Unmarshal(resp.Body(), &configs); err != nil {
		return nil, errors.Wrap(err, "decode configs")
	}
	return configs, nil
}

// FetchStatus returns the status payload untouched; shape classification
// belongs to the domain parser.
func (c *Client) FetchStatus(ctx context.Context) ([]byte, error) {
	resp, err := c.reads.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get("/api/status")
	if err != nil {
		return nil, errors.Wrap(err, "fetch status")
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetch status: status=%d body=%s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return resp.Body(), nil
}

func (c *Client) Start(ctx context.Context, cmd Command) error {
	return c.postCommand(ctx, "/api/bot/start", cmd)
}

func (c *Client) Stop(ctx context.Context, cmd Command) error {
	return c.postCommand(ctx, "/api/bot/stop", cmd)
}

func (c *Client) DeleteConfig(ctx context.Context, configID int64) error {
	resp, err := c.commands.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/api/configs/%d", configID))
	if err != nil {
		return errors.Wrapf(err, "delete config %d", configID)
	}
	if resp.IsError() {
		return errors.Errorf("delete config %d: status=%d body=%s", configID, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func (c *Client) postCommand(ctx context.Context, path string, cmd Command) error {
	if cmd.ConfigID == nil && cmd.Symbol == "" {
		return errors.Errorf("%s: command needs a config_id or symbol", path)
	}
	resp, err := c.commands.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(cmd).
		Post(path)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	if resp.IsError() {
		return errors.Errorf("post %s: status=%d body=%s", path, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
