package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradefleet/fleetd/internal/domain"
	"github.com/tradefleet/fleetd/internal/engine"
)

// Refresher periodically re-fetches configurations and runtime status and
// feeds them through the resolver. Cadence follows dashboard visibility:
// Active while at least one client watches, Inactive otherwise. One loop
// owns one timer; mode transitions and manual refreshes re-arm it instead
// of stacking new ones.
type Refresher struct {
	api      engine.API
	resolver *Resolver
	store    *Store
	log      *logrus.Entry

	activeInterval   time.Duration
	inactiveInterval time.Duration

	mu     sync.Mutex
	active bool

	// seq stamps every issued fetch pair; a completed pair publishes only
	// if it is still the newest issued, so out-of-order responses cannot
	// roll the fleet back to stale data.
	seq uint64

	kick  chan struct{} // wake the loop and refresh now
	rearm chan struct{} // wake the loop without refreshing
}

func NewRefresher(api engine.API, resolver *Resolver, store *Store, activeInterval, inactiveInterval time.Duration, log *logrus.Entry) *Refresher {
	if log == nil {
		log = logrus.WithField("component", "refresher")
	}
	if activeInterval <= 0 {
		activeInterval = 30 * time.Second
	}
	if inactiveInterval <= 0 {
		inactiveInterval = 60 * time.Second
	}
	return &Refresher{
		api:              api,
		resolver:         resolver,
		store:            store,
		log:              log,
		activeInterval:   activeInterval,
		inactiveInterval: inactiveInterval,
		kick:             make(chan struct{}, 1),
		rearm:            make(chan struct{}, 1),
	}
}

// SetActive switches polling cadence. Going active also refreshes
// immediately, so a returning viewer never stares at minute-old data.
func (r *Refresher) SetActive(active bool) {
	r.mu.Lock()
	was := r.active
	r.active = active
	r.mu.Unlock()

	if active && !was {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
}

func (r *Refresher) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Refresher) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return r.activeInterval
	}
	return r.inactiveInterval
}

// Run drives the poll loop until ctx is done. An immediate first refresh
// seeds the store.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshNow(ctx)
	for {
		timer := time.NewTimer(r.currentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.refreshOnce(ctx)
		case <-r.kick:
			timer.Stop()
			r.refreshOnce(ctx)
		case <-r.rearm:
			timer.Stop()
		}
	}
}

// RefreshNow performs a synchronous refresh and re-arms the loop timer at
// the current interval. Always available regardless of cadence.
func (r *Refresher) RefreshNow(ctx context.Context) Snapshot {
	snap := r.refreshOnce(ctx)
	select {
	case r.rearm <- struct{}{}:
	default:
	}
	return snap
}

// refreshOnce fetches configs and status concurrently, waits for both
// (join semantics: the resolver never runs on a partial pair) and applies
// the result unless a newer refresh was issued meanwhile.
func (r *Refresher) refreshOnce(ctx context.Context) Snapshot {
	token := atomic.AddUint64(&r.seq, 1)

	var (
		wg        sync.WaitGroup
		configs   []domain.BotConfiguration
		configErr error
		rawStatus []byte
		statusErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		configs, configErr = r.api.FetchConfigs(ctx)
	}()
	go func() {
		defer wg.Done()
		rawStatus, statusErr = r.api.FetchStatus(ctx)
	}()
	wg.Wait()

	// Fast path only: the store re-checks the token under its own lock, so
	// a pair that passes here but loses the race still cannot apply.
	if atomic.LoadUint64(&r.seq) != token {
		r.log.Debugf("discarding stale refresh token=%d", token)
		return r.store.Snapshot()
	}

	if configErr != nil {
		// Degrade to whatever arrived; the next tick retries.
		r.log.Warnf("fetch configs failed, resolving partial fleet: %v", configErr)
		configs = nil
	}
	if statusErr != nil {
		r.log.Warnf("fetch status failed, resolving configs only: %v", statusErr)
		rawStatus = nil
	}

	res := r.resolver.ResolveRaw(configs, rawStatus)
	if configErr != nil || statusErr != nil {
		res.Diagnostics.Degraded = true
		if res.Diagnostics.Reason == "" {
			res.Diagnostics.Reason = firstErr(configErr, statusErr).Error()
		}
	}
	return r.store.ApplyResolve(res, token, time.Now())
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
