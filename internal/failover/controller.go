package failover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mainbong/copilot_kit/internal/llm"
	"github.com/mainbong/copilot_kit/internal/logger"
)

// DefaultHealthCheckInterval applies when the policy sets none
const DefaultHealthCheckInterval = 30 * time.Second

const maxConcurrentProbes = 4

// ConfigResolver returns the configuration for a provider name
type ConfigResolver func(name string) (llm.ProviderConfig, bool)

type Option func(*Controller)

// WithPolicy sets the failover policy used when the primary's config has none
func WithPolicy(policy llm.FailoverConfig) Option {
	return func(c *Controller) { c.defaultPolicy = policy }
}

// WithStatusHook observes every status replacement
func WithStatusHook(hook func(llm.ProviderStatus)) Option {
	return func(c *Controller) { c.onStatus = hook }
}

// Controller keeps one provider active, probes it periodically and walks
// the fallback chain when it fails. Status records are replaced whole.
type Controller struct {
	registry      *llm.Registry
	resolve       ConfigResolver
	defaultPolicy llm.FailoverConfig
	onStatus      func(llm.ProviderStatus)

	mu         sync.Mutex
	primary    string
	policy     llm.FailoverConfig
	active     llm.Provider
	activeName string
	statuses   map[string]*llm.ProviderStatus

	loopMu  sync.Mutex
	loopCtx context.Context // set by Start, cleared by Stop
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func NewController(registry *llm.Registry, resolve ConfigResolver, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		resolve:  resolve,
		statuses: make(map[string]*llm.ProviderStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolve == nil {
		c.resolve = func(name string) (llm.ProviderConfig, bool) { return llm.ProviderConfig{}, false }
	}
	return c
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (c *Controller) configFor(name string) llm.ProviderConfig {
	cfg, ok := c.resolve(name)
	if !ok {
		cfg = llm.ProviderConfig{}
	}
	cfg.ModelProvider = name
	return cfg
}

func (c *Controller) policyFor(primary string) llm.FailoverConfig {
	cfg := c.configFor(primary)
	if cfg.Enterprise != nil {
		return cfg.Enterprise.Failover
	}
	return c.defaultPolicy
}

// candidates lists the primary followed by the configured fallbacks,
// deduplicated, with unknown fallback names dropped
func (c *Controller) candidates(primary string, policy llm.FailoverConfig) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 1+len(policy.FallbackProviders))
	add := func(name string, validate bool) {
		name = normalizeName(name)
		if name == "" {
			return
		}
		if validate {
			if _, ok := c.registry.Lookup(name); !ok {
				logger.Warn("ignoring unknown fallback provider %q", name)
				return
			}
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	add(primary, false)
	if policy.Enabled {
		for _, name := range policy.FallbackProviders {
			add(name, true)
		}
	}
	return out
}

// Select activates the primary provider or, when it cannot be used and
// failover is enabled, the first fallback that authenticates and is healthy.
func (c *Controller) Select(ctx context.Context, primary string) (llm.Provider, error) {
	primary = normalizeName(primary)
	policy := c.policyFor(primary)

	c.mu.Lock()
	c.primary = primary
	c.policy = policy
	c.mu.Unlock()

	return c.activateFirst(ctx, c.candidates(primary, policy), "")
}

// SwitchProvider marks failed unhealthy and activates the next usable fallback
func (c *Controller) SwitchProvider(ctx context.Context, failed string) (llm.Provider, error) {
	return c.switchFrom(ctx, normalizeName(failed), nil)
}

func (c *Controller) switchFrom(ctx context.Context, failed string, cause error) (llm.Provider, error) {
	c.mu.Lock()
	primary, policy := c.primary, c.policy
	c.mu.Unlock()

	msg := "switched away after failure"
	if cause != nil {
		msg = cause.Error()
	}
	c.markUnhealthy(failed, msg)

	if !policy.Enabled {
		c.clearActive()
		logger.Error("provider %s failed and failover is disabled", failed)
		return nil, fmt.Errorf("%w: %s failed and failover is disabled", llm.ErrNoProviderAvailable, failed)
	}
	logger.Warn("switching to fallback provider after %s failed", failed)
	return c.activateFirst(ctx, c.candidates(primary, policy), failed)
}

// ReportFailure records a transport failure of the named provider. The
// provider is re-probed and replaced only when the probe fails too.
func (c *Controller) ReportFailure(ctx context.Context, name string, cause error) (llm.Provider, error) {
	name = normalizeName(name)
	c.mu.Lock()
	active, activeName := c.active, c.activeName
	c.mu.Unlock()

	if active == nil || activeName != name {
		return c.Active(), nil
	}
	if err := active.CheckHealth(ctx); err == nil {
		logger.Info("provider %s is healthy after reported failure: %v", name, cause)
		c.setStatus(c.statusFor(name, active, true, true, ""))
		return active, nil
	}
	return c.switchFrom(ctx, name, cause)
}

// Probe health-checks the active provider and fails over when it is unhealthy
func (c *Controller) Probe(ctx context.Context) error {
	c.mu.Lock()
	active, name := c.active, c.activeName
	c.mu.Unlock()
	if active == nil {
		return llm.ErrNoProviderAvailable
	}

	if err := active.CheckHealth(ctx); err != nil {
		logger.Warn("health check of %s failed: %v", name, err)
		_, switchErr := c.switchFrom(ctx, name, err)
		return switchErr
	}
	c.setStatus(c.statusFor(name, active, true, true, ""))
	return nil
}

func (c *Controller) activateFirst(ctx context.Context, names []string, skip string) (llm.Provider, error) {
	var lastErr error
	for _, name := range names {
		if name == skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := c.activate(ctx, name)
		if err != nil {
			logger.Warn("provider %s is not usable: %v", name, err)
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.active = p
		c.activeName = name
		c.mu.Unlock()
		logger.Info("active provider: %s (%s)", name, p.Model())
		c.resume()
		return p, nil
	}

	c.clearActive()
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrNoProviderAvailable, lastErr)
	}
	return nil, llm.ErrNoProviderAvailable
}

// activate creates, authenticates and health-checks one provider
func (c *Controller) activate(ctx context.Context, name string) (llm.Provider, error) {
	p, err := c.registry.Create(c.configFor(name))
	if err != nil {
		c.setStatus(llm.ProviderStatus{Name: name, LastChecked: time.Now(), Error: err.Error()})
		return nil, err
	}
	if err := p.Authenticate(ctx); err != nil {
		c.setStatus(c.statusFor(name, p, false, false, err.Error()))
		return nil, err
	}
	if err := p.CheckHealth(ctx); err != nil {
		c.setStatus(c.statusFor(name, p, true, false, err.Error()))
		return nil, err
	}
	c.setStatus(c.statusFor(name, p, true, true, ""))
	return p, nil
}

func (c *Controller) statusFor(name string, p llm.Provider, available, healthy bool, errMsg string) llm.ProviderStatus {
	st := llm.ProviderStatus{
		Name:        name,
		IsAvailable: available,
		IsHealthy:   healthy,
		LastChecked: time.Now(),
		Error:       errMsg,
	}
	if p != nil {
		m := p.Metrics()
		st.Metrics = &m
	}
	return st
}

func (c *Controller) markUnhealthy(name, errMsg string) {
	prev, ok := c.Status(name)
	st := llm.ProviderStatus{Name: name, LastChecked: time.Now(), Error: errMsg}
	if ok {
		st.IsAvailable = prev.IsAvailable
		st.Metrics = prev.Metrics
	}
	c.mu.Lock()
	if c.activeName == name && c.active != nil {
		m := c.active.Metrics()
		st.Metrics = &m
	}
	c.mu.Unlock()
	c.setStatus(st)
}

func (c *Controller) clearActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
	c.activeName = ""
}

func (c *Controller) setStatus(st llm.ProviderStatus) {
	if st.Metrics != nil {
		m := *st.Metrics
		st.Metrics = &m
	}
	c.mu.Lock()
	c.statuses[st.Name] = &st
	c.mu.Unlock()

	if c.onStatus != nil {
		c.onStatus(st)
	}
}

// RefreshAll probes every registered provider concurrently. The active
// provider is not changed.
func (c *Controller) RefreshAll(ctx context.Context) []llm.ProviderStatus {
	names := c.registry.Names()
	results := make([]llm.ProviderStatus, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			st := c.check(gctx, name)
			results[i] = st
			c.setStatus(st)
			return nil
		})
	}
	g.Wait()
	return results
}

func (c *Controller) check(ctx context.Context, name string) llm.ProviderStatus {
	p, err := c.registry.Create(c.configFor(name))
	if err != nil {
		return llm.ProviderStatus{Name: name, LastChecked: time.Now(), Error: err.Error()}
	}
	if err := p.Authenticate(ctx); err != nil {
		return c.statusFor(name, p, false, false, err.Error())
	}
	if err := p.CheckHealth(ctx); err != nil {
		return c.statusFor(name, p, true, false, err.Error())
	}
	return c.statusFor(name, p, true, true, "")
}

// Start runs the periodic health probe. The loop pauses while no provider
// is active and resumes on the next successful selection. It ends on Stop
// or when ctx is done.
func (c *Controller) Start(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	c.loopCtx = ctx
	if !c.running {
		c.startLocked()
	}
}

// resume restarts a started loop that paused for lack of an active provider
func (c *Controller) resume() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.loopCtx != nil && !c.running {
		c.startLocked()
	}
}

// startLocked launches the loop; loopMu must be held
func (c *Controller) startLocked() {
	if c.loopCtx.Err() != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	go c.loop(c.loopCtx, c.interval(), c.stop, c.done)
}

func (c *Controller) interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.policy.HealthCheckInterval > 0 {
		return c.policy.HealthCheckInterval
	}
	if c.defaultPolicy.HealthCheckInterval > 0 {
		return c.defaultPolicy.HealthCheckInterval
	}
	return DefaultHealthCheckInterval
}

func (c *Controller) loop(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	ticker := time.NewTicker(interval)
	paused := false
	defer func() {
		ticker.Stop()
		c.loopMu.Lock()
		if c.done == done {
			c.running = false
			// a selection that landed while this loop was exiting
			if paused && c.loopCtx != nil && c.Active() != nil {
				c.startLocked()
			}
		}
		c.loopMu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if c.Active() == nil {
				logger.Info("no active provider, pausing health checks")
				paused = true
				return
			}
			if err := c.Probe(ctx); err != nil && errors.Is(err, llm.ErrNoProviderAvailable) {
				logger.Error("health check left no provider available: %v", err)
				paused = true
				return
			}
		}
	}
}

// Stop ends the probe loop and waits for it to exit
func (c *Controller) Stop() {
	c.loopMu.Lock()
	c.loopCtx = nil
	if !c.running {
		c.loopMu.Unlock()
		return
	}
	stop, done := c.stop, c.done
	c.running = false
	c.loopMu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the probe loop is active
func (c *Controller) Running() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.running
}

// Active returns the active provider, or nil
func (c *Controller) Active() llm.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ActiveName returns the name of the active provider, or ""
func (c *Controller) ActiveName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeName
}

// Status returns a copy of the last status record for name
func (c *Controller) Status(name string) (llm.ProviderStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.statuses[normalizeName(name)]
	if !ok {
		return llm.ProviderStatus{}, false
	}
	return *st, true
}

// Statuses returns copies of all status records ordered by name
func (c *Controller) Statuses() []llm.ProviderStatus {
	c.mu.Lock()
	out := make([]llm.ProviderStatus, 0, len(c.statuses))
	for _, st := range c.statuses {
		out = append(out, *st)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
