package failover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mainbong/copilot_kit/internal/llm"
)

type fixture struct {
	registry  *llm.Registry
	providers map[string]*llm.MockProvider
	configs   map[string]llm.ProviderConfig
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry:  llm.NewRegistry(),
		providers: make(map[string]*llm.MockProvider),
		configs:   make(map[string]llm.ProviderConfig),
	}
	for _, name := range names {
		mock := llm.NewNamedMockProvider(name)
		f.providers[name] = mock
		err := f.registry.Register(llm.Registration{
			Name: name,
			Factory: func(cfg llm.ProviderConfig) (llm.Provider, error) {
				return mock, nil
			},
		})
		if err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}
	return f
}

func (f *fixture) resolver(name string) (llm.ProviderConfig, bool) {
	cfg, ok := f.configs[name]
	return cfg, ok
}

func (f *fixture) withFallbacks(primary string, fallbacks ...string) {
	f.configs[primary] = llm.ProviderConfig{
		ModelProvider: primary,
		Enterprise: &llm.EnterpriseConfig{Failover: llm.FailoverConfig{
			Enabled:           true,
			FallbackProviders: fallbacks,
		}},
	}
}

func TestSelect_Primary(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	c := NewController(f.registry, f.resolver)

	p, err := c.Select(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if p.Name() != "p1" || c.ActiveName() != "p1" {
		t.Errorf("active = %s", c.ActiveName())
	}
	st, ok := c.Status("p1")
	if !ok || !st.IsAvailable || !st.IsHealthy || st.LastChecked.IsZero() {
		t.Errorf("status = %+v", st)
	}
}

func TestSelect_FailsOverOnUnhealthyPrimary(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.withFallbacks("p1", "p2")
	f.providers["p1"].SetHealthError(errors.New("503 from health"))
	c := NewController(f.registry, f.resolver)

	p, err := c.Select(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if p.Name() != "p2" {
		t.Errorf("active = %s, want p2", p.Name())
	}
	st, _ := c.Status("p1")
	if st.IsHealthy || st.Error == "" {
		t.Errorf("p1 status = %+v, want unhealthy with error", st)
	}
}

func TestSwitchProvider(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.withFallbacks("p1", "p2")
	c := NewController(f.registry, f.resolver)

	if _, err := c.Select(context.Background(), "p1"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	f.providers["p1"].SetHealthError(errors.New("down"))

	p, err := c.SwitchProvider(context.Background(), "p1")
	if err != nil {
		t.Fatalf("SwitchProvider() error = %v", err)
	}
	if p.Name() != "p2" || c.ActiveName() != "p2" {
		t.Errorf("active = %s, want p2", c.ActiveName())
	}
	if st, _ := c.Status("p1"); st.IsHealthy {
		t.Errorf("p1 status = %+v, want unhealthy", st)
	}
}

func TestSwitchProvider_SkipsFailingFallbacks(t *testing.T) {
	f := newFixture(t, "p1", "p2", "p3")
	f.withFallbacks("p1", "p2", "unknown", "p2", "p3")
	f.providers["p2"].SetAuthError(llm.ErrMissingAPIKey)
	c := NewController(f.registry, f.resolver)
	c.Select(context.Background(), "p1")

	p, err := c.SwitchProvider(context.Background(), "p1")
	if err != nil {
		t.Fatalf("SwitchProvider() error = %v", err)
	}
	if p.Name() != "p3" {
		t.Errorf("active = %s, want p3", p.Name())
	}
	if st, _ := c.Status("p2"); st.IsAvailable {
		t.Errorf("p2 status = %+v, want unavailable", st)
	}
}

func TestSwitchProvider_ExhaustedChain(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.withFallbacks("p1", "p2")
	f.providers["p2"].SetHealthError(errors.New("down"))
	c := NewController(f.registry, f.resolver)
	c.Select(context.Background(), "p1")

	_, err := c.SwitchProvider(context.Background(), "p1")
	if !errors.Is(err, llm.ErrNoProviderAvailable) {
		t.Fatalf("SwitchProvider() error = %v, want ErrNoProviderAvailable", err)
	}
	if c.Active() != nil {
		t.Error("active provider should be cleared")
	}
}

func TestSwitchProvider_FailoverDisabled(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	c := NewController(f.registry, f.resolver, WithPolicy(llm.FailoverConfig{FallbackProviders: []string{"p2"}}))
	c.Select(context.Background(), "p1")

	if _, err := c.SwitchProvider(context.Background(), "p1"); !errors.Is(err, llm.ErrNoProviderAvailable) {
		t.Errorf("SwitchProvider() error = %v, want ErrNoProviderAvailable", err)
	}
}

func TestSelect_UnknownPrimaryFallsBack(t *testing.T) {
	f := newFixture(t, "p2")
	c := NewController(f.registry, f.resolver, WithPolicy(llm.FailoverConfig{Enabled: true, FallbackProviders: []string{"p2"}}))

	p, err := c.Select(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if p.Name() != "p2" {
		t.Errorf("active = %s", p.Name())
	}
	if st, ok := c.Status("gone"); !ok || st.IsAvailable {
		t.Errorf("gone status = %+v", st)
	}
}

func TestReportFailure(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.withFallbacks("p1", "p2")
	c := NewController(f.registry, f.resolver)
	c.Select(context.Background(), "p1")

	// still healthy: stays on p1
	p, err := c.ReportFailure(context.Background(), "p1", errors.New("timeout"))
	if err != nil || p.Name() != "p1" {
		t.Fatalf("ReportFailure() = %v, %v; want p1", p, err)
	}

	f.providers["p1"].SetHealthError(errors.New("down"))
	p, err = c.ReportFailure(context.Background(), "p1", errors.New("timeout"))
	if err != nil || p.Name() != "p2" {
		t.Fatalf("ReportFailure() = %v, %v; want p2", p, err)
	}
}

func TestProbe(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.withFallbacks("p1", "p2")
	c := NewController(f.registry, f.resolver)

	if err := c.Probe(context.Background()); !errors.Is(err, llm.ErrNoProviderAvailable) {
		t.Errorf("Probe() without active = %v", err)
	}

	c.Select(context.Background(), "p1")
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	f.providers["p1"].SetHealthError(errors.New("down"))
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if c.ActiveName() != "p2" {
		t.Errorf("active = %s, want p2", c.ActiveName())
	}
}

func TestRefreshAll(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.providers["b"].SetHealthError(errors.New("down"))
	f.providers["c"].SetAuthError(llm.ErrMissingAPIKey)
	c := NewController(f.registry, f.resolver)

	statuses := c.RefreshAll(context.Background())
	if len(statuses) != 3 {
		t.Fatalf("got %d statuses", len(statuses))
	}
	byName := map[string]llm.ProviderStatus{}
	for _, st := range c.Statuses() {
		byName[st.Name] = st
	}
	if !byName["a"].IsHealthy || byName["b"].IsHealthy || !byName["b"].IsAvailable || byName["c"].IsAvailable {
		t.Errorf("statuses = %+v", byName)
	}
	if c.Active() != nil {
		t.Error("RefreshAll must not select a provider")
	}
}

func TestStatusHookAndCopies(t *testing.T) {
	f := newFixture(t, "p1")
	var mu sync.Mutex
	var seen []llm.ProviderStatus
	c := NewController(f.registry, f.resolver, WithStatusHook(func(st llm.ProviderStatus) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	}))
	c.Select(context.Background(), "p1")

	mu.Lock()
	if len(seen) != 1 || seen[0].Name != "p1" {
		t.Errorf("hook saw %+v", seen)
	}
	mu.Unlock()

	st, _ := c.Status("p1")
	st.IsHealthy = false
	if again, _ := c.Status("p1"); !again.IsHealthy {
		t.Error("Status() must return a copy")
	}
}

func TestHealthLoopFailsOver(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.configs["p1"] = llm.ProviderConfig{Enterprise: &llm.EnterpriseConfig{Failover: llm.FailoverConfig{
		Enabled:             true,
		FallbackProviders:   []string{"p2"},
		HealthCheckInterval: 5 * time.Millisecond,
	}}}
	c := NewController(f.registry, f.resolver)
	c.Select(context.Background(), "p1")
	c.Start(context.Background())
	defer c.Stop()

	f.providers["p1"].SetHealthError(errors.New("down"))
	deadline := time.Now().Add(2 * time.Second)
	for c.ActiveName() != "p2" {
		if time.Now().After(deadline) {
			t.Fatalf("active = %q, want p2", c.ActiveName())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthLoopStopsWithoutActiveProvider(t *testing.T) {
	f := newFixture(t, "p1")
	f.configs["p1"] = llm.ProviderConfig{Enterprise: &llm.EnterpriseConfig{Failover: llm.FailoverConfig{
		HealthCheckInterval: 5 * time.Millisecond,
	}}}
	c := NewController(f.registry, f.resolver)
	c.Select(context.Background(), "p1")
	c.Start(context.Background())

	f.providers["p1"].SetHealthError(errors.New("down"))
	deadline := time.Now().Add(2 * time.Second)
	for c.Running() {
		if time.Now().After(deadline) {
			t.Fatal("health loop still running without an active provider")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if c.Active() != nil {
		t.Error("expected no active provider")
	}
	c.Stop()
}

func TestHealthLoopResumesAfterReselect(t *testing.T) {
	f := newFixture(t, "p1")
	f.configs["p1"] = llm.ProviderConfig{Enterprise: &llm.EnterpriseConfig{Failover: llm.FailoverConfig{
		HealthCheckInterval: 5 * time.Millisecond,
	}}}
	c := NewController(f.registry, f.resolver)
	c.Select(context.Background(), "p1")
	c.Start(context.Background())
	defer c.Stop()

	f.providers["p1"].SetHealthError(errors.New("down"))
	deadline := time.Now().Add(2 * time.Second)
	for c.Running() || c.Active() != nil {
		if time.Now().After(deadline) {
			t.Fatal("health loop did not pause during the outage")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.providers["p1"].SetHealthError(nil)
	if _, err := c.Select(context.Background(), "p1"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !c.Running() {
		t.Error("health loop not running after reselect")
	}

	c.Stop()
	if _, err := c.Select(context.Background(), "p1"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if c.Running() {
		t.Error("Select() restarted a stopped loop")
	}
}

func TestStart_UsesDefaultPolicyInterval(t *testing.T) {
	f := newFixture(t, "p1")
	c := NewController(f.registry, f.resolver, WithPolicy(llm.FailoverConfig{HealthCheckInterval: 7 * time.Second}))
	if got := c.interval(); got != 7*time.Second {
		t.Errorf("interval() before Select = %v, want 7s", got)
	}

	f.configs["p1"] = llm.ProviderConfig{Enterprise: &llm.EnterpriseConfig{Failover: llm.FailoverConfig{
		HealthCheckInterval: time.Second,
	}}}
	c.Select(context.Background(), "p1")
	if got := c.interval(); got != time.Second {
		t.Errorf("interval() after Select = %v, want 1s", got)
	}

	if got := NewController(f.registry, f.resolver).interval(); got != DefaultHealthCheckInterval {
		t.Errorf("interval() = %v, want default", got)
	}
}
