package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mainbong/copilot_kit/internal/httpclient"
	"github.com/mainbong/copilot_kit/internal/llm"
	"github.com/mainbong/copilot_kit/internal/logger"
)

var (
	ErrToolNotFound   = errors.New("no tool matches the call")
	ErrRunnerNotFound = errors.New("no runner registered for local tool")
)

// Context identifies the conversation a tool call belongs to
type Context struct {
	BusinessID string `json:"businessId,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

// ContextProvider is called once per invocation
type ContextProvider func() Context

// Sink receives user-visible messages produced while tools run
type Sink interface {
	// AddMessage appends a message and returns its index
	AddMessage(role, content string) int
	// AppendToMessage extends the content of the message at index
	AppendToMessage(index int, delta string)
}

// Runner executes a local tool
type Runner func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Result is the outcome of one tool call
type Result struct {
	CallID  string
	Name    string
	Value   interface{}
	Err     error
	Skipped bool
}

func (r Result) OK() bool {
	return r.Err == nil && !r.Skipped
}

// Dispatcher executes resolved tool calls against descriptors
type Dispatcher struct {
	client          httpclient.HTTPClient
	contextProvider ContextProvider
	sink            Sink
	timeout         time.Duration

	mu      sync.RWMutex
	runners map[string]Runner
}

type Option func(*Dispatcher)

func WithHTTPClient(client httpclient.HTTPClient) Option {
	return func(d *Dispatcher) { d.client = client }
}

func WithContextProvider(provider ContextProvider) Option {
	return func(d *Dispatcher) { d.contextProvider = provider }
}

func WithSink(sink Sink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

// WithTimeout bounds every single tool invocation
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{runners: make(map[string]Runner)}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = httpclient.NewDefaultHTTPClient()
	}
	return d
}

// SetSink replaces the message sink
func (d *Dispatcher) SetSink(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

func (d *Dispatcher) currentSink() Sink {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sink
}

// RegisterRunner serves local descriptors whose sanitized id or name is name
func (d *Dispatcher) RegisterRunner(name string, runner Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runners[Sanitize(name)] = runner
}

// Runners returns the sanitized names of registered runners
func (d *Dispatcher) Runners() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.runners))
	for name := range d.runners {
		out = append(out, name)
	}
	return out
}

func (d *Dispatcher) runner(desc Descriptor) (Runner, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, key := range []string{desc.ID, desc.Name} {
		if key == "" {
			continue
		}
		if r, ok := d.runners[Sanitize(key)]; ok {
			return r, true
		}
	}
	return nil, false
}

func (d *Dispatcher) invocationContext() Context {
	if d.contextProvider == nil {
		return Context{}
	}
	return d.contextProvider()
}

// Dispatch executes one call. A failure is reported to the sink as a
// named notice and returned in the Result; it never panics or aborts.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall, descriptors []Descriptor) Result {
	result := Result{CallID: call.ID, Name: call.Name}

	desc, ok := Match(call.Name, descriptors)
	if !ok {
		logger.Warn("tool call %q does not match any registered tool, skipping", call.Name)
		result.Skipped = true
		result.Err = fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
		return result
	}
	result.Name = desc.DisplayName()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	args := call.Arguments
	if args == nil {
		args = make(map[string]interface{})
	}

	start := time.Now()
	value, err := d.invoke(ctx, desc, args)
	if err != nil {
		logger.Error("tool %s failed after %v: %v", desc.DisplayName(), time.Since(start), err)
		if sink := d.currentSink(); sink != nil {
			sink.AddMessage(llm.RoleAssistant, fmt.Sprintf("Tool '%s' failed.", desc.DisplayName()))
		}
		result.Err = err
		return result
	}
	logger.Info("tool %s completed in %v", desc.DisplayName(), time.Since(start))
	result.Value = value
	return result
}

// DispatchAll executes calls one after another in order
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []llm.ToolCall, descriptors []Descriptor) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, d.Dispatch(ctx, call, descriptors))
	}
	return results
}

func (d *Dispatcher) invoke(ctx context.Context, desc Descriptor, args map[string]interface{}) (value interface{}, err error) {
	if desc.IsLocal() {
		runner, ok := d.runner(desc)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRunnerNotFound, desc.DisplayName())
		}
		ctx = WithProgress(ctx, newSinkStream(d.currentSink()).write)
		defer func() {
			if r := recover(); r != nil {
				logger.Debug("tool %s panic stack: %s", desc.DisplayName(), debug.Stack())
				value, err = nil, fmt.Errorf("tool panicked: %v", r)
			}
		}()
		return runner(ctx, args)
	}

	switch desc.EffectiveTransport() {
	case TransportHTTP:
		return d.callHTTP(ctx, desc, args)
	case TransportSSE:
		return d.callSSE(ctx, desc, args)
	default:
		return nil, fmt.Errorf("unknown transport %q", desc.Transport)
	}
}

// RunLocal executes the runner registered under name outside of a
// conversation. Progress goes to the receiver attached to ctx.
func (d *Dispatcher) RunLocal(ctx context.Context, name string, args map[string]interface{}) (value interface{}, err error) {
	runner, ok := d.runner(Descriptor{ID: name, Route: LocalRoute})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunnerNotFound, name)
	}
	if args == nil {
		args = make(map[string]interface{})
	}
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return runner(ctx, args)
}
