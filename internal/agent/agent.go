package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mainbong/copilot_kit/internal/chat"
	"github.com/mainbong/copilot_kit/internal/failover"
	"github.com/mainbong/copilot_kit/internal/llm"
	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/tools"
)

// DefaultMaxIterations bounds the tool rounds of one task
const DefaultMaxIterations = 10

// DefaultSystemPrompt is used when none is configured
const DefaultSystemPrompt = `You are a helpful assistant embedded in a host application.
Use the available tools when they help answer the request, then answer concisely.`

// ErrEmptyResponse is returned when the model produced neither text nor tool calls
var ErrEmptyResponse = errors.New("model returned an empty response")

type Option func(*Agent)

// WithMaxIterations overrides DefaultMaxIterations
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithSystemPrompt overrides DefaultSystemPrompt
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithDescriptors sets the tools advertised in the prompt of providers
// that cannot receive structured tool definitions
func WithDescriptors(descriptors []tools.Descriptor) Option {
	return func(a *Agent) { a.descriptors = descriptors }
}

// WithToolResultsHook is called after every turn that ran tools
func WithToolResultsHook(fn func([]tools.Result)) Option {
	return func(a *Agent) { a.onToolResults = fn }
}

// Agent runs tasks against the controller's active provider, looping while
// the model keeps asking for tools
type Agent struct {
	controller    *failover.Controller
	chatManager   *chat.Manager
	primary       string
	systemPrompt  string
	maxIterations int
	onToolResults func([]tools.Result)

	mu          sync.RWMutex
	descriptors []tools.Descriptor
}

// NewAgent creates a new agent
func NewAgent(controller *failover.Controller, chatManager *chat.Manager, primary string, opts ...Option) *Agent {
	a := &Agent{
		controller:    controller,
		chatManager:   chatManager,
		primary:       primary,
		systemPrompt:  DefaultSystemPrompt,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetDescriptors replaces the advertised tools
func (a *Agent) SetDescriptors(descriptors []tools.Descriptor) {
	a.mu.Lock()
	a.descriptors = descriptors
	a.mu.Unlock()
}

// provider returns the active provider, selecting the primary when none is active
func (a *Agent) provider(ctx context.Context) (llm.Provider, error) {
	if p := a.controller.Active(); p != nil {
		a.chatManager.SetProvider(p)
		return p, nil
	}
	p, err := a.controller.Select(ctx, a.primary)
	if err != nil {
		return nil, err
	}
	a.chatManager.SetProvider(p)
	return p, nil
}

// ExecuteTask runs a task to completion without streaming and returns the
// final answer
func (a *Agent) ExecuteTask(ctx context.Context, task string) (string, error) {
	return a.run(ctx, task, nil, false)
}

// StreamTask runs a task and streams assistant text to onChunk
func (a *Agent) StreamTask(ctx context.Context, task string, onChunk func(string)) (string, error) {
	return a.run(ctx, task, onChunk, true)
}

func (a *Agent) run(ctx context.Context, task string, onChunk func(string), stream bool) (string, error) {
	p, err := a.provider(ctx)
	if err != nil {
		return "", err
	}
	a.chatManager.SetSystemPrompt(a.buildSystemPrompt(p))
	a.chatManager.AddMessage(llm.RoleUser, task)

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		turn, err := a.exchange(ctx, onChunk, stream)
		if err != nil {
			return "", err
		}
		if a.onToolResults != nil && len(turn.ToolResults) > 0 {
			a.onToolResults(turn.ToolResults)
		}
		if !turn.HasToolResults() {
			if strings.TrimSpace(turn.Content) == "" {
				return "", ErrEmptyResponse
			}
			return turn.Content, nil
		}
		logger.Debug("iteration %d ran %d tools", iteration, len(turn.ToolResults))
		if onChunk != nil {
			onChunk("\n")
		}
	}

	logger.Warn("task stopped after %d tool iterations", a.maxIterations)
	return "", fmt.Errorf("task did not finish within %d tool iterations", a.maxIterations)
}

// exchange performs one turn. A transport failure is reported to the
// controller and the turn is retried once on the provider it selects.
func (a *Agent) exchange(ctx context.Context, onChunk func(string), stream bool) (*chat.Turn, error) {
	turn, err := a.turn(ctx, onChunk, stream)
	if err == nil || !llm.IsTransportError(err) {
		return turn, err
	}

	failed := a.chatManager.Provider()
	logger.Warn("provider %s failed: %v", failed.Name(), err)
	next, switchErr := a.controller.ReportFailure(ctx, failed.Name(), err)
	if switchErr != nil {
		return nil, switchErr
	}
	if next == nil {
		return nil, err
	}
	a.chatManager.SetProvider(next)
	return a.turn(ctx, onChunk, stream)
}

func (a *Agent) turn(ctx context.Context, onChunk func(string), stream bool) (*chat.Turn, error) {
	p := a.chatManager.Provider()
	if stream && p.Capabilities().SupportsStreaming {
		return a.chatManager.StreamTurn(ctx, onChunk)
	}
	turn, err := a.chatManager.Turn(ctx)
	if err == nil && onChunk != nil && turn.Content != "" {
		onChunk(turn.Content)
	}
	return turn, err
}

// buildSystemPrompt adds text tool-call instructions for providers
// without native function calling
func (a *Agent) buildSystemPrompt(p llm.Provider) string {
	a.mu.RLock()
	descriptors := a.descriptors
	a.mu.RUnlock()
	if p.Capabilities().SupportsFunctions || len(descriptors) == 0 {
		return a.systemPrompt
	}

	var builder strings.Builder
	builder.WriteString(a.systemPrompt)
	builder.WriteString("\n\nTo use a tool, reply with a block like:\n")
	builder.WriteString(chat.FormatToolCall(llm.ToolCall{Name: "tool_name", Arguments: map[string]interface{}{"arg": "value"}}))
	builder.WriteString("\n\nAvailable tools:\n")
	for _, tool := range tools.Definitions(descriptors) {
		fmt.Fprintf(&builder, "- %s: %s\n", tool.Name, tool.Description)
	}
	return builder.String()
}
