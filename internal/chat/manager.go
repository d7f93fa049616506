package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mainbong/copilot_kit/internal/llm"
	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/tools"
)

const (
	defaultMaxMessages        = 50
	defaultSummarizeThreshold = 30
	keepRecentMessages        = 5

	summaryPrefix = "Previous conversation summary: "
)

// Turn is the outcome of one model exchange
type Turn struct {
	Content     string
	ToolResults []tools.Result
	Usage       *llm.Usage
}

// HasToolResults reports whether any tool ran in this turn. Calls that
// matched no descriptor were skipped and do not count.
func (t *Turn) HasToolResults() bool {
	if t == nil {
		return false
	}
	for _, r := range t.ToolResults {
		if !r.Skipped {
			return true
		}
	}
	return false
}

// Manager manages chat conversations and context. It is also the message
// sink tools write their progress into.
type Manager struct {
	mu                 sync.Mutex
	provider           llm.Provider
	dispatcher         *tools.Dispatcher
	descriptors        []tools.Descriptor
	messages           []llm.Message
	maxMessages        int
	summarizeThreshold int
}

// NewManager creates a new chat manager
func NewManager(provider llm.Provider) *Manager {
	return &Manager{
		provider:           provider,
		messages:           make([]llm.Message, 0),
		maxMessages:        defaultMaxMessages,
		summarizeThreshold: defaultSummarizeThreshold,
	}
}

// SetProvider replaces the provider used for the next exchange
func (m *Manager) SetProvider(provider llm.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider = provider
}

// Provider returns the current provider
func (m *Manager) Provider() llm.Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}

// SetTools attaches a dispatcher and the descriptors it may run. The
// manager becomes the dispatcher's message sink.
func (m *Manager) SetTools(dispatcher *tools.Dispatcher, descriptors []tools.Descriptor) {
	if dispatcher != nil {
		dispatcher.SetSink(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatcher = dispatcher
	m.descriptors = append([]tools.Descriptor(nil), descriptors...)
}

// SetDescriptors swaps the tool descriptors, e.g. after a manifest reload
func (m *Manager) SetDescriptors(descriptors []tools.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors = append([]tools.Descriptor(nil), descriptors...)
}

// AddMessage adds a message to the conversation and returns its index
func (m *Manager) AddMessage(role, content string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, llm.NewMessage(role, content))
	return len(m.messages) - 1
}

// AppendToMessage extends the message at index. Out of range indexes are ignored.
func (m *Manager) AppendToMessage(index int, delta string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.messages) {
		logger.Warn("append to unknown message %d ignored", index)
		return
	}
	m.messages[index].Content += delta
}

// GetMessages returns a copy of all messages
func (m *Manager) GetMessages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Message(nil), m.messages...)
}

// exchange is the state of one turn shared between the stream callbacks
type exchange struct {
	m        *Manager
	pending  strings.Builder
	content  strings.Builder
	flushed  bool
	results  []tools.Result
	usage    *llm.Usage
	provider llm.Provider
}

// flush writes buffered assistant text so tool output lands after it
func (e *exchange) flush() {
	if e.pending.Len() == 0 {
		return
	}
	e.m.AddMessage(llm.RoleAssistant, e.pending.String())
	e.pending.Reset()
	e.flushed = true
}

func (m *Manager) snapshot() (llm.Provider, *tools.Dispatcher, []tools.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider, m.dispatcher, m.descriptors
}

func (m *Manager) request(p llm.Provider, dispatcher *tools.Dispatcher, descriptors []tools.Descriptor) llm.ChatRequest {
	req := llm.ChatRequest{Messages: m.GetMessages()}
	if dispatcher != nil && len(descriptors) > 0 && p.Capabilities().SupportsFunctions {
		req.Tools = tools.Definitions(descriptors)
	}
	return req
}

// StreamChat adds the user input and streams one assistant turn
func (m *Manager) StreamChat(ctx context.Context, userInput string, onChunk func(string)) (*Turn, error) {
	m.AddMessage(llm.RoleUser, userInput)
	return m.StreamTurn(ctx, onChunk)
}

// StreamTurn streams a response to the conversation as it stands. Tool
// calls are dispatched as the stream resolves them and their results are
// merged back as a user message.
func (m *Manager) StreamTurn(ctx context.Context, onChunk func(string)) (*Turn, error) {
	m.maybeSummarize(ctx)

	p, dispatcher, descriptors := m.snapshot()
	if p == nil {
		return nil, llm.ErrNoProviderAvailable
	}
	ex := &exchange{m: m, provider: p}
	req := m.request(p, dispatcher, descriptors)
	if req.Tools != nil {
		req.OnToolCall = func(ctx context.Context, call llm.ToolCall) {
			ex.flush()
			ex.results = append(ex.results, dispatcher.Dispatch(ctx, call, descriptors))
		}
	}

	start := time.Now()
	err := p.SendMessageStream(ctx, req, func(chunk llm.StreamChunk) {
		if chunk.Usage != nil {
			ex.usage = chunk.Usage
		}
		if chunk.Content == "" {
			return
		}
		ex.pending.WriteString(chunk.Content)
		ex.content.WriteString(chunk.Content)
		if onChunk != nil {
			onChunk(chunk.Content)
		}
	})
	p.RecordMetrics(time.Since(start), err != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat: %w", err)
	}

	return m.completeTurn(ctx, ex, dispatcher, descriptors), nil
}

// Chat adds the user input and performs one non-streaming turn
func (m *Manager) Chat(ctx context.Context, userInput string) (*Turn, error) {
	m.AddMessage(llm.RoleUser, userInput)
	return m.Turn(ctx)
}

// Turn performs one non-streaming exchange and dispatches the returned tool calls
func (m *Manager) Turn(ctx context.Context) (*Turn, error) {
	m.maybeSummarize(ctx)

	p, dispatcher, descriptors := m.snapshot()
	if p == nil {
		return nil, llm.ErrNoProviderAvailable
	}
	req := m.request(p, dispatcher, descriptors)

	start := time.Now()
	resp, err := p.SendMessage(ctx, req)
	p.RecordMetrics(time.Since(start), err != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to chat: %w", err)
	}

	ex := &exchange{m: m, provider: p, usage: resp.Usage}
	ex.pending.WriteString(resp.Content)
	ex.content.WriteString(resp.Content)
	if req.Tools != nil && len(resp.ToolCalls) > 0 {
		ex.flush()
		ex.results = dispatcher.DispatchAll(ctx, resp.ToolCalls, descriptors)
	}
	return m.completeTurn(ctx, ex, dispatcher, descriptors), nil
}

// completeTurn stores the remaining assistant text, runs text-embedded
// calls for providers without function support, and merges tool results
func (m *Manager) completeTurn(ctx context.Context, ex *exchange, dispatcher *tools.Dispatcher, descriptors []tools.Descriptor) *Turn {
	content := ex.content.String()

	if dispatcher != nil && len(descriptors) > 0 && !ex.provider.Capabilities().SupportsFunctions {
		calls, text := ParseResponse(ex.pending.String())
		if len(calls) > 0 {
			ex.pending.Reset()
			ex.pending.WriteString(text)
			ex.flush()
			ex.results = append(ex.results, dispatcher.DispatchAll(ctx, calls, descriptors)...)
			content = text
		}
	}

	if !ex.flushed || ex.pending.Len() > 0 {
		if ex.pending.Len() == 0 && len(ex.results) == 0 {
			m.AddMessage(llm.RoleAssistant, "")
		}
		ex.flush()
	}

	if block := FormatToolResults(ex.results); block != "" {
		m.AddMessage(llm.RoleUser, block)
	}
	m.trim()

	return &Turn{Content: content, ToolResults: ex.results, Usage: ex.usage}
}

// FormatToolResults renders every non-skipped result as a tool_result block
func FormatToolResults(results []tools.Result) string {
	var blocks []string
	for _, r := range results {
		if r.Skipped {
			continue
		}
		if r.Err != nil {
			blocks = append(blocks, FormatToolResult(r.Name, r.Err.Error(), false))
			continue
		}
		blocks = append(blocks, FormatToolResult(r.Name, formatValue(r.Value), true))
	}
	return strings.Join(blocks, "\n")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.RawMessage:
		return string(val)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// maybeSummarize condenses old messages once the threshold is passed.
// A failed summary leaves the conversation unchanged.
func (m *Manager) maybeSummarize(ctx context.Context) {
	m.mu.Lock()
	over := len(m.messages) > m.summarizeThreshold
	m.mu.Unlock()
	if !over {
		return
	}
	if err := m.summarizeContext(ctx); err != nil {
		logger.Warn("failed to summarize context: %v", err)
	}
}

// isPrompt reports whether msg is a system prompt rather than a stored summary
func isPrompt(msg llm.Message) bool {
	return msg.Role == llm.RoleSystem && !strings.HasPrefix(msg.Content, summaryPrefix)
}

// summarizeContext replaces everything between the leading system prompt
// and the most recent messages with one summary message
func (m *Manager) summarizeContext(ctx context.Context) error {
	m.mu.Lock()
	p := m.provider
	lead := 0
	for lead < len(m.messages) && isPrompt(m.messages[lead]) {
		lead++
	}
	cut := len(m.messages) - keepRecentMessages
	if p == nil || len(m.messages) < 10 || cut <= lead {
		m.mu.Unlock()
		return nil
	}
	prompts := append([]llm.Message(nil), m.messages[:lead]...)
	oldMessages := append([]llm.Message(nil), m.messages[lead:cut]...)
	m.mu.Unlock()

	var prompt strings.Builder
	prompt.WriteString("Summarize the following conversation concisely. Keep important details such as error messages, tool results, identifiers and URLs:\n\n")
	for _, msg := range oldMessages {
		fmt.Fprintf(&prompt, "%s: %s\n", msg.Role, msg.Content)
	}

	start := time.Now()
	resp, err := p.SendMessage(ctx, llm.ChatRequest{
		SystemPrompt: "You are a helpful assistant that summarizes conversations while preserving important technical details.",
		Messages:     []llm.Message{llm.NewMessage(llm.RoleUser, prompt.String())},
	})
	p.RecordMetrics(time.Since(start), err != nil)
	if err != nil {
		return fmt.Errorf("failed to generate summary: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// messages added while the summary was produced stay after the cut
	kept := append(prompts, llm.NewMessage(llm.RoleSystem, summaryPrefix+resp.Content))
	m.messages = append(kept, m.messages[cut:]...)
	logger.Info("summarized %d messages", len(oldMessages))
	return nil
}

// trim drops the oldest non-system messages beyond maxMessages
func (m *Manager) trim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	excess := len(m.messages) - m.maxMessages
	if excess <= 0 {
		return
	}
	kept := make([]llm.Message, 0, m.maxMessages)
	for _, msg := range m.messages {
		if excess > 0 && msg.Role != llm.RoleSystem {
			excess--
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
}

// Clear clears all messages
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = make([]llm.Message, 0)
}

// SetSystemPrompt puts prompt first and drops any earlier prompt.
// Conversation summaries are kept.
func (m *Manager) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filtered := make([]llm.Message, 0, len(m.messages)+1)
	filtered = append(filtered, llm.NewMessage(llm.RoleSystem, prompt))
	for _, msg := range m.messages {
		if !isPrompt(msg) {
			filtered = append(filtered, msg)
		}
	}
	m.messages = filtered
}

var _ tools.Sink = (*Manager)(nil)
