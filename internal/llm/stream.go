package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/mainbong/copilot_kit/internal/logger"
	"github.com/mainbong/copilot_kit/internal/sse"
)

// Stream is a pull-based sequence of chunks for one streamed exchange.
// Content chunks are returned as their events are parsed; tool-call
// fragments are buffered and resolved when the stream ends. A Stream is
// finite, not restartable and not safe for concurrent use.
type Stream struct {
	ctx        context.Context
	provider   string
	body       io.ReadCloser
	events     *sse.Reader
	transform  StreamTransformer
	onToolCall ToolCallHandler
	debug      bool

	pending []StreamChunk
	usage   *Usage
	// final content chunk, delivered at stream end with the last usage
	held *StreamChunk

	// tool-call buffers live only as long as this stream
	toolBuffers map[string]*toolCallBuffer
	toolOrder   []string
	lastToolKey string
	resolved    []ToolCall

	finished bool
	released bool
	err      error
}

type toolCallBuffer struct {
	id   string
	name string
	args []byte
}

// NewStream wraps a response body. The stream owns the body and releases
// it on every terminal path.
func NewStream(ctx context.Context, provider string, body io.ReadCloser, transform StreamTransformer, onToolCall ToolCallHandler, debug bool) *Stream {
	if transform == nil {
		transform = OpenAIStreamTransformer
	}
	return &Stream{
		ctx:         ctx,
		provider:    provider,
		body:        body,
		events:      sse.NewReader(body),
		transform:   transform,
		onToolCall:  onToolCall,
		debug:       debug,
		toolBuffers: make(map[string]*toolCallBuffer),
	}
}

// Recv returns the next chunk. Exactly one chunk with IsComplete set is
// returned per exchange, after which Recv returns io.EOF.
func (s *Stream) Recv() (StreamChunk, error) {
	for {
		if len(s.pending) > 0 {
			chunk := s.pending[0]
			s.pending = s.pending[1:]
			return chunk, nil
		}
		if s.finished {
			if s.err != nil {
				return StreamChunk{}, s.err
			}
			return StreamChunk{}, io.EOF
		}
		s.advance()
	}
}

// Close releases the body. It is safe to call more than once.
func (s *Stream) Close() error {
	if !s.finished {
		s.finished = true
		s.err = ErrStreamClosed
	}
	s.pending = nil
	return s.release()
}

// ToolCalls returns the calls resolved at the end of the stream
func (s *Stream) ToolCalls() []ToolCall {
	return s.resolved
}

// Usage returns the last usage report seen on the stream
func (s *Stream) Usage() *Usage {
	return s.usage
}

func (s *Stream) advance() {
	if err := s.ctx.Err(); err != nil {
		s.fail(err)
		return
	}

	payload, err := s.events.Next()
	if err == io.EOF {
		s.finish()
		return
	}
	if err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			s.fail(ctxErr)
			return
		}
		s.fail(&TransportError{Provider: s.provider, Endpoint: "stream", Err: err})
		return
	}

	if s.debug {
		logger.Debug("[%s] stream event: %s", s.provider, payload)
	}

	raw := json.RawMessage(payload)
	if !json.Valid(raw) {
		logger.Debug("[%s] skipping malformed stream line: %.120s", s.provider, payload)
		return
	}

	ev, err := s.transform(raw)
	if err != nil {
		logger.Debug("[%s] stream transformer rejected event: %v", s.provider, err)
		return
	}
	if ev == nil {
		return
	}
	s.handle(ev, raw)
}

func (s *Stream) handle(ev *StreamEvent, raw json.RawMessage) {
	if s.held != nil {
		// the exchange is complete; later events only add usage
		if ev.Usage != nil {
			s.usage = mergeUsage(s.usage, ev.Usage)
		}
		return
	}
	if ev.Err != "" {
		s.fail(&StreamError{Provider: s.provider, Message: ev.Err})
		return
	}
	if ev.Usage != nil {
		s.usage = mergeUsage(s.usage, ev.Usage)
	}
	for _, delta := range ev.ToolCalls {
		s.mergeToolDelta(delta)
	}
	if ev.Content == "" {
		// a bare completion marker becomes the terminal chunk at stream end
		return
	}

	chunk := StreamChunk{Content: ev.Content, Raw: raw}
	// completion waits for dispatch when tool calls are pending
	if ev.Done && len(s.toolOrder) == 0 {
		s.held = &chunk
		return
	}
	s.pending = append(s.pending, chunk)
}

func (s *Stream) mergeToolDelta(delta ToolCallDelta) {
	var key string
	switch {
	case delta.Index >= 0:
		key = fmt.Sprintf("i:%d", delta.Index)
	case delta.ID != "":
		key = "id:" + delta.ID
	case s.lastToolKey != "":
		key = s.lastToolKey
	default:
		key = "i:0"
	}

	buf, ok := s.toolBuffers[key]
	if !ok {
		buf = &toolCallBuffer{}
		s.toolBuffers[key] = buf
		s.toolOrder = append(s.toolOrder, key)
	}
	if delta.ID != "" && buf.id == "" {
		buf.id = delta.ID
	}
	if delta.Name != "" {
		buf.name = delta.Name
	}
	buf.args = append(buf.args, delta.Arguments...)
	s.lastToolKey = key
}

func (s *Stream) finish() {
	if s.finished {
		return
	}
	s.finished = true
	s.release()

	for _, key := range s.toolOrder {
		buf := s.toolBuffers[key]
		if buf.name == "" {
			logger.Warn("[%s] dropping tool call %s without a name", s.provider, key)
			continue
		}
		id := buf.id
		if id == "" {
			id = uuid.NewString()
		}
		call := ToolCall{ID: id, Name: buf.name, Arguments: ParseArguments(string(buf.args))}
		s.resolved = append(s.resolved, call)
		if s.onToolCall != nil {
			s.onToolCall(s.ctx, call)
		}
	}
	s.toolBuffers = nil
	s.toolOrder = nil

	terminal := StreamChunk{}
	if s.held != nil {
		terminal = *s.held
		s.held = nil
	}
	terminal.IsComplete = true
	terminal.Usage = s.usage
	s.pending = append(s.pending, terminal)
}

func (s *Stream) fail(err error) {
	if s.finished {
		return
	}
	if s.held != nil {
		logger.Debug("[%s] stream ended after completion: %v", s.provider, err)
		s.finish()
		return
	}
	s.finished = true
	s.err = err
	s.toolBuffers = nil
	s.toolOrder = nil
	s.release()
}

// mergeUsage lets later reports fill or override the counters of earlier ones
func mergeUsage(prev, next *Usage) *Usage {
	if prev == nil {
		u := *next
		return &u
	}
	u := *prev
	if next.PromptTokens != 0 {
		u.PromptTokens = next.PromptTokens
	}
	if next.CompletionTokens != 0 {
		u.CompletionTokens = next.CompletionTokens
	}
	if next.TotalTokens != 0 && next.TotalTokens >= u.PromptTokens+u.CompletionTokens {
		u.TotalTokens = next.TotalTokens
	} else {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return &u
}

func (s *Stream) release() error {
	if s.released || s.body == nil {
		return nil
	}
	s.released = true
	return s.body.Close()
}
