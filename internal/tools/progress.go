package tools

import (
	"context"

	"github.com/mainbong/copilot_kit/internal/llm"
)

// ProgressFunc receives user-visible text produced while a tool runs
type ProgressFunc func(delta string)

type progressKey struct{}

// WithProgress attaches a progress receiver for local runners
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress sends delta to the receiver attached to ctx, if any
func ReportProgress(ctx context.Context, delta string) {
	if delta == "" {
		return
	}
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(delta)
	}
}

// sinkStream appends deltas to one assistant message created on the first
// non-empty delta
type sinkStream struct {
	sink  Sink
	index int
}

func newSinkStream(sink Sink) *sinkStream {
	return &sinkStream{sink: sink, index: -1}
}

func (s *sinkStream) write(delta string) {
	if s.sink == nil || delta == "" {
		return
	}
	if s.index < 0 {
		s.index = s.sink.AddMessage(llm.RoleAssistant, delta)
		return
	}
	s.sink.AppendToMessage(s.index, delta)
}
