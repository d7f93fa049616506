package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	fenceStyle   = color.New(color.FgMagenta, color.Bold)
	codeStyle    = color.New(color.FgHiBlue)
	headingStyle = color.New(color.FgCyan, color.Bold)
	quoteStyle   = color.New(color.FgHiBlack)
	inlineCode   = color.New(color.FgYellow)
	boldStyle    = color.New(color.Bold)
)

// Renderer prints streamed assistant text line by line with light markdown
// styling. Partial lines are held until their newline arrives.
type Renderer struct {
	writer  io.Writer
	pending strings.Builder
	inFence bool
	prefix  string
}

// NewRenderer creates a renderer that writes to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{writer: w}
}

// SetLinePrefix sets a prefix printed before every line.
func (r *Renderer) SetLinePrefix(prefix string) {
	r.prefix = prefix
}

// Write consumes a chunk and renders every line it completes.
func (r *Renderer) Write(chunk string) {
	r.pending.WriteString(chunk)
	data := r.pending.String()
	last := strings.LastIndexByte(data, '\n')
	if last < 0 {
		return
	}
	for _, line := range strings.Split(data[:last], "\n") {
		r.renderLine(line)
	}
	r.pending.Reset()
	r.pending.WriteString(data[last+1:])
}

// Flush renders the trailing partial line and closes an unterminated fence.
func (r *Renderer) Flush() {
	if r.pending.Len() > 0 {
		r.renderLine(r.pending.String())
		r.pending.Reset()
	}
	r.inFence = false
}

func (r *Renderer) renderLine(line string) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "```") {
		r.inFence = !r.inFence
		r.printLine(trimmed, fenceStyle)
		return
	}
	if r.inFence {
		r.printLine(line, codeStyle)
		return
	}

	switch {
	case strings.HasPrefix(trimmed, "#"):
		r.printLine(renderInline(strings.TrimLeft(trimmed, "# ")), headingStyle)
	case strings.HasPrefix(trimmed, ">"):
		r.printLine(quoteStyle.Sprint("| ")+renderInline(strings.TrimSpace(trimmed[1:])), nil)
	case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
		indent := strings.Repeat("  ", (len(line)-len(strings.TrimLeft(line, " \t")))/2)
		r.printLine(indent+"• "+renderInline(trimmed[2:]), nil)
	default:
		r.printLine(renderInline(line), nil)
	}
}

func (r *Renderer) printLine(text string, style *color.Color) {
	if r.prefix != "" {
		fmt.Fprint(r.writer, r.prefix)
	}
	if style != nil {
		style.Fprintln(r.writer, text)
		return
	}
	fmt.Fprintln(r.writer, text)
}

// renderInline styles **bold** and `code` spans and strips their markers
func renderInline(line string) string {
	var out, span strings.Builder
	code, bold := false, false

	emit := func() {
		if span.Len() == 0 {
			return
		}
		switch {
		case code:
			out.WriteString(inlineCode.Sprint(span.String()))
		case bold:
			out.WriteString(boldStyle.Sprint(span.String()))
		default:
			out.WriteString(span.String())
		}
		span.Reset()
	}

	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '`':
			emit()
			code = !code
		case !code && strings.HasPrefix(line[i:], "**"):
			emit()
			bold = !bold
			i++
		default:
			span.WriteByte(line[i])
		}
	}
	emit()
	return out.String()
}
