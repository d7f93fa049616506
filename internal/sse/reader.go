package sse

import (
	"bufio"
	"io"
	"strings"
)

// DoneToken is the literal end-of-stream sentinel
const DoneToken = "[DONE]"

// Reader yields one payload per non-empty line of an event stream.
// Lines may be "data: <payload>" or a bare payload. Comment lines and the
// other SSE fields (event, id, retry) are skipped. Lines have no length cap
// and a trailing partial line is carried over until its newline arrives.
type Reader struct {
	r    *bufio.Reader
	done bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next payload. It returns io.EOF after the sentinel line
// or when the underlying reader is exhausted; any other read error is
// returned as is.
func (d *Reader) Next() (string, error) {
	for {
		if d.done {
			return "", io.EOF
		}

		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		if err == io.EOF {
			d.done = true
		}

		payload, ok := parseLine(line)
		if !ok {
			continue
		}
		if payload == DoneToken {
			d.done = true
			return "", io.EOF
		}
		return payload, nil
	}
}

func parseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if strings.HasPrefix(line, "data:") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		return line, line != ""
	}
	for _, field := range []string{"event:", "id:", "retry:"} {
		if strings.HasPrefix(line, field) {
			return "", false
		}
	}
	return line, true
}
