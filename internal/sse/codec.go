// Package sse decodes provider chat-completion streams and re-frames them in
// one canonical Server-Sent-Events format, so every downstream client can use
// a single decoder regardless of which upstream produced the tokens.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const dataPrefix = "data: "

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder incrementally parses an SSE chat-completion stream. Network chunks
// arrive at arbitrary byte boundaries, not aligned to logical lines; the
// carryover buffer is the only state and is scoped to one in-flight stream.
type Decoder struct {
	buf  string
	done bool
}

// Feed appends one raw chunk and returns the content fragments completed by
// it, in arrival order.
//
// A line whose JSON fails to parse is pushed back onto the buffer together
// with its newline and the batch stops: the line was split across transport
// chunks even though a newline was already present. Without this rule,
// naive splitting intermittently drops tokens at chunk boundaries.
func (d *Decoder) Feed(p []byte) []string {
	if d.done {
		return nil
	}
	d.buf += string(p)

	var out []string
	for {
		i := strings.IndexByte(d.buf, '\n')
		if i < 0 {
			return out
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == "[DONE]" {
			d.done = true
			d.buf = ""
			return out
		}

		var ev chunk
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			d.buf = line + "\n" + d.buf
			return out
		}
		if len(ev.Choices) > 0 && ev.Choices[0].Delta.Content != "" {
			out = append(out, ev.Choices[0].Delta.Content)
		}
	}
}

// Flush drains whatever remains after the upstream closed without a [DONE]
// sentinel. The stream is treated as complete-but-truncated: lines that parse
// yield their fragments, lines that never completed are dropped.
func (d *Decoder) Flush() []string {
	if d.done {
		return nil
	}
	var out []string
	for _, raw := range strings.Split(d.buf, "\n") {
		raw = strings.TrimSuffix(raw, "\r")
		if strings.TrimSpace(raw) == "" || strings.HasPrefix(raw, ":") {
			continue
		}
		if !strings.HasPrefix(raw, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(raw[len(dataPrefix):])
		if payload == "[DONE]" {
			continue
		}
		var ev chunk
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		if len(ev.Choices) > 0 && ev.Choices[0].Delta.Content != "" {
			out = append(out, ev.Choices[0].Delta.Content)
		}
	}
	d.buf = ""
	return out
}

// Done reports whether the [DONE] sentinel has been observed. Bytes fed after
// that are ignored.
func (d *Decoder) Done() bool { return d.done }

// WriteEvent re-frames one content fragment in the canonical relay format.
func WriteEvent(w io.Writer, content string) error {
	var ev chunk
	ev.Choices = make([]struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	}, 1)
	ev.Choices[0].Delta.Content = content

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// WriteDone emits the terminal sentinel.
func WriteDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}
