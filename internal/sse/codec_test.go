package sse

import (
	"strings"
	"testing"
)

func feedAll(t *testing.T, d *Decoder, raw string, step int) []string {
	t.Helper()
	var got []string
	for i := 0; i < len(raw); i += step {
		end := i + step
		if end > len(raw) {
			end = len(raw)
		}
		got = append(got, d.Feed([]byte(raw[i:end]))...)
	}
	return got
}

func TestDecoderBasicStream(t *testing.T) {
	raw := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	d := &Decoder{}
	got := d.Feed([]byte(raw))
	if strings.Join(got, "") != "Hello" {
		t.Fatalf("got %q, want Hello", strings.Join(got, ""))
	}
	if !d.Done() {
		t.Fatal("expected done after [DONE]")
	}
	if extra := d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n")); extra != nil {
		t.Fatalf("fed after done, got %v", extra)
	}
}

func TestDecoderChunkBoundaryInvariance(t *testing.T) {
	raw := "data: {\"choices\":[{\"delta\":{\"content\":\"one \"}}]}\n\n" +
		": keep-alive comment\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"two \"}}]}\r\n" +
		"event: message\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"three\"}}]}\n\n" +
		"data: [DONE]\n\n"
	const want = "one two three"

	for step := 1; step <= len(raw); step++ {
		d := &Decoder{}
		got := strings.Join(feedAll(t, d, raw, step), "")
		if got != want {
			t.Fatalf("step %d: got %q, want %q", step, got, want)
		}
		if !d.Done() {
			t.Fatalf("step %d: not done", step)
		}
	}
}

func TestDecoderSkipsEmptyDeltaAndComments(t *testing.T) {
	raw := ": ping\n" +
		"data: {\"choices\":[{\"delta\":{}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n" +
		"data: {\"choices\":[]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
		"data: [DONE]\n"

	d := &Decoder{}
	got := d.Feed([]byte(raw))
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("got %v, want [ok]", got)
	}
}

func TestDecoderFlushWithoutDone(t *testing.T) {
	d := &Decoder{}
	got := d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"))
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v", got)
	}
	// tail line without trailing newline
	d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}"))

	tail := d.Flush()
	if len(tail) != 1 || tail[0] != "b" {
		t.Fatalf("flush got %v, want [b]", tail)
	}
	if d.Done() {
		t.Fatal("flush must not fake a [DONE]")
	}
	if again := d.Flush(); again != nil {
		t.Fatalf("second flush got %v", again)
	}
}

func TestDecoderFlushDropsTruncatedLine(t *testing.T) {
	d := &Decoder{}
	d.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"good\"}}]}\ndata: {\"choi"))
	tail := d.Flush()
	if len(tail) != 1 || tail[0] != "good" {
		t.Fatalf("flush got %v, want [good]", tail)
	}
}

func TestWriteEventRoundTrip(t *testing.T) {
	var sb strings.Builder
	if err := WriteEvent(&sb, "hi there"); err != nil {
		t.Fatal(err)
	}
	if err := WriteDone(&sb); err != nil {
		t.Fatal(err)
	}

	out := sb.String()
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Fatalf("missing sentinel in %q", out)
	}

	d := &Decoder{}
	got := d.Feed([]byte(out))
	if len(got) != 1 || got[0] != "hi there" {
		t.Fatalf("round trip got %v", got)
	}
	if !d.Done() {
		t.Fatal("round trip did not terminate")
	}
}

func TestWriteEventEscapesNewlines(t *testing.T) {
	var sb strings.Builder
	if err := WriteEvent(&sb, "line1\nline2"); err != nil {
		t.Fatal(err)
	}
	frame := sb.String()
	if strings.Count(frame, "\n") != 2 {
		t.Fatalf("content newline leaked into framing: %q", frame)
	}

	d := &Decoder{}
	got := d.Feed([]byte(frame))
	if len(got) != 1 || got[0] != "line1\nline2" {
		t.Fatalf("got %v", got)
	}
}
