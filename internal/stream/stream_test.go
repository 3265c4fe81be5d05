package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"Pattas/internal/domain/models"
	"Pattas/internal/runner"
	applogger "Pattas/pkg/logger"
)

type bufferSink struct {
	sends     [][]byte
	failAfter int // 0 = never fail
}

func (s *bufferSink) Send(p []byte) error {
	if s.failAfter > 0 && len(s.sends) >= s.failAfter {
		return errors.New("client gone")
	}
	s.sends = append(s.sends, append([]byte(nil), p...))
	return nil
}

func (s *bufferSink) String() string {
	return string(bytes.Join(s.sends, nil))
}

type fakeSource struct {
	chunks []models.OutputChunk
	code   int
}

func (f *fakeSource) Chunks() <-chan models.OutputChunk {
	ch := make(chan models.OutputChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func (f *fakeSource) Wait() (int, error) { return f.code, nil }
func (f *fakeSource) Canceled() bool     { return false }

func TestEncode(t *testing.T) {
	if got := Encode(models.OutputChunk{Channel: models.Stdout, Data: []byte("hi\n")}); string(got) != "hi\n" {
		t.Errorf("stdout encode = %q", got)
	}
	if got := Encode(models.OutputChunk{Channel: models.Stderr, Data: []byte("oops")}); string(got) != "ERROR: oops" {
		t.Errorf("stderr encode = %q", got)
	}
	if got := string(CompletionMarker(2)); got != "\n[Process completed with code 2]" {
		t.Errorf("completion marker = %q", got)
	}
	if got := string(FatalMarker(errors.New("spawn uv ENOENT"))); got != "\nFATAL ERROR: spawn uv ENOENT" {
		t.Errorf("fatal marker = %q", got)
	}
}

func TestCopyForwardsInOrderThenMarker(t *testing.T) {
	src := &fakeSource{
		chunks: []models.OutputChunk{
			{Channel: models.Stdout, Data: []byte("a\n")},
			{Channel: models.Stderr, Data: []byte("warn\n")},
			{Channel: models.Stdout, Data: []byte("b\n")},
		},
		code: 1,
	}
	sink := &bufferSink{}

	res := Copy(sink, src)

	want := "a\nERROR: warn\nb\n\n[Process completed with code 1]"
	if sink.String() != want {
		t.Errorf("stream = %q, want %q", sink.String(), want)
	}
	if len(sink.sends) != 4 {
		t.Errorf("sends = %d, want one per chunk plus marker", len(sink.sends))
	}
	if res.StdoutBytes != 4 || res.StderrBytes != 5 || res.Chunks() != 3 || res.ExitCode != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestCopyDrainsAfterSinkFailure(t *testing.T) {
	src := &fakeSource{
		chunks: []models.OutputChunk{
			{Channel: models.Stdout, Data: []byte("1")},
			{Channel: models.Stdout, Data: []byte("2")},
			{Channel: models.Stdout, Data: []byte("3")},
		},
	}
	sink := &bufferSink{failAfter: 1}

	res := Copy(sink, src)

	if res.SinkErr == nil {
		t.Fatal("expected sink error")
	}
	if res.Chunks() != 3 {
		t.Errorf("chunks = %d, want all 3 drained", res.Chunks())
	}
	if sink.String() != "1" {
		t.Errorf("nothing may be sent after the first failure, got %q", sink.String())
	}
}

func shCommand(t *testing.T, script string) *runner.Runner {
	t.Helper()
	cmd, err := runner.NewCommand([]string{"/bin/sh", "-c", script}, t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return runner.New(cmd, runner.Config{}, nil)
}

func TestProcessStdoutExitZero(t *testing.T) {
	p, err := shCommand(t, `printf 'line 1\n'; printf 'line 2\n'`).Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sink := &bufferSink{}
	Copy(sink, p)

	if got := sink.String(); got != "line 1\nline 2\n\n[Process completed with code 0]" {
		t.Errorf("stream = %q", got)
	}
}

func TestProcessStderrExitOne(t *testing.T) {
	p, err := shCommand(t, `echo first >&2; echo second >&2; exit 1`).Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	sink := &bufferSink{}
	Copy(sink, p)

	marker := string(CompletionMarker(1))
	if !strings.HasSuffix(sink.String(), marker) {
		t.Fatalf("stream %q does not end with %q", sink.String(), marker)
	}
	body := sink.sends[:len(sink.sends)-1]
	if len(body) == 0 {
		t.Fatal("no stderr chunks forwarded")
	}
	for _, chunk := range body {
		if !bytes.HasPrefix(chunk, []byte(StderrPrefix)) {
			t.Errorf("stderr chunk %q lacks prefix", chunk)
		}
	}
	if strings.Count(sink.String(), "[Process completed") != 1 {
		t.Error("expected exactly one completion marker")
	}
}

func TestProcessSpawnFailure(t *testing.T) {
	cmd := runner.Command{Path: "/nonexistent/analysis", Dir: t.TempDir()}
	_, err := runner.New(cmd, runner.Config{}, nil).Start(context.Background())
	if err == nil {
		t.Fatal("expected spawn failure")
	}

	sink := &bufferSink{}
	if err := Fatal(sink, err); err != nil {
		t.Fatal(err)
	}
	got := sink.String()
	if !strings.HasPrefix(got, "\nFATAL ERROR: ") {
		t.Errorf("stream = %q", got)
	}
	if strings.Contains(got, "[Process completed") {
		t.Error("spawn failure must not produce a completion marker")
	}
}

func TestLogSinkAssemblesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(applogger.NewWithWriter(&buf))

	_ = sink.Send([]byte("Getting news for "))
	_ = sink.Send([]byte("TCS.NS...\nERROR: rate "))
	_ = sink.Send([]byte("limited\r\n"))
	_ = sink.Send([]byte("tail"))
	sink.Flush()

	var lines []string
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry struct {
			Line string `json:"line"`
		}
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode log: %v", err)
		}
		lines = append(lines, entry.Line)
	}

	want := []string{"Getting news for TCS.NS...", "ERROR: rate limited", "tail"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestHTTPSinkFlushesEachChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewHTTPSink(rec)

	if err := sink.Send([]byte("part one\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !rec.Flushed {
		t.Error("response was not flushed after Send")
	}
	if err := sink.Send(CompletionMarker(0)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := rec.Body.String(); got != "part one\n\n[Process completed with code 0]" {
		t.Errorf("body = %q", got)
	}
}
