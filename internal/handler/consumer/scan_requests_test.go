package consumer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"Pattas/internal/domain/models"
	"Pattas/internal/stream"
	"Pattas/internal/usecase"
	xlogger "Pattas/pkg/logger"
)

type stubAnalysis struct {
	err      error
	triggers int
}

func (s *stubAnalysis) Trigger(_ context.Context, trigger models.Trigger, sink stream.Sink) (*models.Run, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.triggers++
	_ = sink.Send([]byte("Updated news_links.json\n"))
	_ = sink.Send(stream.CompletionMarker(0))
	code := 0
	return &models.Run{ID: "run-7", Trigger: trigger, ExitCode: &code}, nil
}

func (s *stubAnalysis) Status(context.Context) (models.RunStatus, error) {
	return models.RunStatus{}, nil
}

func (s *stubAnalysis) Recent(context.Context, int) ([]models.Run, error) { return nil, nil }

func TestHandleRunsHeadlessAnalysis(t *testing.T) {
	var logs bytes.Buffer
	analysis := &stubAnalysis{}
	h := NewScanRequestHandler("pattas.scan", analysis, xlogger.NewWithWriter(&logs))

	if h.Topic() != "pattas.scan" {
		t.Errorf("Topic() = %q", h.Topic())
	}
	if err := h.Handle(context.Background(), []byte(`{"requested_by":"cron","reason":"market close"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if analysis.triggers != 1 {
		t.Errorf("triggers = %d", analysis.triggers)
	}

	out := logs.String()
	for _, want := range []string{`"line":"Updated news_links.json"`, `"line":"[Process completed with code 0]"`, `"requested_by":"cron"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestHandleDropsBadMessages(t *testing.T) {
	analysis := &stubAnalysis{}
	h := NewScanRequestHandler("pattas.scan", analysis, xlogger.NewNop())

	for _, msg := range []string{`not json`, `{"reason":"no requester"}`} {
		if err := h.Handle(context.Background(), []byte(msg)); err != nil {
			t.Errorf("Handle(%s) = %v, want nil", msg, err)
		}
	}
	if analysis.triggers != 0 {
		t.Errorf("bad messages triggered %d runs", analysis.triggers)
	}
}

func TestHandleSkipsWhenBusy(t *testing.T) {
	h := NewScanRequestHandler("pattas.scan", &stubAnalysis{err: usecase.ErrRunInProgress}, xlogger.NewNop())
	if err := h.Handle(context.Background(), []byte(`{"requested_by":"cron"}`)); err != nil {
		t.Errorf("busy run should be skipped, got %v", err)
	}

	boom := errors.New("acquire run lock: redis down")
	h = NewScanRequestHandler("pattas.scan", &stubAnalysis{err: boom}, xlogger.NewNop())
	if err := h.Handle(context.Background(), []byte(`{"requested_by":"cron"}`)); !errors.Is(err, boom) {
		t.Errorf("start failure should be returned for retry, got %v", err)
	}
}
