package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"Pattas/internal/domain/models"
	"Pattas/internal/domain/service"
	"Pattas/internal/stream"
	"Pattas/internal/usecase"
	xlogger "Pattas/pkg/logger"
	"Pattas/pkg/util"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ScanRequestHandler starts a headless analysis run for every scan request
// read from Kafka. The run output goes to the log.
type ScanRequestHandler struct {
	topic    string
	analysis service.Analysis
	logger   *xlogger.Logger
}

func NewScanRequestHandler(topic string, analysis service.Analysis, logger *xlogger.Logger) *ScanRequestHandler {
	return &ScanRequestHandler{topic: topic, analysis: analysis, logger: logger}
}

func (h *ScanRequestHandler) Topic() string { return h.topic }

// Handle runs the analysis. A malformed request or a run already in
// progress is dropped; only failures to start are returned for retry.
func (h *ScanRequestHandler) Handle(ctx context.Context, data []byte) error {
	var req models.ScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("dropping malformed scan request", xlogger.Error(err))
		return nil
	}
	if err := validate.Struct(req); err != nil {
		h.logger.Warn("dropping invalid scan request", xlogger.Error(err))
		return nil
	}

	log := h.logger.With(
		xlogger.String("requested_by", req.RequestedBy),
		xlogger.String("reason", util.FirstNonEmpty(req.Reason, "unspecified")),
	)
	sink := stream.NewLogSink(log)
	defer sink.Flush()

	run, err := h.analysis.Trigger(ctx, models.TriggerKafka, sink)
	if errors.Is(err, usecase.ErrRunInProgress) {
		log.Info("scan request skipped, analysis already running")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("scan request finished",
		xlogger.String("run_id", run.ID),
		xlogger.String("result", run.Result()),
	)
	return nil
}
