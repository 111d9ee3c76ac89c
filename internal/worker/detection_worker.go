package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recur/internal/amqp"
	"recur/internal/core"
	"recur/internal/log"
	"recur/internal/recurring"
)

// Detector runs recurring detection for one user.
type Detector interface {
	Detect(ctx context.Context, userID string) (recurring.Result, error)
}

// DetectionWorker runs detection for users queued by ingestion.
type DetectionWorker struct {
	detector Detector
	logger   *log.Logger
}

func NewDetectionWorker(detector Detector, logger *log.Logger) *DetectionWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &DetectionWorker{
		detector: detector,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleDetectionRequest processes a single detection request from AMQP.
// A returned error asks the broker to redeliver the message.
func (w *DetectionWorker) HandleDetectionRequest(ctx context.Context, msg *amqp.DetectionRequestMessage) error {
	start := time.Now()
	w.logger.InfoContext(ctx, "Processing detection request",
		"message_id", msg.ID,
		log.FieldUserID, msg.UserID,
		log.FieldRequestID, msg.RequestID)

	res, err := w.detector.Detect(ctx, msg.UserID)
	switch {
	case errors.Is(err, core.ErrEmptyUserID):
		// Redelivery cannot fix the message.
		w.logger.WarnContext(ctx, "Dropping detection request without user", "message_id", msg.ID)
		return nil
	case err != nil:
		return fmt.Errorf("detect for user %s: %w", msg.UserID, err)
	}

	w.logger.InfoContext(ctx, "Detection request completed",
		"message_id", msg.ID,
		log.FieldUserID, msg.UserID,
		log.FieldEstimates, len(res.Estimates),
		log.FieldMatched, len(res.Matched),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Consumer delivers detection requests to a handler until ctx ends.
type Consumer interface {
	ConsumeDetectionRequests(ctx context.Context, handler func(context.Context, *amqp.DetectionRequestMessage) error) error
}

// Run consumes requests from c until ctx is cancelled.
func (w *DetectionWorker) Run(ctx context.Context, c Consumer) error {
	w.logger.InfoContext(ctx, "Detection worker started")
	err := c.ConsumeDetectionRequests(ctx, w.HandleDetectionRequest)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume detection requests: %w", err)
	}
	w.logger.InfoContext(ctx, "Detection worker stopped")
	return nil
}
