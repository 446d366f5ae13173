// Package mqhandler holds the worker-side consumers for the events exchange.
package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/pkg/metrics"
	"stageflow/pkg/util"
)

const maxRetries = 5

// Mailer delivers one message to a set of addresses.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// EmailDirectory resolves usernames to addresses.
type EmailDirectory interface {
	EmailsFor(ctx context.Context, usernames []string) ([]string, error)
}

// Deduper suppresses repeated deliveries of the same notification.
type Deduper interface {
	IsDuplicate(ctx context.Context, key string) bool
}

// RetryCounter tracks redelivery counts for poison detection.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterPublisher parks messages that exhausted their retries.
type DeadLetterPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

type EmailHandler struct {
	directory    EmailDirectory
	mailer       Mailer
	deduper      Deduper
	retryCounter RetryCounter
	dlq          DeadLetterPublisher
	logger       *zap.Logger
}

func NewEmailHandler(
	directory EmailDirectory,
	mailer Mailer,
	deduper Deduper,
	retryCounter RetryCounter,
	dlq DeadLetterPublisher,
	logger *zap.Logger,
) *EmailHandler {
	return &EmailHandler{
		directory:    directory,
		mailer:       mailer,
		deduper:      deduper,
		retryCounter: retryCounter,
		dlq:          dlq,
		logger:       logger,
	}
}

// HandleEmail consumes one notification.email event. Returning nil acks the
// message; returning an error requeues it. Poison messages move to the DLQ
// after maxRetries deliveries.
func (h *EmailHandler) HandleEmail(ctx context.Context, raw json.RawMessage) error {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic in HandleEmail", zap.Any("panic", r))
		}
	}()

	var p mqcontracts.EmailPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal email payload (non-retryable)",
			zap.Error(err),
		)
		return nil
	}

	// Per-recipient dedupe so a redelivered event does not double-mail the
	// recipients already covered.
	var recipients []string
	for _, r := range p.Recipients {
		key := util.FormatNotificationKey(p.Kind, p.Project, p.Stage, r)
		if h.deduper.IsDuplicate(ctx, key) {
			metrics.IncrementNotification(p.Kind, "deduped")
			continue
		}
		recipients = append(recipients, r)
	}
	if len(recipients) == 0 {
		h.logger.Info("All recipients deduped, skipping",
			zap.String("kind", p.Kind),
			zap.String("project", p.Project),
		)
		return nil
	}

	addresses, err := h.directory.EmailsFor(ctx, recipients)
	if err != nil {
		return h.failOrRetry(ctx, &p, raw, err)
	}
	if len(addresses) == 0 {
		h.logger.Warn("No addresses for notification recipients",
			zap.String("kind", p.Kind),
			zap.String("project", p.Project),
			zap.Strings("recipients", recipients),
		)
		return nil
	}

	h.logger.Info("Sending notification email",
		zap.String("kind", p.Kind),
		zap.String("project", p.Project),
		zap.Int("recipients", len(addresses)),
		zap.String("trace_id", p.TraceID),
	)

	if err := h.mailer.Send(ctx, addresses, p.Subject, p.Body); err != nil {
		return h.failOrRetry(ctx, &p, raw, err)
	}

	h.retryCounter.Reset(ctx, h.retryKey(&p))
	metrics.IncrementNotification(p.Kind, "sent")
	h.logger.Info("Notification email sent",
		zap.String("kind", p.Kind),
		zap.String("project", p.Project),
	)
	return nil
}

func (h *EmailHandler) retryKey(p *mqcontracts.EmailPayload) string {
	return util.FormatRetryKey("email", fmt.Sprintf("%s:%s:%d", p.Kind, p.Project, p.Stage))
}

// failOrRetry requeues the message until maxRetries, then dead-letters it.
func (h *EmailHandler) failOrRetry(ctx context.Context, p *mqcontracts.EmailPayload, raw json.RawMessage, cause error) error {
	retryKey := h.retryKey(p)
	retryCount, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		h.logger.Warn("Failed to get retry count, continuing anyway",
			zap.String("kind", p.Kind),
			zap.Error(err),
		)
		retryCount = 1
	}

	h.logger.Error("Failed to deliver notification email",
		zap.String("kind", p.Kind),
		zap.String("project", p.Project),
		zap.Int64("retry_count", retryCount),
		zap.Error(cause),
	)

	if retryCount >= maxRetries {
		h.logger.Warn("Max retries exceeded, dead-lettering notification",
			zap.String("kind", p.Kind),
			zap.String("project", p.Project),
			zap.Int64("retry_count", retryCount),
		)
		if err := h.dlq.PublishToDLQ(mqcontracts.RoutingKeyNotificationEmail, raw, cause.Error()); err != nil {
			h.logger.Error("Failed to publish to DLQ", zap.Error(err))
			return err
		}
		h.retryCounter.Reset(ctx, retryKey)
		metrics.IncrementNotification(p.Kind, "failed")
		return nil
	}

	return cause
}
