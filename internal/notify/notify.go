// Package notify enqueues notification events through the transactional
// outbox; the dispatcher relays them to the MQ and the worker delivers them.
// Notification failures are reported but never fatal to the calling
// operation.
package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "stageflow/contracts/mq"
	"stageflow/pkg/metrics"
	"stageflow/pkg/outbox"
	"stageflow/pkg/trace"
)

type Service struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewService(db *pgxpool.Pool, logger *zap.Logger) *Service {
	return &Service{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

// EnqueueEmail writes a notification.email event to the outbox.
func (s *Service) EnqueueEmail(ctx context.Context, payload mqcontracts.EmailPayload) error {
	if len(payload.Recipients) == 0 {
		return nil
	}
	if payload.TraceID == "" {
		payload.TraceID = trace.FromContext(ctx)
	}

	s.logger.Info("Enqueueing notification email",
		zap.String("kind", payload.Kind),
		zap.String("project", payload.Project),
		zap.Int("recipients", len(payload.Recipients)),
	)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logger.Error("Failed to begin outbox transaction", zap.Error(err))
		metrics.IncrementNotification(payload.Kind, "failed")
		return err
	}
	defer tx.Rollback(ctx)

	if err := outbox.InsertEventInTx(ctx, tx, s.outboxRepo, "notification", nil,
		mqcontracts.RoutingKeyNotificationEmail, payload); err != nil {
		s.logger.Error("Failed to insert notification to outbox", zap.Error(err))
		metrics.IncrementNotification(payload.Kind, "failed")
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("Failed to commit outbox transaction", zap.Error(err))
		metrics.IncrementNotification(payload.Kind, "failed")
		return err
	}

	return nil
}
