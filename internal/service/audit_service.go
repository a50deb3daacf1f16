package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirelo-edu/tutor-api/internal/models"
	"github.com/mirelo-edu/tutor-api/pkg/config"
	"github.com/mirelo-edu/tutor-api/pkg/jobs"
)

type auditRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
}

// AuditService records audit events after successful mutations. Writes go
// through an in-memory queue so the request path never blocks on the audit
// table; a dropped event is logged, not surfaced.
type AuditService struct {
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewAuditService constructs the audit pipeline.
func NewAuditService(repo auditRepository, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(*models.AuditEvent)
		if !ok {
			return fmt.Errorf("unexpected audit payload type %T", job.Payload)
		}
		return repo.Create(ctx, event)
	}

	queue := jobs.NewQueue("audit", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})

	return &AuditService{queue: queue, logger: logger, enabled: cfg.Enabled}
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the audit workers.
func (s *AuditService) Stop() {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Stop()
}

// Record enqueues one audit event. Fire-and-forget: enqueue failures are
// logged and swallowed.
func (s *AuditService) Record(ctx context.Context, actor, module, action, entityType, entityID string, meta map[string]interface{}) {
	if s == nil || !s.enabled {
		return
	}

	var payload []byte
	if meta != nil {
		var err error
		payload, err = json.Marshal(meta)
		if err != nil {
			s.logger.Warn("failed to marshal audit meta", zap.String("action", action), zap.Error(err))
		}
	}

	event := &models.AuditEvent{
		Actor:      actor,
		Module:     module,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Meta:       payload,
	}

	job := jobs.Job{ID: uuid.NewString(), Type: action, Payload: event}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue audit event", zap.String("action", action), zap.Error(err))
	}
}
