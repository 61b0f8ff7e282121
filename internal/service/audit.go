package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/events"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/repository"
)

// auditor writes audit rows and announces them to the event bus.
type auditor struct {
	publisher events.Publisher
	logger    *zap.Logger
}

func newAuditor(publisher events.Publisher, logger *zap.Logger) *auditor {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &auditor{publisher: publisher, logger: logger}
}

// record stores the audit row; call it inside the mutating transaction.
func (a *auditor) record(ctx context.Context, repo repository.EventRepository, ev *model.Event, data map[string]any) error {
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		ev.Details = string(raw)
	}
	return repo.Create(ctx, ev)
}

// publish announces an already committed event. Failures are logged only.
func (a *auditor) publish(ctx context.Context, ev *model.Event, data map[string]any) {
	msg := events.Message{
		Type:          string(ev.EventType),
		OccurredAt:    ev.CreatedAt,
		UserID:        ev.UserID,
		DoctorID:      ev.DoctorID,
		AppointmentID: ev.AppointmentID,
		Data:          data,
	}
	if err := a.publisher.Publish(ctx, msg); err != nil {
		a.logger.Warn("events.publish.failed",
			zap.String("type", msg.Type),
			zap.Error(err),
		)
	}
}

func ptr(id uuid.UUID) *uuid.UUID {
	return &id
}
