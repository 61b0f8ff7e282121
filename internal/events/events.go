package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is a domain event announced to other services.
type Message struct {
	Type          string         `json:"type"`
	OccurredAt    time.Time      `json:"occurredAt"`
	UserID        *uuid.UUID     `json:"userId,omitempty"`
	DoctorID      *uuid.UUID     `json:"doctorId,omitempty"`
	AppointmentID *uuid.UUID     `json:"appointmentId,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Noop drops every message.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }

func (Noop) Close() error { return nil }
