// Package notify pushes fire-and-forget notifications to connected clients.
// Messages are published on a per-user Redis channel; the realtime gateway that
// fans them out to browsers subscribes to those channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	EventTimeBlockCreated      = "time_block.created"
	EventTimeBlocksRecurring   = "time_block.recurring_created"
	EventTimeBlockUpdated      = "time_block.updated"
	EventTimeBlockDeleted      = "time_block.deleted"
	EventTimeBlockDeactivated  = "time_block.deactivated"
	EventAppointmentReschedule = "appointment.rescheduled"
	EventReportExecuted        = "scheduled_report.executed"
)

type Notification struct {
	Type   string         `json:"type"`
	UserID uuid.UUID      `json:"user_id"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

// Pusher never reports failures to the caller; delivery is best effort.
type Pusher interface {
	Push(ctx context.Context, userID uuid.UUID, eventType string, data map[string]any)
}

func Channel(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s", userID.String())
}

type RedisPusher struct {
	client  *redis.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRedisPusher(client *redis.Client, logger zerolog.Logger) *RedisPusher {
	return &RedisPusher{
		client:  client,
		timeout: time.Second,
		logger:  logger,
	}
}

func (p *RedisPusher) Push(ctx context.Context, userID uuid.UUID, eventType string, data map[string]any) {
	if userID == uuid.Nil {
		return
	}

	msg, err := json.Marshal(Notification{
		Type:   eventType,
		UserID: userID,
		Data:   data,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("event", eventType).Msg("marshal notification")
		return
	}

	// detached from the request so a finished handler does not drop the push
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.client.Publish(pubCtx, Channel(userID), msg).Err(); err != nil {
		p.logger.Warn().Err(err).Str("event", eventType).Stringer("user_id", userID).Msg("publish notification")
	}
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Push(context.Context, uuid.UUID, string, map[string]any) {}
