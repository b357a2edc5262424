package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/config"
	"github.com/spec-kit/credential-service/internal/events"
)

// Publisher is the subset of the redis client used for fan-out.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationService forwards ledger events to venue displays listening on
// a redis channel.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  Publisher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. publisher may be nil, in which
// case events are only logged.
func NewNotificationService(dispatcher events.Dispatcher, publisher Publisher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCheckRecorded, n.handleCheckRecorded)
	n.dispatcher.Subscribe(events.EventAssignmentCreated, n.handleAssignmentCreated)
}

func (n *NotificationService) handleCheckRecorded(ctx context.Context, event events.Event) error {
	n.logger.Debug("CheckRecorded", zap.String("events_staff_id", event.EventsStaffID), zap.Any("payload", event.Payload))
	return n.broadcast(ctx, event)
}

func (n *NotificationService) handleAssignmentCreated(ctx context.Context, event events.Event) error {
	n.logger.Debug("AssignmentCreated", zap.String("events_staff_id", event.EventsStaffID), zap.Any("payload", event.Payload))
	return n.broadcast(ctx, event)
}

func (n *NotificationService) broadcast(ctx context.Context, event events.Event) error {
	channel := strings.TrimSpace(n.cfg.Channel)
	if n.publisher == nil || channel == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.publisher.Publish(ctx, channel, body).Err()
}
