package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/service"
)

// StartNotificationWorker subscribes the presence notifier to ledger events.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	logger.Info("presence notifier subscribed")
}
