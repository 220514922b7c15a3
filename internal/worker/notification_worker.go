package worker

import (
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/service"
)

// StartNotificationWorker registers notification handlers and returns a
// function that removes them.
func StartNotificationWorker(notificationService *service.NotificationService) func() {
	if notificationService == nil {
		return func() {}
	}
	notificationService.RegisterHandlers()
	return notificationService.Close
}
