package enums

import "slices"

// NotificationType classifies in-app vendor notifications.
type NotificationType string

const (
	NotificationTypeOrderAlert      NotificationType = "order_alert"
	NotificationTypePayoutCompleted NotificationType = "payout_completed"
	NotificationTypePayoutRejected  NotificationType = "payout_rejected"
	NotificationTypeSystem          NotificationType = "system_announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderAlert,
	NotificationTypePayoutCompleted,
	NotificationTypePayoutRejected,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", validNotificationTypes, value)
}
