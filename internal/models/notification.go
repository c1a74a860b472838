// internal/models/notification.go
package models

// Notification is the denormalized per-event record the fan-out persists.
// NotificationID is generated fresh on every write, so a redelivered event
// produces a harmless extra row instead of a conflicting write.
type Notification struct {
	NotificationID string `json:"notificationId"`
	ApplicationID  string `json:"applicationId"`
	EventType      string `json:"eventType"`
	Payload        string `json:"payload"` // JSON
	CreatedAt      string `json:"createdAt"`
}
