// models/notification.go
package models

import "time"

const NotificationTable = "lib_notifications"

type NotificationType string

const (
	NotifyReservationReady   NotificationType = "reservation_ready"
	NotifyReservationExpired NotificationType = "reservation_expired"
	NotifyLoanOverdue        NotificationType = "loan_overdue"
	NotifyLoanDueSoon        NotificationType = "loan_due_soon"
)

// Notification rows are polled by the consuming application; there is no push.
type Notification struct {
	ID        string           `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string           `gorm:"size:64;not null;index:idx_lib_notifications_inbox,priority:1" json:"tenantId"`
	UserID    string           `gorm:"size:64;not null;index:idx_lib_notifications_inbox,priority:2" json:"userId"`
	Type      NotificationType `gorm:"size:40;not null" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `gorm:"type:text;not null" json:"message"`
	Read      bool             `gorm:"column:is_read;not null;default:false" json:"read"`
	CreatedAt time.Time        `gorm:"index:idx_lib_notifications_inbox,priority:3" json:"createdAt"`
}

func (Notification) TableName() string { return NotificationTable }
