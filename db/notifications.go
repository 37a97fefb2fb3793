package db

import (
	"context"

	"library_circulation/circulation"
	"library_circulation/models"
	"library_circulation/tenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notifications is the polled inbox; Emit is the core's notification sink.
type Notifications struct {
	db *gorm.DB
}

var _ circulation.NotificationSink = (*Notifications)(nil)

func NewNotifications(db *gorm.DB) *Notifications { return &Notifications{db: db} }

func (n *Notifications) Emit(ctx context.Context, scope tenant.Scope, userID string, typ models.NotificationType, title, message string) error {
	return n.db.WithContext(ctx).Create(&models.Notification{
		ID:       uuid.NewString(),
		TenantID: scope.ID(),
		UserID:   userID,
		Type:     typ,
		Title:    title,
		Message:  message,
	}).Error
}

// List returns the newest notifications first; unreadOnly filters read ones out.
func (n *Notifications) List(ctx context.Context, scope tenant.Scope, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := n.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", scope.ID(), userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []models.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead is idempotent; a notification of another reader is NOT_FOUND.
func (n *Notifications) MarkRead(ctx context.Context, scope tenant.Scope, userID, id string) error {
	var cnt int64
	if err := n.db.WithContext(ctx).Model(&models.Notification{}).
		Where("tenant_id = ? AND user_id = ? AND id = ?", scope.ID(), userID, id).
		Count(&cnt).Error; err != nil {
		return lookupErr(err, "notification", id)
	}
	if cnt == 0 {
		return notFound("notification", id)
	}
	return n.db.WithContext(ctx).Model(&models.Notification{}).
		Where("tenant_id = ? AND user_id = ? AND id = ?", scope.ID(), userID, id).
		Update("is_read", true).Error
}
