package db

import (
	"context"
	"fmt"
	"time"

	"library_circulation/circulation"
	"library_circulation/models"
	"library_circulation/tenant"

	"gorm.io/gorm"
)

func (r *txRepo) CreateReservation(ctx context.Context, res *models.Reservation) error {
	err := r.db.WithContext(ctx).Create(res).Error
	if isUniqueViolation(err) {
		return circulation.ErrDuplicateReservation
	}
	return err
}

func (r *txRepo) Reservation(ctx context.Context, scope tenant.Scope, id string) (*models.Reservation, error) {
	var res models.Reservation
	if err := r.db.WithContext(ctx).
		First(&res, "tenant_id = ? AND id = ?", scope.ID(), id).Error; err != nil {
		return nil, lookupErr(err, "reservation", id)
	}
	return &res, nil
}

func (r *txRepo) ActiveReservation(ctx context.Context, scope tenant.Scope, userID, bookID string) (*models.Reservation, error) {
	return r.first(r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND book_id = ? AND status IN ?", scope.ID(), userID, bookID,
			[]models.ReservationStatus{models.ReservationWaiting, models.ReservationReady}))
}

// OldestWaiting is the FIFO head: created_at, then the ULID for ties.
func (r *txRepo) OldestWaiting(ctx context.Context, scope tenant.Scope, bookID string) (*models.Reservation, error) {
	return r.first(r.db.WithContext(ctx).
		Where("tenant_id = ? AND book_id = ? AND status = ?", scope.ID(), bookID, models.ReservationWaiting).
		Order("created_at ASC").
		Order("id ASC"))
}

// first returns nil, nil when q matches nothing.
func (r *txRepo) first(q *gorm.DB) (*models.Reservation, error) {
	var rs []models.Reservation
	if err := q.Limit(1).Find(&rs).Error; err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, nil
	}
	return &rs[0], nil
}

func (r *txRepo) CountWaiting(ctx context.Context, scope tenant.Scope, bookID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("tenant_id = ? AND book_id = ? AND status = ?", scope.ID(), bookID, models.ReservationWaiting).
		Count(&n).Error
	return n, err
}

func (r *txRepo) PromoteReservation(ctx context.Context, scope tenant.Scope, id string, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("tenant_id = ? AND id = ? AND status = ?", scope.ID(), id, models.ReservationWaiting).
		Updates(map[string]any{
			"status":     models.ReservationReady,
			"expires_at": expiresAt.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *txRepo) SetReservationStatus(ctx context.Context, scope tenant.Scope, id string, to models.ReservationStatus, from ...models.ReservationStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("reservation %s: no source state for %s", id, to)
	}
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("tenant_id = ? AND id = ? AND status IN ?", scope.ID(), id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *txRepo) ListReservations(ctx context.Context, scope tenant.Scope, userID string) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", scope.ID())
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rs []models.Reservation
	if err := q.Order("created_at DESC").Find(&rs).Error; err != nil {
		return nil, err
	}
	return rs, nil
}

func (r *txRepo) ReadyExpiredBefore(ctx context.Context, now time.Time, afterID string, limit int) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.ReservationReady, now.UTC())
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	var rs []models.Reservation
	err := q.Order("id ASC").Limit(limit).Find(&rs).Error
	return rs, err
}

func (r *txRepo) StrandedQueues(ctx context.Context, limit int) ([]circulation.BookKey, error) {
	var keys []circulation.BookKey
	err := r.db.WithContext(ctx).
		Table(models.ReservationTable+" AS r").
		Select("r.tenant_id, r.book_id").
		Joins("JOIN "+models.BookTable+" AS b ON b.tenant_id = r.tenant_id AND b.id = r.book_id").
		Where("r.status = ? AND b.available > 0", models.ReservationWaiting).
		Group("r.tenant_id, r.book_id").
		Limit(limit).
		Scan(&keys).Error
	return keys, err
}
