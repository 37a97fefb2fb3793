package db

import (
	"context"

	"library_circulation/models"
	"library_circulation/tenant"

	"gorm.io/gorm"
)

func (r *txRepo) Member(ctx context.Context, scope tenant.Scope, userID string) (*models.Member, error) {
	var m models.Member
	if err := r.db.WithContext(ctx).
		First(&m, "tenant_id = ? AND user_id = ?", scope.ID(), userID).Error; err != nil {
		return nil, lookupErr(err, "member", userID)
	}
	return &m, nil
}

func (r *txRepo) AcquireLoanSlot(ctx context.Context, scope tenant.Scope, userID string, max int) (bool, error) {
	return r.acquire(ctx, scope, userID, "active_loans", max)
}

func (r *txRepo) ReleaseLoanSlot(ctx context.Context, scope tenant.Scope, userID string) error {
	return r.release(ctx, scope, userID, "active_loans")
}

func (r *txRepo) AcquireReservationSlot(ctx context.Context, scope tenant.Scope, userID string, max int) (bool, error) {
	return r.acquire(ctx, scope, userID, "active_reservations", max)
}

func (r *txRepo) ReleaseReservationSlot(ctx context.Context, scope tenant.Scope, userID string) error {
	return r.release(ctx, scope, userID, "active_reservations")
}

// acquire bumps a slot counter only while it is below max, so concurrent
// requests of one reader cannot both pass the cap.
func (r *txRepo) acquire(ctx context.Context, scope tenant.Scope, userID, column string, max int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("tenant_id = ? AND user_id = ? AND "+column+" < ?", scope.ID(), userID, max).
		Update(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *txRepo) release(ctx context.Context, scope tenant.Scope, userID, column string) error {
	return r.db.WithContext(ctx).Model(&models.Member{}).
		Where("tenant_id = ? AND user_id = ? AND "+column+" > 0", scope.ID(), userID).
		Update(column, gorm.Expr(column+" - 1")).Error
}
