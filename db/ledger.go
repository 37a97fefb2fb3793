package db

import (
	"context"

	"library_circulation/circulation"
	"library_circulation/models"
	"library_circulation/tenant"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Decrement takes a copy with one conditional UPDATE; the row count decides.
func (r *txRepo) Decrement(ctx context.Context, scope tenant.Scope, bookID string) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("tenant_id = ? AND id = ? AND available > 0", scope.ID(), bookID).
		Update("available", gorm.Expr("available - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := r.bookExists(ctx, scope, bookID); err != nil {
		return err
	}
	return circulation.ErrOutOfStock
}

// Increment is clamped at quantity.
func (r *txRepo) Increment(ctx context.Context, scope tenant.Scope, bookID string) error {
	res := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("tenant_id = ? AND id = ? AND available < quantity", scope.ID(), bookID).
		Update("available", gorm.Expr("available + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := r.bookExists(ctx, scope, bookID); err != nil {
		return err
	}
	return circulation.ErrStockCeiling
}

func (r *txRepo) bookExists(ctx context.Context, scope tenant.Scope, bookID string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("tenant_id = ? AND id = ?", scope.ID(), bookID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound("book", bookID)
	}
	return nil
}

func (r *txRepo) Book(ctx context.Context, scope tenant.Scope, bookID string) (*models.Book, error) {
	var b models.Book
	if err := r.db.WithContext(ctx).
		First(&b, "tenant_id = ? AND id = ?", scope.ID(), bookID).Error; err != nil {
		return nil, lookupErr(err, "book", bookID)
	}
	return &b, nil
}

// GetOrCreateDefaults inserts the default row unless one exists, then reads
// whichever row won. The primary key on tenant_id serialises first access.
func (r *txRepo) GetOrCreateDefaults(ctx context.Context, scope tenant.Scope) (models.PolicySettings, error) {
	def := models.DefaultPolicy(scope.ID())
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tenant_id"}}, DoNothing: true}).
		Create(&def).Error; err != nil {
		return models.PolicySettings{}, err
	}
	var p models.PolicySettings
	if err := r.db.WithContext(ctx).First(&p, "tenant_id = ?", scope.ID()).Error; err != nil {
		return models.PolicySettings{}, err
	}
	return p, nil
}
