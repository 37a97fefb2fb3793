// models/book.go
package models

import "time"

const BookTable = "lib_books"

// Book is the lendable title of one school. Available is mutated only by the
// inventory ledger's conditional updates.
type Book struct {
	ID        string    `gorm:"size:64;primaryKey" json:"id"`
	TenantID  string    `gorm:"size:64;primaryKey" json:"tenantId"`
	Title     string    `gorm:"size:255;not null;default:''" json:"title"`
	Quantity  int       `gorm:"not null;default:0;check:chk_lib_books_quantity,quantity >= 0" json:"quantity"`
	Available int       `gorm:"not null;default:0;check:chk_lib_books_available,available >= 0 AND available <= quantity" json:"available"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Book) TableName() string { return BookTable }
