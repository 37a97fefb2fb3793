// models/reservation.go
package models

import "time"

const ReservationTable = "lib_reservations"

type ReservationStatus string

const (
	ReservationWaiting   ReservationStatus = "WAITING"
	ReservationReady     ReservationStatus = "READY"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationFulfilled ReservationStatus = "FULFILLED" // borrowed during the READY window
)

// Reservation ids are ULIDs: ordering by (created_at, id) is creation order
// with insertion order as the tie-break.
type Reservation struct {
	ID        string            `gorm:"size:26;primaryKey" json:"id"`
	TenantID  string            `gorm:"size:64;not null;index:idx_lib_reservations_queue,priority:1" json:"tenantId"`
	BookID    string            `gorm:"size:64;not null;index:idx_lib_reservations_queue,priority:2" json:"bookId"`
	UserID    string            `gorm:"size:64;not null;index" json:"userId"`
	Status    ReservationStatus `gorm:"size:20;not null;index:idx_lib_reservations_queue,priority:3" json:"status"`
	CreatedAt time.Time         `gorm:"not null;index:idx_lib_reservations_queue,priority:4" json:"createdAt"`
	ExpiresAt *time.Time        `gorm:"index" json:"expiresAt,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (Reservation) TableName() string { return ReservationTable }

// Active reports WAITING or READY, the states that occupy a reservation slot.
func (r Reservation) Active() bool {
	return r.Status == ReservationWaiting || r.Status == ReservationReady
}

// Cancellable mirrors the state machine: only WAITING and READY may be cancelled.
func (r Reservation) Cancellable() bool { return r.Active() }
