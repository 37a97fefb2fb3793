// models/member.go
package models

import "time"

const MemberTable = "lib_members"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Member ties a user to a school. The two counters are loan/reservation slots:
// they only move through conditional updates bounded by the tenant policy.
type Member struct {
	TenantID           string    `gorm:"size:64;primaryKey" json:"tenantId"`
	UserID             string    `gorm:"size:64;primaryKey" json:"userId"`
	Email              string    `gorm:"size:255;not null;default:''" json:"email"`
	Role               string    `gorm:"size:20;not null;default:'member'" json:"role"`
	ActiveLoans        int       `gorm:"not null;default:0;check:chk_lib_members_loans,active_loans >= 0" json:"activeLoans"`
	ActiveReservations int       `gorm:"not null;default:0;check:chk_lib_members_reservations,active_reservations >= 0" json:"activeReservations"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (Member) TableName() string { return MemberTable }

func (m Member) IsAdmin() bool { return m.Role == RoleAdmin }
