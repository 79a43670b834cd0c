package model

import (
	"time"

	"gorm.io/datatypes"
)

// RegistrationStatus is the lifecycle state of a hostel registration.
type RegistrationStatus string

const (
	RegistrationActive RegistrationStatus = "active"
	RegistrationEnded  RegistrationStatus = "ended"
)

// Registration records that an occupant is enrolled in the hostel,
// independent of the room they currently hold.
type Registration struct {
	ID             int64 `gorm:"primaryKey" json:"id"`
	OccupantFields `gorm:"embedded"`
	HostelName     string             `gorm:"size:128;not null" json:"hostelName"`
	RegisteredOn   datatypes.Date     `gorm:"not null" json:"registrationDate"`
	Status         RegistrationStatus `gorm:"size:16;not null;index" json:"status"`
	EndedAt        *time.Time         `json:"endedAt,omitempty"`
	ActiveKey      *string            `gorm:"uniqueIndex;size:192" json:"-"`
	CreatedAt      time.Time          `gorm:"not null" json:"createdAt"`
	UpdatedAt      time.Time          `gorm:"not null" json:"updatedAt"`
}

// MigrateModels lists every table in dependency order.
var MigrateModels = []any{
	&Room{},
	&Allocation{},
	&Registration{},
}
