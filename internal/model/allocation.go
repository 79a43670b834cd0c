package model

import (
	"time"

	"gorm.io/datatypes"
)

// Allocation binds an occupant to a room. Released allocations are kept as
// history with ReleasedAt set and ActiveKey cleared.
type Allocation struct {
	ID             int64 `gorm:"primaryKey" json:"id"`
	RoomID         int64 `gorm:"index;not null" json:"roomId"`
	OccupantFields `gorm:"embedded"`
	AllocatedOn    datatypes.Date `gorm:"not null" json:"allocationDate"`
	ReleasedAt     *time.Time     `json:"releasedAt,omitempty"`
	// ActiveKey mirrors OccupantKey while the allocation is active. The unique
	// index enforces one active allocation per occupant.
	ActiveKey *string   `gorm:"uniqueIndex;size:192" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`

	Room *Room `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// Active reports whether the allocation still holds a place in its room.
func (a Allocation) Active() bool {
	return a.ReleasedAt == nil
}
