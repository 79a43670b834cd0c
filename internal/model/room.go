package model

import "time"

// RoomType classifies a room by its intended layout.
type RoomType string

const (
	RoomTypeSingle RoomType = "single"
	RoomTypeDouble RoomType = "double"
	RoomTypeTriple RoomType = "triple"
	RoomTypeShared RoomType = "shared"
)

// Valid reports whether t is one of the known room types.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeSingle, RoomTypeDouble, RoomTypeTriple, RoomTypeShared:
		return true
	default:
		return false
	}
}

// RoomStatus is derived from occupancy and capacity and never stored.
type RoomStatus string

const (
	RoomStatusVacant   RoomStatus = "vacant"
	RoomStatusOccupied RoomStatus = "occupied"
	RoomStatusFull     RoomStatus = "full"
)

// StatusFor derives the status of a room holding occupancy occupants.
func StatusFor(occupancy, capacity int) RoomStatus {
	switch {
	case occupancy <= 0:
		return RoomStatusVacant
	case occupancy >= capacity:
		return RoomStatusFull
	default:
		return RoomStatusOccupied
	}
}

// Room represents a hostel room definition.
type Room struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	RoomNumber string    `gorm:"uniqueIndex;size:32;not null" json:"roomNumber"`
	RoomType   RoomType  `gorm:"size:16;not null" json:"roomType"`
	Capacity   int       `gorm:"not null" json:"capacity"`
	CreatedAt  time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"not null" json:"updatedAt"`
}

// RoomView is a room together with its derived occupancy.
type RoomView struct {
	Room
	Occupancy int        `json:"currentOccupancy"`
	Status    RoomStatus `json:"status"`
}

// NewRoomView computes the derived fields for room.
func NewRoomView(room Room, occupancy int) RoomView {
	return RoomView{
		Room:      room,
		Occupancy: occupancy,
		Status:    StatusFor(occupancy, room.Capacity),
	}
}
