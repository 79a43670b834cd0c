package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"hostel-allocation-backend/internal/model"
)

// RoomPatch lists the room fields to change. Nil fields are left untouched.
type RoomPatch struct {
	RoomNumber *string
	RoomType   *model.RoomType
	Capacity   *int
}

func validateRoomFields(roomNumber *string, roomType *model.RoomType, capacity *int) error {
	if roomNumber != nil && strings.TrimSpace(*roomNumber) == "" {
		return Errorf(KindValidation, "room number is required")
	}
	if roomType != nil && !roomType.Valid() {
		return Errorf(KindValidation, "unknown room type %q", *roomType)
	}
	if capacity != nil && *capacity < 1 {
		return Errorf(KindInvalidCapacity, "capacity must be at least 1, got %d", *capacity)
	}
	return nil
}

func duplicateRoomNumber(roomNumber string) error {
	return Errorf(KindDuplicateRoomNumber, "room number %q already exists", roomNumber)
}

func ensureRoomNumberFree(tx *gorm.DB, roomNumber string, exceptID int64) error {
	var n int64
	if err := tx.Model(&model.Room{}).
		Where("room_number = ? AND id <> ?", roomNumber, exceptID).
		Count(&n).Error; err != nil {
		return storeError("check room number", err)
	}
	if n > 0 {
		return duplicateRoomNumber(roomNumber)
	}
	return nil
}

// CreateRoom registers a new room. Room numbers are unique after trimming.
func (s *gormStore) CreateRoom(ctx context.Context, roomNumber string, roomType model.RoomType, capacity int) (model.Room, error) {
	if err := validateRoomFields(&roomNumber, &roomType, &capacity); err != nil {
		return model.Room{}, err
	}

	room := model.Room{
		RoomNumber: strings.TrimSpace(roomNumber),
		RoomType:   roomType,
		Capacity:   capacity,
	}
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		if err := ensureRoomNumberFree(tx, room.RoomNumber, 0); err != nil {
			return err
		}
		if err := tx.Create(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateRoomNumber(room.RoomNumber)
			}
			return storeError("create room", err)
		}
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	return room, nil
}

// UpdateRoom applies patch to a room. Capacity cannot drop below the number
// of occupants currently allocated to it.
func (s *gormStore) UpdateRoom(ctx context.Context, id int64, patch RoomPatch) (model.Room, error) {
	if err := validateRoomFields(patch.RoomNumber, patch.RoomType, patch.Capacity); err != nil {
		return model.Room{}, err
	}

	var room model.Room
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		var err error
		room, err = lockRoom(tx, id)
		if err != nil {
			return err
		}

		if patch.RoomNumber != nil {
			number := strings.TrimSpace(*patch.RoomNumber)
			if err := ensureRoomNumberFree(tx, number, id); err != nil {
				return err
			}
			room.RoomNumber = number
		}
		if patch.RoomType != nil {
			room.RoomType = *patch.RoomType
		}
		if patch.Capacity != nil {
			occupancy, err := countActive(tx, id)
			if err != nil {
				return err
			}
			if *patch.Capacity < occupancy {
				return Errorf(KindCapacityBelowOccupancy,
					"room %s holds %d occupants; capacity %d is too small", room.RoomNumber, occupancy, *patch.Capacity)
			}
			room.Capacity = *patch.Capacity
		}

		if err := tx.Save(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateRoomNumber(room.RoomNumber)
			}
			return storeError("update room", err)
		}
		return nil
	})
	if err != nil {
		return model.Room{}, err
	}
	return room, nil
}

// DeleteRoom removes an empty room along with its released allocation
// history. Rooms with active allocations are never deleted.
func (s *gormStore) DeleteRoom(ctx context.Context, id int64) error {
	return s.atomically(ctx, func(tx *gorm.DB) error {
		room, err := lockRoom(tx, id)
		if err != nil {
			return err
		}
		occupancy, err := countActive(tx, id)
		if err != nil {
			return err
		}
		if occupancy > 0 {
			return Errorf(KindRoomOccupied, "room %s still has %d occupants", room.RoomNumber, occupancy)
		}

		if err := tx.Where("room_id = ?", id).Delete(&model.Allocation{}).Error; err != nil {
			return storeError("delete allocation history", err)
		}
		if err := tx.Delete(&model.Room{}, id).Error; err != nil {
			return storeError("delete room", err)
		}
		return nil
	})
}

func (s *gormStore) GetRoom(ctx context.Context, id int64) (model.RoomView, error) {
	db := s.db.WithContext(ctx)

	var room model.Room
	if err := db.First(&room, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.RoomView{}, Errorf(KindNotFound, "room %d not found", id)
		}
		return model.RoomView{}, storeError("load room", err)
	}

	occupancy, err := countActive(db, id)
	if err != nil {
		return model.RoomView{}, err
	}
	return model.NewRoomView(room, occupancy), nil
}

// ListRooms returns every room with its occupancy, computed with a single
// aggregate over the active allocations.
func (s *gormStore) ListRooms(ctx context.Context) ([]model.RoomView, error) {
	db := s.db.WithContext(ctx)

	var rooms []model.Room
	if err := db.Order("id").Find(&rooms).Error; err != nil {
		return nil, storeError("list rooms", err)
	}

	type aggRow struct {
		RoomID    int64
		Occupancy int
	}
	var aggs []aggRow
	if err := db.
		Model(&model.Allocation{}).
		Select("room_id AS room_id, COUNT(*) AS occupancy").
		Where("released_at IS NULL").
		Group("room_id").
		Scan(&aggs).Error; err != nil {
		return nil, storeError("aggregate occupancy", err)
	}

	occupancy := make(map[int64]int, len(aggs))
	for _, a := range aggs {
		occupancy[a.RoomID] = a.Occupancy
	}

	views := make([]model.RoomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, model.NewRoomView(r, occupancy[r.ID]))
	}
	return views, nil
}

func (s *gormStore) OccupancyOf(ctx context.Context, id int64) (int, error) {
	view, err := s.GetRoom(ctx, id)
	if err != nil {
		return 0, err
	}
	return view.Occupancy, nil
}

func (s *gormStore) StatusOf(ctx context.Context, id int64) (model.RoomStatus, error) {
	view, err := s.GetRoom(ctx, id)
	if err != nil {
		return "", err
	}
	return view.Status, nil
}
