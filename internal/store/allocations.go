package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hostel-allocation-backend/internal/model"
)

func validateOccupant(o model.Occupant) error {
	if err := model.ValidateOccupant(o); err != nil {
		return Wrap(KindValidation, err, "invalid occupant")
	}
	return nil
}

// ensureSeatFree fails with RoomFull when the room has no free place left.
func ensureSeatFree(tx *gorm.DB, room model.Room) error {
	occupancy, err := countActive(tx, room.ID)
	if err != nil {
		return err
	}
	if occupancy >= room.Capacity {
		return Errorf(KindRoomFull, "room %s is full (%d/%d)", room.RoomNumber, occupancy, room.Capacity)
	}
	return nil
}

// ensureNotAllocated fails when the occupant holds an active allocation other
// than exceptID.
func ensureNotAllocated(tx *gorm.DB, o model.Occupant, exceptID int64) error {
	var existing []model.Allocation
	if err := tx.
		Where("occupant_key = ? AND released_at IS NULL AND id <> ?", o.Key(), exceptID).
		Limit(1).
		Find(&existing).Error; err != nil {
		return storeError("check occupant allocation", err)
	}
	if len(existing) > 0 {
		return Errorf(KindOccupantAlreadyAllocated,
			"occupant already holds allocation %d in room %d", existing[0].ID, existing[0].RoomID)
	}
	return nil
}

func insertAllocation(tx *gorm.DB, roomID int64, o model.Occupant, on time.Time) (model.Allocation, error) {
	key := o.Key()
	alloc := model.Allocation{
		RoomID:         roomID,
		OccupantFields: model.NewOccupantFields(o),
		AllocatedOn:    datatypes.Date(on),
		ActiveKey:      &key,
	}
	if err := tx.Create(&alloc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.Allocation{}, Errorf(KindOccupantAlreadyAllocated, "occupant already holds an allocation")
		}
		return model.Allocation{}, storeError("create allocation", err)
	}
	return alloc, nil
}

// releaseAllocation soft-deletes an active allocation. The conditional update
// makes concurrent releases of the same allocation safe.
func releaseAllocation(tx *gorm.DB, id int64, at time.Time) (model.Allocation, error) {
	res := tx.Model(&model.Allocation{}).
		Where("id = ? AND released_at IS NULL", id).
		Updates(map[string]any{"released_at": at, "active_key": nil})
	if res.Error != nil {
		return model.Allocation{}, storeError("release allocation", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Allocation{}, Errorf(KindNotFound, "no active allocation %d", id)
	}

	var alloc model.Allocation
	if err := tx.First(&alloc, id).Error; err != nil {
		return model.Allocation{}, storeError("reload allocation", err)
	}
	return alloc, nil
}

// Allocate places occupant in a room. The capacity check and the insert
// happen under the room's row lock in one transaction.
func (s *gormStore) Allocate(ctx context.Context, roomID int64, o model.Occupant, on time.Time) (model.Allocation, error) {
	if err := validateOccupant(o); err != nil {
		return model.Allocation{}, err
	}

	var alloc model.Allocation
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		room, err := lockRoom(tx, roomID)
		if err != nil {
			return err
		}
		if err := ensureNotAllocated(tx, o, 0); err != nil {
			return err
		}
		if err := ensureSeatFree(tx, room); err != nil {
			return err
		}
		alloc, err = insertAllocation(tx, room.ID, o, on)
		return err
	})
	if err != nil {
		return model.Allocation{}, err
	}
	return alloc, nil
}

// Deallocate releases an active allocation, keeping it as history.
func (s *gormStore) Deallocate(ctx context.Context, allocationID int64) (model.Allocation, error) {
	var alloc model.Allocation
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		var err error
		alloc, err = releaseAllocation(tx, allocationID, s.now())
		return err
	})
	if err != nil {
		return model.Allocation{}, err
	}
	return alloc, nil
}

// Move transfers an active allocation to another room, or rebinds it to new
// occupant details. The target is checked for a free place before the old
// allocation is released, so a failed move leaves it intact.
func (s *gormStore) Move(ctx context.Context, allocationID, toRoomID int64, o model.Occupant, on time.Time) (model.Allocation, error) {
	if err := validateOccupant(o); err != nil {
		return model.Allocation{}, err
	}

	var moved model.Allocation
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		var current model.Allocation
		if err := tx.Where("released_at IS NULL").First(&current, allocationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindNotFound, "no active allocation %d", allocationID)
			}
			return storeError("load allocation", err)
		}

		room, err := lockRoom(tx, toRoomID)
		if err != nil {
			return err
		}
		if err := ensureNotAllocated(tx, o, current.ID); err != nil {
			return err
		}
		if room.ID != current.RoomID {
			if err := ensureSeatFree(tx, room); err != nil {
				return err
			}
		}

		if room.ID == current.RoomID && current.OccupantKey == o.Key() {
			// Same place, same person: only the occupant details change.
			current.OccupantFields = model.NewOccupantFields(o)
			if err := tx.Save(&current).Error; err != nil {
				return storeError("update allocation", err)
			}
			moved = current
			return nil
		}

		if _, err := releaseAllocation(tx, current.ID, s.now()); err != nil {
			return err
		}
		moved, err = insertAllocation(tx, room.ID, o, on)
		return err
	})
	if err != nil {
		return model.Allocation{}, err
	}
	return moved, nil
}

// FindActiveAllocationFor returns the occupant's current allocation, or nil.
func (s *gormStore) FindActiveAllocationFor(ctx context.Context, o model.Occupant) (*model.Allocation, error) {
	if err := validateOccupant(o); err != nil {
		return nil, err
	}

	var allocs []model.Allocation
	if err := s.db.WithContext(ctx).
		Where("occupant_key = ? AND released_at IS NULL", o.Key()).
		Limit(1).
		Find(&allocs).Error; err != nil {
		return nil, storeError("find allocation", err)
	}
	if len(allocs) == 0 {
		return nil, nil
	}
	return &allocs[0], nil
}

// FindActiveAllocations returns the active allocations held by any of the
// given occupant keys, in one query.
func (s *gormStore) FindActiveAllocations(ctx context.Context, occupantKeys []string) ([]model.Allocation, error) {
	if len(occupantKeys) == 0 {
		return nil, nil
	}

	var allocs []model.Allocation
	if err := s.db.WithContext(ctx).
		Where("occupant_key IN ? AND released_at IS NULL", occupantKeys).
		Order("id").
		Find(&allocs).Error; err != nil {
		return nil, storeError("find allocations", err)
	}
	return allocs, nil
}

// ListAllocations returns a room's allocations in insertion order.
func (s *gormStore) ListAllocations(ctx context.Context, roomID int64, activeOnly bool) ([]model.Allocation, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	q := db.Where("room_id = ?", roomID)
	if activeOnly {
		q = q.Where("released_at IS NULL")
	}
	var allocs []model.Allocation
	if err := q.Order("id").Find(&allocs).Error; err != nil {
		return nil, storeError("list allocations", err)
	}
	return allocs, nil
}
