package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hostel-allocation-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	RoomRegistry
	AllocationLedger
	RegistrationRecord

	// InTx runs fn against a Store bound to a single transaction. Calls made
	// on a Store that is already transactional join the open transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
	DB() *gorm.DB
}

// RoomRegistry owns room definitions and derives their occupancy.
type RoomRegistry interface {
	CreateRoom(ctx context.Context, roomNumber string, roomType model.RoomType, capacity int) (model.Room, error)
	UpdateRoom(ctx context.Context, id int64, patch RoomPatch) (model.Room, error)
	DeleteRoom(ctx context.Context, id int64) error
	GetRoom(ctx context.Context, id int64) (model.RoomView, error)
	ListRooms(ctx context.Context) ([]model.RoomView, error)
	OccupancyOf(ctx context.Context, id int64) (int, error)
	StatusOf(ctx context.Context, id int64) (model.RoomStatus, error)
}

// AllocationLedger owns the bindings between occupants and rooms.
type AllocationLedger interface {
	Allocate(ctx context.Context, roomID int64, occupant model.Occupant, on time.Time) (model.Allocation, error)
	Deallocate(ctx context.Context, allocationID int64) (model.Allocation, error)
	Move(ctx context.Context, allocationID, toRoomID int64, occupant model.Occupant, on time.Time) (model.Allocation, error)
	FindActiveAllocationFor(ctx context.Context, occupant model.Occupant) (*model.Allocation, error)
	FindActiveAllocations(ctx context.Context, occupantKeys []string) ([]model.Allocation, error)
	ListAllocations(ctx context.Context, roomID int64, activeOnly bool) ([]model.Allocation, error)
}

// RegistrationRecord owns hostel enrollment facts.
type RegistrationRecord interface {
	Register(ctx context.Context, occupant model.Occupant, on time.Time, hostelName string) (model.Registration, error)
	UpdateRegistration(ctx context.Context, id int64, patch RegistrationPatch) (model.Registration, error)
	EndRegistration(ctx context.Context, id int64) (model.Registration, error)
	DeleteRegistration(ctx context.Context, id int64) error
	GetRegistration(ctx context.Context, id int64) (model.Registration, error)
	ListRegistrations(ctx context.Context, filter RegistrationFilter) ([]model.Registration, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db   *gorm.DB
	inTx bool
	now  func() time.Time
}

// Option configures a gormStore.
type Option func(*gormStore)

// WithClock overrides the time source used for release and end timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *gormStore) {
		s.now = now
	}
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return storeError("begin transaction", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&gormStore{db: tx, inTx: true, now: s.now}); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return &RollbackError{Err: err, RollbackErr: rbErr}
		}
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return storeError("commit transaction", err)
	}
	return nil
}

// atomically runs fn inside the current transaction, or a new one.
func (s *gormStore) atomically(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.InTx(ctx, func(tx Store) error {
		return fn(tx.(*gormStore).db.WithContext(ctx))
	})
}

// lockRoom loads a room and holds a row lock on it until the transaction
// ends. SQLite drops the locking clause; its writers are serialized anyway.
func lockRoom(tx *gorm.DB, id int64) (model.Room, error) {
	var room model.Room
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Room{}, Errorf(KindNotFound, "room %d not found", id)
	}
	if err != nil {
		return model.Room{}, storeError("load room", err)
	}
	return room, nil
}

// countActive counts the active allocations that reference a room.
func countActive(tx *gorm.DB, roomID int64) (int, error) {
	var n int64
	if err := tx.Model(&model.Allocation{}).
		Where("room_id = ? AND released_at IS NULL", roomID).
		Count(&n).Error; err != nil {
		return 0, storeError("count room occupancy", err)
	}
	return int(n), nil
}
