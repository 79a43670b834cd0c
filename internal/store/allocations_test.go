package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-allocation-backend/internal/model"
)

func TestAllocationLedger_OccupantAlreadyAllocated(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	a, err := s.CreateRoom(ctx, "A", model.RoomTypeDouble, 2)
	require.NoError(t, err)
	b, err := s.CreateRoom(ctx, "B", model.RoomTypeDouble, 2)
	require.NoError(t, err)

	_, err = s.Allocate(ctx, a.ID, student(42), testDay)
	require.NoError(t, err)

	_, err = s.Allocate(ctx, b.ID, student(42), testDay)
	assert.ErrorIs(t, err, ErrOccupantAlreadyAllocated)

	// External identities compare by normalized name.
	_, err = s.Allocate(ctx, a.ID, jane(), testDay)
	require.NoError(t, err)
	lookalike := jane()
	lookalike.Name = "  JANE doe"
	_, err = s.Allocate(ctx, b.ID, lookalike, testDay)
	assert.ErrorIs(t, err, ErrOccupantAlreadyAllocated)

	occupancy, err := s.OccupancyOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, occupancy)
}

func TestAllocationLedger_Validation(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "A", model.RoomTypeDouble, 2)
	require.NoError(t, err)

	_, err = s.Allocate(ctx, room.ID, nil, testDay)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.Allocate(ctx, room.ID, model.ExternalOccupant{Name: "No Guardian"}, testDay)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, model.ErrInvalidOccupant)

	_, err = s.Allocate(ctx, 999, student(1), testDay)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAllocationLedger_DeallocateKeepsHistory(t *testing.T) {
	releaseTime := time.Date(2025, 12, 20, 10, 0, 0, 0, time.UTC)
	s := newSQLiteStore(t, WithClock(func() time.Time { return releaseTime }))
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "A", model.RoomTypeDouble, 2)
	require.NoError(t, err)
	alloc, err := s.Allocate(ctx, room.ID, student(42), testDay)
	require.NoError(t, err)
	assert.True(t, alloc.Active())

	released, err := s.Deallocate(ctx, alloc.ID)
	require.NoError(t, err)
	assert.False(t, released.Active())
	require.NotNil(t, released.ReleasedAt)
	assert.True(t, releaseTime.Equal(*released.ReleasedAt))

	_, err = s.Deallocate(ctx, alloc.ID)
	assert.ErrorIs(t, err, ErrNotFound, "an allocation can only be released once")

	history, err := s.ListAllocations(ctx, room.ID, false)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	active, err := s.ListAllocations(ctx, room.ID, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	found, err := s.FindActiveAllocationFor(ctx, student(42))
	require.NoError(t, err)
	assert.Nil(t, found)

	// The occupant is free to be allocated again.
	_, err = s.Allocate(ctx, room.ID, student(42), testDay)
	assert.NoError(t, err)
}

func TestAllocationLedger_Move(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	a, err := s.CreateRoom(ctx, "A", model.RoomTypeDouble, 2)
	require.NoError(t, err)
	b, err := s.CreateRoom(ctx, "B", model.RoomTypeSingle, 1)
	require.NoError(t, err)

	alloc, err := s.Allocate(ctx, a.ID, student(1), testDay)
	require.NoError(t, err)
	_, err = s.Allocate(ctx, a.ID, student(2), testDay)
	require.NoError(t, err)

	moved, err := s.Move(ctx, alloc.ID, b.ID, student(1), testDay.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, b.ID, moved.RoomID)
	assert.NotEqual(t, alloc.ID, moved.ID)

	occA, err := s.OccupancyOf(ctx, a.ID)
	require.NoError(t, err)
	occB, err := s.OccupancyOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, occA)
	assert.Equal(t, 1, occB)

	// B is now full: moving student 2 there must leave them in A.
	current, err := s.FindActiveAllocationFor(ctx, student(2))
	require.NoError(t, err)
	require.NotNil(t, current)

	_, err = s.Move(ctx, current.ID, b.ID, student(2), testDay)
	assert.ErrorIs(t, err, ErrRoomFull)

	still, err := s.FindActiveAllocationFor(ctx, student(2))
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, current.ID, still.ID)
	assert.Equal(t, a.ID, still.RoomID)
}

func TestAllocationLedger_MoveWithinRoomUpdatesOccupant(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "A", model.RoomTypeSingle, 1)
	require.NoError(t, err)
	alloc, err := s.Allocate(ctx, room.ID, jane(), testDay)
	require.NoError(t, err)

	corrected := jane()
	corrected.GuardianPhone = "555-0199"
	moved, err := s.Move(ctx, alloc.ID, room.ID, corrected, testDay)
	require.NoError(t, err)
	assert.Equal(t, alloc.ID, moved.ID)
	assert.Equal(t, "555-0199", moved.GuardianPhone)

	// A full single room still accepts its own occupant switching identity.
	moved, err = s.Move(ctx, alloc.ID, room.ID, student(9), testDay)
	require.NoError(t, err)
	assert.Equal(t, model.OccupantInternal, moved.OccupantKind)

	occupancy, err := s.OccupancyOf(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, occupancy)
}

// TestAllocationLedger_OccupancyMatchesActiveAllocations checks the derived
// occupancy against the ledger after a mixed sequence of operations.
func TestAllocationLedger_OccupancyMatchesActiveAllocations(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	capacities := []int{1, 2, 3}
	var rooms []model.Room
	for i, c := range capacities {
		r, err := s.CreateRoom(ctx, string(rune('A'+i)), model.RoomTypeShared, c)
		require.NoError(t, err)
		rooms = append(rooms, r)
	}

	var allocs []model.Allocation
	for id := int64(1); id <= 10; id++ {
		room := rooms[int(id)%len(rooms)]
		alloc, err := s.Allocate(ctx, room.ID, student(id), testDay)
		if err != nil {
			assert.ErrorIs(t, err, ErrRoomFull)
			continue
		}
		allocs = append(allocs, alloc)
	}
	for i, alloc := range allocs {
		if i%2 == 0 {
			_, err := s.Deallocate(ctx, alloc.ID)
			require.NoError(t, err)
		}
	}

	for _, room := range rooms {
		active, err := s.ListAllocations(ctx, room.ID, true)
		require.NoError(t, err)
		occupancy, err := s.OccupancyOf(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, len(active), occupancy, "room %s", room.RoomNumber)
		assert.LessOrEqual(t, occupancy, room.Capacity, "room %s", room.RoomNumber)
	}
}

func TestAllocationLedger_FindActiveAllocations(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "A", model.RoomTypeTriple, 3)
	require.NoError(t, err)
	first, err := s.Allocate(ctx, room.ID, student(1), testDay)
	require.NoError(t, err)
	second, err := s.Allocate(ctx, room.ID, jane(), testDay)
	require.NoError(t, err)
	released, err := s.Allocate(ctx, room.ID, student(3), testDay)
	require.NoError(t, err)
	_, err = s.Deallocate(ctx, released.ID)
	require.NoError(t, err)

	found, err := s.FindActiveAllocations(ctx, []string{
		student(1).Key(), jane().Key(), student(3).Key(), student(99).Key(),
	})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, first.ID, found[0].ID)
	assert.Equal(t, second.ID, found[1].ID)

	none, err := s.FindActiveAllocations(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
