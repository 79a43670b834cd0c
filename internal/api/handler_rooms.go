package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hostel-allocation-backend/internal/model"
	"hostel-allocation-backend/internal/parse"
	"hostel-allocation-backend/internal/store"
)

type createRoomRequest struct {
	RoomNumber string         `json:"roomNumber" binding:"required"`
	RoomType   model.RoomType `json:"roomType" binding:"required"`
	Capacity   int            `json:"capacity"`
}

type updateRoomRequest struct {
	RoomNumber *string         `json:"roomNumber"`
	RoomType   *model.RoomType `json:"roomType"`
	Capacity   *int            `json:"capacity"`
}

func (h *Handler) roomID(c *gin.Context) (int64, bool) {
	id, err := parse.ID(c.Param("room_id"))
	if err != nil {
		h.badRequest(c, err)
		return 0, false
	}
	return id, true
}

// ListRooms handles GET /api/rooms.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// CreateRoom handles POST /api/rooms.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), parse.RoomNumber(req.RoomNumber), req.RoomType, req.Capacity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewRoomView(room, 0))
}

// GetRoom handles GET /api/rooms/:room_id.
func (h *Handler) GetRoom(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	room, err := h.store.GetRoom(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// UpdateRoom handles PATCH /api/rooms/:room_id.
func (h *Handler) UpdateRoom(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	var req updateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if req.RoomNumber != nil {
		number := parse.RoomNumber(*req.RoomNumber)
		req.RoomNumber = &number
	}

	ctx := c.Request.Context()
	if _, err := h.store.UpdateRoom(ctx, id, store.RoomPatch{
		RoomNumber: req.RoomNumber,
		RoomType:   req.RoomType,
		Capacity:   req.Capacity,
	}); err != nil {
		h.respondError(c, err)
		return
	}
	room, err := h.store.GetRoom(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// DeleteRoom handles DELETE /api/rooms/:room_id.
func (h *Handler) DeleteRoom(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteRoom(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRoomAllocations handles GET /api/rooms/:room_id/allocations. Pass
// active=true to hide released allocations.
func (h *Handler) ListRoomAllocations(c *gin.Context) {
	id, ok := h.roomID(c)
	if !ok {
		return
	}
	allocations, err := h.store.ListAllocations(c.Request.Context(), id, c.Query("active") == "true")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, allocations)
}
