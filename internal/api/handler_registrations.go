package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hostel-allocation-backend/internal/allocation"
	"hostel-allocation-backend/internal/model"
	"hostel-allocation-backend/internal/parse"
	"hostel-allocation-backend/internal/store"
)

// occupantRequest mirrors the occupant columns of a registration response.
type occupantRequest struct {
	OccupantKind  model.OccupantKind `json:"occupantKind"`
	StudentID     *int64             `json:"studentId"`
	ExternalName  string             `json:"externalName"`
	Institute     string             `json:"institute"`
	GuardianName  string             `json:"guardianName"`
	GuardianPhone string             `json:"guardianPhone"`
}

func (r *occupantRequest) occupant() (model.Occupant, error) {
	switch r.OccupantKind {
	case model.OccupantInternal:
		if r.StudentID == nil {
			return nil, errors.New("studentId is required for internal occupants")
		}
		return model.InternalOccupant{StudentID: *r.StudentID}, nil
	case model.OccupantExternal:
		return model.ExternalOccupant{
			Name:          r.ExternalName,
			Institute:     r.Institute,
			GuardianName:  r.GuardianName,
			GuardianPhone: r.GuardianPhone,
		}, nil
	default:
		return nil, errors.New(`occupantKind must be "internal" or "external"`)
	}
}

type createRegistrationRequest struct {
	Occupant         *occupantRequest `json:"occupant" binding:"required"`
	RoomID           int64            `json:"roomId"`
	RegistrationDate string           `json:"registrationDate"`
	HostelName       string           `json:"hostelName"`
}

type updateRegistrationRequest struct {
	Occupant         *occupantRequest `json:"occupant"`
	RoomID           *int64           `json:"roomId"`
	RegistrationDate *string          `json:"registrationDate"`
	HostelName       *string          `json:"hostelName"`
}

func (h *Handler) registrationID(c *gin.Context) (int64, bool) {
	id, err := parse.ID(c.Param("registration_id"))
	if err != nil {
		h.badRequest(c, err)
		return 0, false
	}
	return id, true
}

// ListRegistrations handles GET /api/registrations?status=active|ended.
func (h *Handler) ListRegistrations(c *gin.Context) {
	filter := store.RegistrationFilter{Status: model.RegistrationStatus(c.Query("status"))}
	switch filter.Status {
	case "", model.RegistrationActive, model.RegistrationEnded:
	default:
		h.badRequest(c, errors.New(`status must be "active" or "ended"`))
		return
	}

	regs, err := h.coordinator.ListRegistrations(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, regs)
}

// CreateRegistration handles POST /api/registrations.
func (h *Handler) CreateRegistration(c *gin.Context) {
	var req createRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	occupant, err := req.Occupant.occupant()
	if err != nil {
		h.badRequest(c, err)
		return
	}
	var date time.Time
	if req.RegistrationDate != "" {
		if date, err = parse.Date(req.RegistrationDate); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	out, err := h.coordinator.CreateRegistration(c.Request.Context(), allocation.CreateRequest{
		Occupant:   occupant,
		RoomID:     req.RoomID,
		Date:       date,
		HostelName: req.HostelName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// GetRegistration handles GET /api/registrations/:registration_id.
func (h *Handler) GetRegistration(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	out, err := h.coordinator.GetRegistration(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// UpdateRegistration handles PUT /api/registrations/:registration_id.
func (h *Handler) UpdateRegistration(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	var req updateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	edit := allocation.EditRequest{RoomID: req.RoomID, HostelName: req.HostelName}
	if req.Occupant != nil {
		occupant, err := req.Occupant.occupant()
		if err != nil {
			h.badRequest(c, err)
			return
		}
		edit.Occupant = occupant
	}
	if req.RegistrationDate != nil {
		date, err := parse.Date(*req.RegistrationDate)
		if err != nil {
			h.badRequest(c, err)
			return
		}
		edit.Date = &date
	}

	out, err := h.coordinator.EditRegistration(c.Request.Context(), id, edit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DeleteRegistration handles DELETE /api/registrations/:registration_id.
func (h *Handler) DeleteRegistration(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	out, err := h.coordinator.DeleteRegistration(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// EndRegistration handles POST /api/registrations/:registration_id/end.
func (h *Handler) EndRegistration(c *gin.Context) {
	id, ok := h.registrationID(c)
	if !ok {
		return
	}
	out, err := h.coordinator.EndRegistration(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
