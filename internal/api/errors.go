package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hostel-allocation-backend/internal/mw"
	"hostel-allocation-backend/internal/store"
)

type errorBody struct {
	Kind    store.Kind `json:"kind"`
	Message string     `json:"message"`
}

func statusFor(err error) int {
	switch store.KindOf(err) {
	case store.KindValidation, store.KindInvalidCapacity:
		return http.StatusBadRequest
	case store.KindNotFound:
		return http.StatusNotFound
	case store.KindDuplicateRoomNumber,
		store.KindCapacityBelowOccupancy,
		store.KindRoomOccupied,
		store.KindRoomFull,
		store.KindOccupantAlreadyAllocated,
		store.KindDuplicateActiveRegistration:
		return http.StatusConflict
	case store.KindRegistrationFailed:
		if errors.Is(err, store.ErrStore) {
			return http.StatusServiceUnavailable
		}
		return http.StatusConflict
	case store.KindRegistrationAborted:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

// respondError writes err as {"error":{"kind":...,"message":...}}.
// Internal failures report only the outermost message so driver details
// stay in the log.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := store.KindOf(err)
	status := statusFor(err)
	message := err.Error()

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"request_id", mw.RequestID(c),
			"kind", kind,
			"error", err,
		)
		message = store.ErrStore.Message
		var e *store.Error
		if errors.As(err, &e) && e.Message != "" {
			message = e.Message
		}
	}

	c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Kind: kind, Message: message}})
}

// badRequest reports a malformed request body or parameter.
func (h *Handler) badRequest(c *gin.Context, err error) {
	h.respondError(c, store.Wrap(store.KindValidation, err, "invalid request"))
}
