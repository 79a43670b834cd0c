package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hostel-allocation-backend/internal/store"
)

// SearchStudents handles GET /api/students?q=.
func (h *Handler) SearchStudents(c *gin.Context) {
	if h.students == nil {
		h.respondError(c, store.Errorf(store.KindStore, "student directory is not configured"))
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		h.badRequest(c, errors.New("query parameter q is required"))
		return
	}

	students, err := h.students.Search(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, store.Wrap(store.KindStore, err, "student directory unavailable"))
		return
	}
	c.JSON(http.StatusOK, students)
}
