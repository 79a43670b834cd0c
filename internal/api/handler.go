package api

import (
	"context"
	"log/slog"

	"hostel-allocation-backend/internal/allocation"
	"hostel-allocation-backend/internal/directory"
	"hostel-allocation-backend/internal/store"
)

// StudentSearcher looks up students for the registration form.
type StudentSearcher interface {
	Search(ctx context.Context, query string) ([]directory.Student, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store       store.Store
	coordinator *allocation.Coordinator
	students    StudentSearcher
	logger      *slog.Logger
}

// NewHandler creates a new API handler. students may be nil when no
// directory is configured.
func NewHandler(s store.Store, coordinator *allocation.Coordinator, students StudentSearcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:       s,
		coordinator: coordinator,
		students:    students,
		logger:      logger.With("component", "api"),
	}
}
