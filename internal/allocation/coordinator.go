package allocation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"hostel-allocation-backend/internal/model"
	"hostel-allocation-backend/internal/store"
)

// StudentResolver confirms that an internal occupant exists in the student
// directory.
type StudentResolver interface {
	Exists(ctx context.Context, studentID int64) (bool, error)
}

// Coordinator runs registration, allocation and deallocation as compound
// operations. Each operation executes in one store transaction, so it either
// applies completely or not at all.
type Coordinator struct {
	store      store.Store
	students   StudentResolver
	metrics    *Metrics
	logger     *slog.Logger
	hostelName string
	now        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithStudentResolver(r StudentResolver) Option {
	return func(c *Coordinator) { c.students = r }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithHostelName sets the hostel recorded when a request names none.
func WithHostelName(name string) Option {
	return func(c *Coordinator) { c.hostelName = name }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator on top of s.
func New(s store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      s,
		hostelName: store.DefaultHostelName,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		// Create logger to throw away logs
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return c
}

// CreateRequest registers an occupant and places them in a room.
type CreateRequest struct {
	Occupant   model.Occupant
	RoomID     int64
	Date       time.Time // zero means today
	HostelName string
}

// EditRequest changes a registration. Nil fields keep their current value.
type EditRequest struct {
	Occupant   model.Occupant
	RoomID     *int64
	Date       *time.Time
	HostelName *string
}

// Outcome carries the entities touched by an operation so callers can
// render them without a second round trip.
type Outcome struct {
	Registration model.Registration `json:"registration"`
	Allocation   *model.Allocation  `json:"allocation,omitempty"`
	Rooms        []model.RoomView   `json:"rooms"`
}

// CreateRegistration registers req.Occupant and allocates req.RoomID as one
// unit. When the allocation fails the registration is rolled back and the
// error is RegistrationFailed wrapping the cause, or RegistrationAborted if
// the rollback itself failed. A failed commit is returned as a store error.
func (c *Coordinator) CreateRegistration(ctx context.Context, req CreateRequest) (out Outcome, err error) {
	defer func() { c.finish(ctx, "create_registration", err) }()

	if err := validateOccupant(req.Occupant); err != nil {
		return Outcome{}, err
	}
	if req.RoomID <= 0 {
		return Outcome{}, store.Errorf(store.KindValidation, "room selection is required")
	}
	if err := c.checkStudent(ctx, req.Occupant); err != nil {
		return Outcome{}, err
	}

	date := req.Date
	if date.IsZero() {
		date = c.today()
	}
	hostel := strings.TrimSpace(req.HostelName)
	if hostel == "" {
		hostel = c.hostelName
	}

	var registered, allocated bool
	err = c.store.InTx(ctx, func(tx store.Store) error {
		reg, err := tx.Register(ctx, req.Occupant, date, hostel)
		if err != nil {
			return err
		}
		registered = true

		alloc, err := tx.Allocate(ctx, req.RoomID, req.Occupant, date)
		if err != nil {
			return err
		}
		allocated = true
		out.Registration = reg
		out.Allocation = &alloc
		return nil
	})
	switch {
	case err == nil:
	case allocated:
		// The commit failed; its outcome is unknown, so nothing was rolled back.
		return Outcome{}, err
	case registered:
		return Outcome{}, registrationError(err)
	default:
		return Outcome{}, err
	}

	out.Rooms, err = c.roomViews(ctx, req.RoomID)
	return out, err
}

// EditRegistration updates a registration and reconciles its allocation.
// A room change is applied as a single move: the new room is checked for a
// free place before the old allocation is released, so on RoomFull the
// occupant keeps their current room.
func (c *Coordinator) EditRegistration(ctx context.Context, id int64, req EditRequest) (out Outcome, err error) {
	defer func() { c.finish(ctx, "edit_registration", err) }()

	if req.Occupant != nil {
		if err := validateOccupant(req.Occupant); err != nil {
			return Outcome{}, err
		}
		if err := c.checkStudent(ctx, req.Occupant); err != nil {
			return Outcome{}, err
		}
	}
	if req.RoomID != nil && *req.RoomID <= 0 {
		return Outcome{}, store.Errorf(store.KindValidation, "room selection is invalid")
	}

	var affected []int64
	err = c.store.InTx(ctx, func(tx store.Store) error {
		reg, err := tx.GetRegistration(ctx, id)
		if err != nil {
			return err
		}
		if reg.Status != model.RegistrationActive && req.RoomID != nil {
			return store.Errorf(store.KindValidation, "registration %d has ended; rooms cannot be assigned", id)
		}

		var current *model.Allocation
		if reg.Status == model.RegistrationActive {
			if current, err = tx.FindActiveAllocationFor(ctx, reg.Occupant()); err != nil {
				return err
			}
		}

		reg, err = tx.UpdateRegistration(ctx, id, store.RegistrationPatch{
			Occupant:     req.Occupant,
			RegisteredOn: req.Date,
			HostelName:   req.HostelName,
		})
		if err != nil {
			return err
		}
		out.Registration = reg
		occupant := reg.Occupant()

		switch {
		case current == nil && req.RoomID == nil:
			// Registered without a room; nothing to reconcile.
		case current == nil:
			alloc, err := tx.Allocate(ctx, *req.RoomID, occupant, c.today())
			if err != nil {
				return err
			}
			out.Allocation = &alloc
			affected = append(affected, alloc.RoomID)
		default:
			target := current.RoomID
			if req.RoomID != nil {
				target = *req.RoomID
			}
			if target == current.RoomID && req.Occupant == nil {
				out.Allocation = current
				affected = append(affected, current.RoomID)
				return nil
			}
			alloc, err := tx.Move(ctx, current.ID, target, occupant, c.today())
			if err != nil {
				return err
			}
			out.Allocation = &alloc
			affected = append(affected, current.RoomID, target)
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out.Rooms, err = c.roomViews(ctx, affected...)
	return out, err
}

// DeleteRegistration removes a registration and frees the room its occupant
// holds. Both steps share one transaction; the room is released last.
func (c *Coordinator) DeleteRegistration(ctx context.Context, id int64) (out Outcome, err error) {
	defer func() { c.finish(ctx, "delete_registration", err) }()

	var affected []int64
	err = c.store.InTx(ctx, func(tx store.Store) error {
		reg, err := tx.GetRegistration(ctx, id)
		if err != nil {
			return err
		}
		out.Registration = reg

		var current *model.Allocation
		if reg.Status == model.RegistrationActive {
			if current, err = tx.FindActiveAllocationFor(ctx, reg.Occupant()); err != nil {
				return err
			}
		}

		if err := tx.DeleteRegistration(ctx, id); err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		released, err := tx.Deallocate(ctx, current.ID)
		if err != nil {
			return err
		}
		out.Allocation = &released
		affected = append(affected, released.RoomID)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out.Rooms, err = c.roomViews(ctx, affected...)
	return out, err
}

// EndRegistration checks an occupant out: the registration is ended and its
// allocation released, both kept as history.
func (c *Coordinator) EndRegistration(ctx context.Context, id int64) (out Outcome, err error) {
	defer func() { c.finish(ctx, "end_registration", err) }()

	var affected []int64
	err = c.store.InTx(ctx, func(tx store.Store) error {
		reg, err := tx.GetRegistration(ctx, id)
		if err != nil {
			return err
		}

		var current *model.Allocation
		if reg.Status == model.RegistrationActive {
			if current, err = tx.FindActiveAllocationFor(ctx, reg.Occupant()); err != nil {
				return err
			}
		}

		if out.Registration, err = tx.EndRegistration(ctx, id); err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		released, err := tx.Deallocate(ctx, current.ID)
		if err != nil {
			return err
		}
		out.Allocation = &released
		affected = append(affected, released.RoomID)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out.Rooms, err = c.roomViews(ctx, affected...)
	return out, err
}

// GetRegistration returns a registration with its current allocation, if any.
func (c *Coordinator) GetRegistration(ctx context.Context, id int64) (Outcome, error) {
	reg, err := c.store.GetRegistration(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Registration: reg}
	if reg.Status != model.RegistrationActive {
		return out, nil
	}

	alloc, err := c.store.FindActiveAllocationFor(ctx, reg.Occupant())
	if err != nil {
		return Outcome{}, err
	}
	if alloc != nil {
		out.Allocation = alloc
		if out.Rooms, err = c.roomViews(ctx, alloc.RoomID); err != nil {
			return Outcome{}, err
		}
	}
	return out, nil
}

// ListRegistrations returns the matching registrations, each with the
// allocation and room its occupant currently holds.
func (c *Coordinator) ListRegistrations(ctx context.Context, filter store.RegistrationFilter) ([]Outcome, error) {
	regs, err := c.store.ListRegistrations(ctx, filter)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, reg := range regs {
		if reg.Status == model.RegistrationActive {
			keys = append(keys, reg.OccupantKey)
		}
	}
	allocs, err := c.store.FindActiveAllocations(ctx, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]model.Allocation, len(allocs))
	for _, alloc := range allocs {
		byKey[alloc.OccupantKey] = alloc
	}

	rooms := make(map[int64]model.RoomView)
	if len(allocs) > 0 {
		views, err := c.store.ListRooms(ctx)
		if err != nil {
			return nil, err
		}
		for _, view := range views {
			rooms[view.ID] = view
		}
	}

	out := make([]Outcome, 0, len(regs))
	for _, reg := range regs {
		o := Outcome{Registration: reg}
		if alloc, ok := byKey[reg.OccupantKey]; ok && reg.Status == model.RegistrationActive {
			o.Allocation = &alloc
			if view, ok := rooms[alloc.RoomID]; ok {
				o.Rooms = []model.RoomView{view}
			}
		}
		out = append(out, o)
	}
	return out, nil
}

func validateOccupant(o model.Occupant) error {
	if err := model.ValidateOccupant(o); err != nil {
		return store.Wrap(store.KindValidation, err, "invalid occupant")
	}
	return nil
}

// registrationError reports a failure that happened after the registration
// was written inside the transaction.
func registrationError(err error) error {
	var rb *store.RollbackError
	if errors.As(err, &rb) {
		return store.Wrap(store.KindRegistrationAborted, err,
			"registration could not be rolled back and may persist without a room")
	}
	return store.Wrap(store.KindRegistrationFailed, err, "registration rolled back")
}

func (c *Coordinator) checkStudent(ctx context.Context, o model.Occupant) error {
	internal, ok := o.(model.InternalOccupant)
	if !ok || c.students == nil {
		return nil
	}
	exists, err := c.students.Exists(ctx, internal.StudentID)
	if err != nil {
		return store.Wrap(store.KindStore, err, "student directory unavailable")
	}
	if !exists {
		return store.Errorf(store.KindValidation, "student %d is not in the directory", internal.StudentID)
	}
	return nil
}

// roomViews reloads the given rooms, skipping duplicates, after a commit.
func (c *Coordinator) roomViews(ctx context.Context, ids ...int64) ([]model.RoomView, error) {
	views := make([]model.RoomView, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		view, err := c.store.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (c *Coordinator) today() time.Time {
	y, m, d := c.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (c *Coordinator) finish(ctx context.Context, op string, err error) {
	c.metrics.observe(op, err)
	if err == nil {
		c.logger.DebugContext(ctx, "coordinator operation succeeded", "component", "allocation", "operation", op)
		return
	}
	c.logger.WarnContext(ctx, "coordinator operation failed",
		"component", "allocation",
		"operation", op,
		"kind", store.KindOf(err),
		"error", err,
	)
}
