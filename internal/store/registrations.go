package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hostel-allocation-backend/internal/model"
)

// DefaultHostelName is used when a registration names no hostel.
const DefaultHostelName = "Main Hostel"

// RegistrationPatch lists the registration fields to change. A non-nil
// Occupant may switch between the internal and external variants.
type RegistrationPatch struct {
	Occupant     model.Occupant
	RegisteredOn *time.Time
	HostelName   *string
}

// RegistrationFilter narrows ListRegistrations. Zero values match everything.
type RegistrationFilter struct {
	Status model.RegistrationStatus
}

func duplicateRegistration(existingID int64) error {
	if existingID == 0 {
		return Errorf(KindDuplicateActiveRegistration, "occupant already has an active registration")
	}
	return Errorf(KindDuplicateActiveRegistration, "occupant already has active registration %d", existingID)
}

// ensureNotRegistered fails when key belongs to an active registration other
// than exceptID. External occupants compare by normalized name.
func ensureNotRegistered(tx *gorm.DB, key string, exceptID int64) error {
	var existing []model.Registration
	if err := tx.
		Where("occupant_key = ? AND status = ? AND id <> ?", key, model.RegistrationActive, exceptID).
		Limit(1).
		Find(&existing).Error; err != nil {
		return storeError("check registration", err)
	}
	if len(existing) > 0 {
		return duplicateRegistration(existing[0].ID)
	}
	return nil
}

func loadRegistration(tx *gorm.DB, id int64) (model.Registration, error) {
	var reg model.Registration
	if err := tx.First(&reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Registration{}, Errorf(KindNotFound, "registration %d not found", id)
		}
		return model.Registration{}, storeError("load registration", err)
	}
	return reg, nil
}

// Register records an active hostel registration for occupant.
func (s *gormStore) Register(ctx context.Context, o model.Occupant, on time.Time, hostelName string) (model.Registration, error) {
	if err := validateOccupant(o); err != nil {
		return model.Registration{}, err
	}
	hostelName = strings.TrimSpace(hostelName)
	if hostelName == "" {
		hostelName = DefaultHostelName
	}

	key := o.Key()
	reg := model.Registration{
		OccupantFields: model.NewOccupantFields(o),
		HostelName:     hostelName,
		RegisteredOn:   datatypes.Date(on),
		Status:         model.RegistrationActive,
		ActiveKey:      &key,
	}
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		if err := ensureNotRegistered(tx, key, 0); err != nil {
			return err
		}
		if err := tx.Create(&reg).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateRegistration(0)
			}
			return storeError("create registration", err)
		}
		return nil
	})
	if err != nil {
		return model.Registration{}, err
	}
	return reg, nil
}

func (s *gormStore) UpdateRegistration(ctx context.Context, id int64, patch RegistrationPatch) (model.Registration, error) {
	if patch.Occupant != nil {
		if err := validateOccupant(patch.Occupant); err != nil {
			return model.Registration{}, err
		}
	}

	var reg model.Registration
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		var err error
		reg, err = loadRegistration(tx, id)
		if err != nil {
			return err
		}

		if patch.Occupant != nil {
			key := patch.Occupant.Key()
			if reg.Status == model.RegistrationActive {
				if err := ensureNotRegistered(tx, key, id); err != nil {
					return err
				}
				reg.ActiveKey = &key
			}
			reg.OccupantFields = model.NewOccupantFields(patch.Occupant)
		}
		if patch.RegisteredOn != nil {
			reg.RegisteredOn = datatypes.Date(*patch.RegisteredOn)
		}
		if patch.HostelName != nil {
			if name := strings.TrimSpace(*patch.HostelName); name != "" {
				reg.HostelName = name
			}
		}

		if err := tx.Save(&reg).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateRegistration(0)
			}
			return storeError("update registration", err)
		}
		return nil
	})
	if err != nil {
		return model.Registration{}, err
	}
	return reg, nil
}

// EndRegistration marks a registration ended. It does not touch the
// occupant's allocation. Ending an ended registration is a no-op.
func (s *gormStore) EndRegistration(ctx context.Context, id int64) (model.Registration, error) {
	var reg model.Registration
	err := s.atomically(ctx, func(tx *gorm.DB) error {
		var err error
		reg, err = loadRegistration(tx, id)
		if err != nil {
			return err
		}
		if reg.Status == model.RegistrationEnded {
			return nil
		}

		endedAt := s.now()
		reg.Status = model.RegistrationEnded
		reg.EndedAt = &endedAt
		reg.ActiveKey = nil
		if err := tx.Save(&reg).Error; err != nil {
			return storeError("end registration", err)
		}
		return nil
	})
	if err != nil {
		return model.Registration{}, err
	}
	return reg, nil
}

func (s *gormStore) DeleteRegistration(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Registration{}, id)
	if res.Error != nil {
		return storeError("delete registration", res.Error)
	}
	if res.RowsAffected == 0 {
		return Errorf(KindNotFound, "registration %d not found", id)
	}
	return nil
}

func (s *gormStore) GetRegistration(ctx context.Context, id int64) (model.Registration, error) {
	return loadRegistration(s.db.WithContext(ctx), id)
}

func (s *gormStore) ListRegistrations(ctx context.Context, filter RegistrationFilter) ([]model.Registration, error) {
	q := s.db.WithContext(ctx)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var regs []model.Registration
	if err := q.Order("id").Find(&regs).Error; err != nil {
		return nil, storeError("list registrations", err)
	}
	return regs, nil
}
