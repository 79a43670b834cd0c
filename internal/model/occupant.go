package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidOccupant is wrapped by every occupant validation failure.
var ErrInvalidOccupant = errors.New("invalid occupant")

// OccupantKind tags which Occupant variant a record holds.
type OccupantKind string

const (
	OccupantInternal OccupantKind = "internal"
	OccupantExternal OccupantKind = "external"
)

// Occupant is the person holding a registration or an allocation. The only
// implementations are InternalOccupant and ExternalOccupant.
type Occupant interface {
	Kind() OccupantKind
	// Key identifies the occupant for duplicate detection.
	Key() string
	Validate() error
	isOccupant()
}

// InternalOccupant is a student enrolled in the college.
type InternalOccupant struct {
	StudentID int64 `json:"studentId"`
}

func (InternalOccupant) Kind() OccupantKind { return OccupantInternal }

func (o InternalOccupant) Key() string {
	return "internal:" + strconv.FormatInt(o.StudentID, 10)
}

func (o InternalOccupant) Validate() error {
	if o.StudentID <= 0 {
		return fmt.Errorf("%w: student id is required", ErrInvalidOccupant)
	}
	return nil
}

func (InternalOccupant) isOccupant() {}

// ExternalOccupant is a person from another institute staying in the hostel.
type ExternalOccupant struct {
	Name          string `json:"name"`
	Institute     string `json:"institute"`
	GuardianName  string `json:"guardianName"`
	GuardianPhone string `json:"guardianPhone"`
}

func (ExternalOccupant) Kind() OccupantKind { return OccupantExternal }

func (o ExternalOccupant) Key() string {
	return "external:" + NormalizeName(o.Name)
}

func (o ExternalOccupant) Validate() error {
	var missing []string
	if strings.TrimSpace(o.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(o.Institute) == "" {
		missing = append(missing, "institute")
	}
	if strings.TrimSpace(o.GuardianName) == "" {
		missing = append(missing, "guardianName")
	}
	if strings.TrimSpace(o.GuardianPhone) == "" {
		missing = append(missing, "guardianPhone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidOccupant, strings.Join(missing, ", "))
	}
	return nil
}

func (ExternalOccupant) isOccupant() {}

// NormalizeName folds case, applies NFKC and collapses whitespace so that
// "Jane  Doe" and "jane doe" compare equal.
func NormalizeName(name string) string {
	s := norm.NFKC.String(name)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// ValidateOccupant rejects nil occupants as well as invalid variants.
func ValidateOccupant(o Occupant) error {
	if o == nil {
		return fmt.Errorf("%w: occupant is required", ErrInvalidOccupant)
	}
	return o.Validate()
}

// OccupantFields is the column layout shared by registrations and allocations.
type OccupantFields struct {
	OccupantKind  OccupantKind `gorm:"size:16;not null" json:"occupantKind"`
	StudentID     *int64       `gorm:"index" json:"studentId,omitempty"`
	ExternalName  string       `gorm:"size:128" json:"externalName,omitempty"`
	Institute     string       `gorm:"size:128" json:"institute,omitempty"`
	GuardianName  string       `gorm:"size:128" json:"guardianName,omitempty"`
	GuardianPhone string       `gorm:"size:32" json:"guardianPhone,omitempty"`
	OccupantKey   string       `gorm:"size:192;index;not null" json:"-"`
}

// NewOccupantFields flattens o into its column representation.
func NewOccupantFields(o Occupant) OccupantFields {
	f := OccupantFields{OccupantKind: o.Kind(), OccupantKey: o.Key()}
	switch v := o.(type) {
	case InternalOccupant:
		id := v.StudentID
		f.StudentID = &id
	case ExternalOccupant:
		f.ExternalName = strings.TrimSpace(v.Name)
		f.Institute = strings.TrimSpace(v.Institute)
		f.GuardianName = strings.TrimSpace(v.GuardianName)
		f.GuardianPhone = strings.TrimSpace(v.GuardianPhone)
	}
	return f
}

// Occupant rebuilds the tagged variant from the stored columns.
func (f OccupantFields) Occupant() Occupant {
	if f.OccupantKind == OccupantInternal {
		var id int64
		if f.StudentID != nil {
			id = *f.StudentID
		}
		return InternalOccupant{StudentID: id}
	}
	return ExternalOccupant{
		Name:          f.ExternalName,
		Institute:     f.Institute,
		GuardianName:  f.GuardianName,
		GuardianPhone: f.GuardianPhone,
	}
}
