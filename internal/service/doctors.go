package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// DoctorStore is the doctor persistence.  repository.DoctorRepo implements it.
type DoctorStore interface {
	Create(ctx context.Context, d *model.Doctor) error
	GetByID(ctx context.Context, id string) (model.Doctor, error)
	List(ctx context.Context, q repository.DoctorQuery) ([]model.Doctor, int, error)
	Update(ctx context.Context, d *model.Doctor) error
}

// DoctorPatch carries optional doctor changes.  Nil fields are left alone.
type DoctorPatch struct {
	UserID          *string
	Name            *string
	Image           *string
	Speciality      *string
	Degree          *string
	ExperienceYears *uint32
	About           *string
	Fee             *uint32
	AddressLine1    *string
	AddressLine2    *string
	Active          *bool
	Rating          *float64
}

// DoctorService backs the public doctor directory and its admin management.
type DoctorService struct {
	doctors DoctorStore
	users   UserLookup
}

func NewDoctorService(doctors DoctorStore, users UserLookup) *DoctorService {
	return &DoctorService{doctors: doctors, users: users}
}

// List returns the directory.  Only administrators see inactive doctors; any
// other caller, including an anonymous one, gets the public view.
func (s *DoctorService) List(ctx context.Context, caller *access.Identity, q repository.DoctorQuery) ([]model.Doctor, int, error) {
	q.IncludeInactive = caller != nil && access.Permits(caller.Role, access.ManageDoctors)
	return s.doctors.List(ctx, q)
}

// Get returns one doctor.  Inactive doctors are hidden from non-admins.
func (s *DoctorService) Get(ctx context.Context, caller *access.Identity, id string) (model.Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Doctor{}, ErrDoctorNotFound
		}
		return model.Doctor{}, err
	}
	if !d.Active && (caller == nil || !access.Permits(caller.Role, access.ManageDoctors)) {
		return model.Doctor{}, ErrDoctorNotFound
	}
	return d, nil
}

// Create adds a doctor built from p.  Name, speciality, fee and first
// address line are required.
func (s *DoctorService) Create(ctx context.Context, caller access.Identity, p DoctorPatch) (model.Doctor, error) {
	if !access.Authorize(caller.Role, access.ManageDoctors, "", caller.ID) {
		return model.Doctor{}, ErrForbidden
	}
	if p.Name == nil || p.Speciality == nil || p.Fee == nil || p.AddressLine1 == nil {
		return model.Doctor{}, Validation("body", "name, speciality, fee and addressLine1 are required")
	}
	d := model.Doctor{Active: true}
	if err := s.apply(ctx, &d, p); err != nil {
		return model.Doctor{}, err
	}
	if err := s.doctors.Create(ctx, &d); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Doctor{}, ErrDoctorLinked
		}
		return model.Doctor{}, err
	}
	return d, nil
}

// Update applies p to doctor id.
func (s *DoctorService) Update(ctx context.Context, caller access.Identity, id string, p DoctorPatch) (model.Doctor, error) {
	if !access.Authorize(caller.Role, access.ManageDoctors, "", caller.ID) {
		return model.Doctor{}, ErrForbidden
	}
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Doctor{}, ErrDoctorNotFound
		}
		return model.Doctor{}, err
	}
	if err := s.apply(ctx, &d, p); err != nil {
		return model.Doctor{}, err
	}
	if err := s.doctors.Update(ctx, &d); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return model.Doctor{}, ErrDoctorLinked
		case errors.Is(err, repository.ErrNotFound):
			return model.Doctor{}, ErrDoctorNotFound
		}
		return model.Doctor{}, err
	}
	return d, nil
}

func (s *DoctorService) apply(ctx context.Context, d *model.Doctor, p DoctorPatch) error {
	if p.Name != nil {
		if d.Name = strings.TrimSpace(*p.Name); d.Name == "" {
			return Validation("name", "must not be empty")
		}
	}
	if p.Speciality != nil {
		if d.Speciality = strings.TrimSpace(*p.Speciality); d.Speciality == "" {
			return Validation("speciality", "must not be empty")
		}
	}
	if p.AddressLine1 != nil {
		if d.AddressLine1 = strings.TrimSpace(*p.AddressLine1); d.AddressLine1 == "" {
			return Validation("addressLine1", "must not be empty")
		}
	}
	if p.Rating != nil {
		if *p.Rating < 0 || *p.Rating > 5 {
			return Validation("rating", "must be between 0 and 5")
		}
		d.Rating = *p.Rating
	}
	if p.Fee != nil {
		d.Fee = *p.Fee
	}
	if p.ExperienceYears != nil {
		d.ExperienceYears = *p.ExperienceYears
	}
	if p.Active != nil {
		d.Active = *p.Active
	}
	d.Image = optional(p.Image, d.Image)
	d.Degree = optional(p.Degree, d.Degree)
	d.About = optional(p.About, d.About)
	d.AddressLine2 = optional(p.AddressLine2, d.AddressLine2)

	if p.UserID != nil {
		uid := strings.TrimSpace(*p.UserID)
		if uid == "" {
			d.UserID = nil
			return nil
		}
		u, err := s.users.GetByID(ctx, uid)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return Validation("userId", "no such user")
			}
			return err
		}
		if u.Role != model.RoleDoctor {
			return Validation("userId", "linked account must have role DOCTOR")
		}
		d.UserID = &uid
	}
	return nil
}

// optional returns cur when p is nil, nil when p is blank and p otherwise.
func optional(p, cur *string) *string {
	if p == nil {
		return cur
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
