package model

import "time"

// Doctor is a bookable practitioner stored in the `doctors` table.  UserID
// optionally links the record to a DOCTOR account so that the account can
// see the appointments booked with this doctor.
type Doctor struct {
	ID              string    // doctors.id
	UserID          *string   // doctors.user_id (nullable)
	Name            string    // doctors.name
	Image           *string   // doctors.image (URL, nullable)
	Speciality      string    // doctors.speciality
	Degree          *string   // doctors.degree (nullable)
	ExperienceYears uint32    // doctors.experience_years
	About           *string   // doctors.about (nullable)
	Fee             uint32    // doctors.fee
	AddressLine1    string    // doctors.address_line1
	AddressLine2    *string   // doctors.address_line2 (nullable)
	Active          bool      // doctors.active
	Rating          float64   // doctors.rating
	CreatedAt       time.Time // doctors.created_at
	UpdatedAt       time.Time // doctors.updated_at
}

// TreatingUserID returns the account id that acts as this doctor: the linked
// user when present, the doctor id otherwise.
func (d Doctor) TreatingUserID() string {
	if d.UserID != nil && *d.UserID != "" {
		return *d.UserID
	}
	return d.ID
}
