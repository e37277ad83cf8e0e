package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// ----- response shapes -----

type userResp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUser(u model.User) userResp {
	return userResp{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role), CreatedAt: u.CreatedAt}
}

type doctorResp struct {
	ID              string    `json:"id"`
	UserID          *string   `json:"userId"`
	Name            string    `json:"name"`
	Image           *string   `json:"image"`
	Speciality      string    `json:"speciality"`
	Degree          *string   `json:"degree"`
	ExperienceYears uint32    `json:"experienceYears"`
	About           *string   `json:"about"`
	Fee             uint32    `json:"fee"`
	AddressLine1    string    `json:"addressLine1"`
	AddressLine2    *string   `json:"addressLine2"`
	Active          bool      `json:"active"`
	Rating          float64   `json:"rating"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toDoctor(d model.Doctor) doctorResp {
	return doctorResp{
		ID: d.ID, UserID: d.UserID, Name: d.Name, Image: d.Image,
		Speciality: d.Speciality, Degree: d.Degree, ExperienceYears: d.ExperienceYears,
		About: d.About, Fee: d.Fee, AddressLine1: d.AddressLine1, AddressLine2: d.AddressLine2,
		Active: d.Active, Rating: d.Rating, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type appointmentResp struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctorId"`
	PatientID string    `json:"patientId"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toAppointment(a model.Appointment) appointmentResp {
	return appointmentResp{
		ID: a.ID, DoctorID: a.DoctorID, PatientID: a.PatientID,
		Start: a.Start.UTC(), End: a.End.UTC(), Status: string(a.Status),
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

type pageMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type tokensResp struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func toTokens(p service.TokenPair) tokensResp {
	return tokensResp{
		AccessToken: p.AccessToken, AccessExpiresAt: p.AccessExpiresAt,
		RefreshToken: p.RefreshToken, RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// ----- request helpers -----

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// caller returns the identity attached by the auth middleware.  Routes that
// reach a handler using it are always behind JWTAuth.
func caller(c echo.Context) access.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

// optionalCaller returns the identity when OptionalAuth attached one.
func optionalCaller(c echo.Context) *access.Identity {
	if id, ok := middleware.IdentityFrom(c); ok {
		return &id
	}
	return nil
}

// pageParams reads ?page= and ?limit=.  Absent values are 0 and get the
// repository defaults.
func pageParams(c echo.Context) (page, limit int, err error) {
	if page, err = intParam(c, "page"); err != nil {
		return 0, 0, err
	}
	limit, err = intParam(c, "limit")
	return page, limit, err
}

func intParam(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, service.Validation(name, "must be a non-negative integer")
	}
	return n, nil
}

// timeParam parses an RFC 3339 timestamp; an empty value yields the zero time.
func timeParam(name, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, service.Validation(name, "must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}
