package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// Doctors is the part of service.DoctorService the handlers call.
type Doctors interface {
	List(ctx context.Context, caller *access.Identity, q repository.DoctorQuery) ([]model.Doctor, int, error)
	Get(ctx context.Context, caller *access.Identity, id string) (model.Doctor, error)
	Create(ctx context.Context, caller access.Identity, p service.DoctorPatch) (model.Doctor, error)
	Update(ctx context.Context, caller access.Identity, id string, p service.DoctorPatch) (model.Doctor, error)
}

// SlotFinder projects a doctor's daily availability grid.
type SlotFinder interface {
	AvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]service.Slot, error)
}

// DoctorHandler serves the doctor directory and its admin management.
type DoctorHandler struct {
	Doctors Doctors
	Finder  SlotFinder
}

func NewDoctorHandler(d Doctors, s SlotFinder) *DoctorHandler {
	if d == nil || s == nil {
		panic("nil dependency passed to NewDoctorHandler")
	}
	return &DoctorHandler{Doctors: d, Finder: s}
}

type doctorReq struct {
	UserID          *string  `json:"userId"`
	Name            *string  `json:"name"`
	Image           *string  `json:"image"`
	Speciality      *string  `json:"speciality"`
	Degree          *string  `json:"degree"`
	ExperienceYears *uint32  `json:"experienceYears"`
	About           *string  `json:"about"`
	Fee             *uint32  `json:"fee"`
	AddressLine1    *string  `json:"addressLine1"`
	AddressLine2    *string  `json:"addressLine2"`
	Active          *bool    `json:"active"`
	Rating          *float64 `json:"rating"`
}

func (r doctorReq) patch() service.DoctorPatch {
	return service.DoctorPatch{
		UserID: trimmed(r.UserID), Name: r.Name, Image: r.Image, Speciality: r.Speciality,
		Degree: r.Degree, ExperienceYears: r.ExperienceYears, About: r.About, Fee: r.Fee,
		AddressLine1: r.AddressLine1, AddressLine2: r.AddressLine2, Active: r.Active, Rating: r.Rating,
	}
}

type slotResp struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// List serves GET /doctors?speciality=&search=&page=&limit=.
func (h *DoctorHandler) List(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return respondError(c, err)
	}
	q := repository.DoctorQuery{
		Speciality: strings.TrimSpace(c.QueryParam("speciality")),
		Search:     strings.TrimSpace(c.QueryParam("search")),
		Page:       page,
		Limit:      limit,
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	doctors, total, err := h.Doctors.List(ctx, optionalCaller(c), q)
	if err != nil {
		return respondError(c, err)
	}
	data := make([]doctorResp, 0, len(doctors))
	for _, d := range doctors {
		data = append(data, toDoctor(d))
	}
	page, limit = repository.ClampPage(page, limit)
	return c.JSON(http.StatusOK, echo.Map{"data": data, "meta": pageMeta{Page: page, Limit: limit, Total: total}})
}

// Get serves GET /doctors/:id.
func (h *DoctorHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	d, err := h.Doctors.Get(ctx, optionalCaller(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDoctor(d))
}

// Slots serves GET /doctors/:id/slots?date=YYYY-MM-DD.
func (h *DoctorHandler) Slots(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("date"))
	if raw == "" {
		return badRequest(c, "date is required")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	// Hidden (inactive) doctors have no public slots either.
	if _, err := h.Doctors.Get(ctx, optionalCaller(c), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	slots, err := h.Finder.AvailableSlots(ctx, c.Param("id"), date)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]slotResp, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResp{Start: s.Start, End: s.End, Available: s.Available})
	}
	return c.JSON(http.StatusOK, out)
}

// Create serves POST /doctors (ADMIN).
func (h *DoctorHandler) Create(c echo.Context) error {
	var req doctorReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	d, err := h.Doctors.Create(ctx, caller(c), req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toDoctor(d))
}

// Update serves PATCH /doctors/:id (ADMIN).
func (h *DoctorHandler) Update(c echo.Context) error {
	var req doctorReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	d, err := h.Doctors.Update(ctx, caller(c), c.Param("id"), req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDoctor(d))
}
