package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

// Ledger is the part of service.BookingLedger the appointment routes call.
type Ledger interface {
	Create(ctx context.Context, caller access.Identity, in service.NewAppointment) (model.Appointment, error)
	List(ctx context.Context, caller access.Identity, q service.ListQuery) ([]model.Appointment, int, error)
	Get(ctx context.Context, caller access.Identity, id string) (model.Appointment, error)
	Cancel(ctx context.Context, caller access.Identity, id string) (model.Appointment, error)
	Complete(ctx context.Context, caller access.Identity, id string) (model.Appointment, error)
}

// AppointmentHandler serves /appointments.
type AppointmentHandler struct {
	Ledger Ledger
}

func NewAppointmentHandler(l Ledger) *AppointmentHandler {
	if l == nil {
		panic("nil ledger passed to NewAppointmentHandler")
	}
	return &AppointmentHandler{Ledger: l}
}

type createAppointmentReq struct {
	DoctorID string `json:"doctorId"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// Create books an appointment for the calling patient.
func (h *AppointmentHandler) Create(c echo.Context) error {
	var req createAppointmentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	start, err := timeParam("start", req.Start)
	if err != nil {
		return respondError(c, err)
	}
	end, err := timeParam("end", req.End)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	a, err := h.Ledger.Create(ctx, caller(c), service.NewAppointment{DoctorID: req.DoctorID, Start: start, End: end})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toAppointment(a))
}

// List serves GET /appointments?status=&doctorId=&from=&to=&page=&limit=.
// The body is an array; the unpaged match count goes in X-Total-Count.
func (h *AppointmentHandler) List(c echo.Context) error {
	var q service.ListQuery
	var err error
	if q.Page, q.Limit, err = pageParams(c); err != nil {
		return respondError(c, err)
	}
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		st, ok := model.ParseStatus(strings.ToUpper(raw))
		if !ok {
			return badRequest(c, "status must be BOOKED, CANCELLED or COMPLETED")
		}
		q.Status = st
	}
	q.DoctorID = strings.TrimSpace(c.QueryParam("doctorId"))
	if q.From, err = timeParam("from", c.QueryParam("from")); err != nil {
		return respondError(c, err)
	}
	if q.To, err = timeParam("to", c.QueryParam("to")); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	list, total, err := h.Ledger.List(ctx, caller(c), q)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]appointmentResp, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointment(a))
	}
	c.Response().Header().Set("X-Total-Count", strconv.Itoa(total))
	return c.JSON(http.StatusOK, out)
}

// Get serves GET /appointments/:id.
func (h *AppointmentHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	a, err := h.Ledger.Get(ctx, caller(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAppointment(a))
}

// Cancel serves PATCH /appointments/:id/cancel.
func (h *AppointmentHandler) Cancel(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	a, err := h.Ledger.Cancel(ctx, caller(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAppointment(a))
}

// Complete serves PATCH /appointments/:id/complete.
func (h *AppointmentHandler) Complete(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	a, err := h.Ledger.Complete(ctx, caller(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toAppointment(a))
}
