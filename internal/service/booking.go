package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/queue"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// AppointmentStore is the appointment persistence used by the ledger.
// CreateBooked must serialize concurrent bookings of one doctor so that the
// overlap check and the insert happen atomically.
type AppointmentStore interface {
	CreateBooked(ctx context.Context, a *model.Appointment) error
	GetByID(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, f repository.AppointmentFilter) ([]model.Appointment, int, error)
	ListBookedOverlapping(ctx context.Context, doctorID string, iv model.Interval) ([]model.Appointment, error)
	Transition(ctx context.Context, id string, from, to model.Status) (model.Appointment, error)
}

// DoctorLookup resolves doctors by id.
type DoctorLookup interface {
	GetByID(ctx context.Context, id string) (model.Doctor, error)
}

// EventPublisher receives appointment events.  Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AppointmentEvent) error
}

// BookingRules are the scheduling limits.
type BookingRules struct {
	MaxDuration time.Duration
	Slots       config.SlotConfig
}

// NewAppointment is the input of Create.  The patient is always the caller.
type NewAppointment struct {
	DoctorID string
	Start    time.Time
	End      time.Time
}

// ListQuery holds the optional filters of List; they narrow the caller's
// scope and never widen it.
type ListQuery struct {
	DoctorID string
	Status   model.Status
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}

// Slot is one candidate of the availability grid.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// BookingLedger creates, lists, cancels and completes appointments.
type BookingLedger struct {
	store   AppointmentStore
	doctors DoctorLookup
	events  EventPublisher
	rules   BookingRules
	now     func() time.Time
}

// NewBookingLedger wires the ledger.  events may be nil.
func NewBookingLedger(store AppointmentStore, doctors DoctorLookup, events EventPublisher, rules BookingRules) *BookingLedger {
	return &BookingLedger{store: store, doctors: doctors, events: events, rules: rules, now: time.Now}
}

// Create books in.DoctorID for the calling patient over [Start, End).
func (b *BookingLedger) Create(ctx context.Context, caller access.Identity, in NewAppointment) (model.Appointment, error) {
	if !access.Authorize(caller.Role, access.CreateAppointment, caller.ID, caller.ID) {
		return model.Appointment{}, ErrForbidden
	}
	in.DoctorID = strings.TrimSpace(in.DoctorID)
	switch {
	case in.DoctorID == "":
		return model.Appointment{}, Validation("doctorId", "is required")
	case in.Start.IsZero():
		return model.Appointment{}, Validation("start", "is required")
	case in.End.IsZero():
		return model.Appointment{}, Validation("end", "is required")
	}
	d, err := b.doctors.GetByID(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Appointment{}, ErrDoctorNotFound
		}
		return model.Appointment{}, err
	}
	// Inactive doctors are hidden from patients, so they cannot be booked.
	if !d.Active {
		return model.Appointment{}, ErrDoctorNotFound
	}
	// Storage keeps millisecond precision; validate what will be stored.
	iv := model.Interval{
		Start: in.Start.UTC().Truncate(time.Millisecond),
		End:   in.End.UTC().Truncate(time.Millisecond),
	}
	if !iv.Start.Before(iv.End) {
		return model.Appointment{}, Validation("start", "must be before end")
	}
	if b.rules.MaxDuration > 0 && iv.Duration() > b.rules.MaxDuration {
		return model.Appointment{}, Validation("end", "appointment may last at most %s", b.rules.MaxDuration)
	}

	a := model.Appointment{DoctorID: in.DoctorID, PatientID: caller.ID, Start: iv.Start, End: iv.End}
	if err := b.store.CreateBooked(ctx, &a); err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotTaken):
			return model.Appointment{}, ErrSlotTaken
		case errors.Is(err, repository.ErrNotFound):
			return model.Appointment{}, ErrDoctorNotFound
		}
		return model.Appointment{}, err
	}
	b.publish(ctx, a, caller)
	return a, nil
}

// List returns the appointments visible to caller, filtered by q.
func (b *BookingLedger) List(ctx context.Context, caller access.Identity, q ListQuery) ([]model.Appointment, int, error) {
	scope, ok := access.Scope(caller)
	if !ok {
		return nil, 0, ErrForbidden
	}
	if q.Status != "" {
		if _, ok := model.ParseStatus(string(q.Status)); !ok {
			return nil, 0, Validation("status", "unknown status %q", q.Status)
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && !q.From.Before(q.To) {
		return nil, 0, Validation("from", "must be before to")
	}
	f := repository.AppointmentFilter{
		DoctorID: q.DoctorID,
		Status:   q.Status,
		From:     q.From,
		To:       q.To,
		Page:     q.Page,
		Limit:    q.Limit,
	}
	if !scope.All {
		f.PatientID = scope.PatientID
		f.DoctorUserID = scope.DoctorUserID
	}
	return b.store.List(ctx, f)
}

// Get returns one appointment if caller may view it.  Appointments the
// caller may not see are reported as forbidden, not hidden.
func (b *BookingLedger) Get(ctx context.Context, caller access.Identity, id string) (model.Appointment, error) {
	a, err := b.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	parties, err := b.parties(ctx, a)
	if err != nil {
		return model.Appointment{}, err
	}
	if !access.AuthorizeAppointment(caller, access.ViewAppointment, parties) {
		return model.Appointment{}, ErrForbidden
	}
	return a, nil
}

// Cancel moves a BOOKED appointment to CANCELLED.  The owning patient or an
// administrator may cancel.
func (b *BookingLedger) Cancel(ctx context.Context, caller access.Identity, id string) (model.Appointment, error) {
	return b.transition(ctx, caller, id, access.CancelAppointment, model.StatusCancelled)
}

// Complete moves a BOOKED appointment to COMPLETED.  The treating doctor or
// an administrator may complete.
func (b *BookingLedger) Complete(ctx context.Context, caller access.Identity, id string) (model.Appointment, error) {
	return b.transition(ctx, caller, id, access.CompleteAppointment, model.StatusCompleted)
}

func (b *BookingLedger) transition(ctx context.Context, caller access.Identity, id string, op access.Operation, to model.Status) (model.Appointment, error) {
	a, err := b.load(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	parties, err := b.parties(ctx, a)
	if err != nil {
		return model.Appointment{}, err
	}
	if !access.AuthorizeAppointment(caller, op, parties) {
		return model.Appointment{}, ErrForbidden
	}
	if !model.CanTransition(a.Status, to) {
		return model.Appointment{}, ErrInvalidState
	}
	updated, err := b.store.Transition(ctx, a.ID, a.Status, to)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStateChanged):
			return model.Appointment{}, ErrInvalidState
		case errors.Is(err, repository.ErrNotFound):
			return model.Appointment{}, ErrAppointmentNotFound
		}
		return model.Appointment{}, err
	}
	b.publish(ctx, updated, caller)
	return updated, nil
}

// AvailableSlots projects the daily grid of doctorID on date and marks the
// candidates that overlap a BOOKED appointment as unavailable.  Only the
// calendar day of date (in UTC) is used.
func (b *BookingLedger) AvailableSlots(ctx context.Context, doctorID string, date time.Time) ([]Slot, error) {
	if _, err := b.doctors.GetByID(ctx, doctorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	date = date.UTC()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	cfg := b.rules.Slots
	first := day.Add(cfg.DayStart)
	window := model.Interval{Start: first, End: first.Add(time.Duration(cfg.Count) * cfg.Length)}

	booked, err := b.store.ListBookedOverlapping(ctx, doctorID, window)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		iv := model.Interval{Start: first.Add(time.Duration(i) * cfg.Length)}
		iv.End = iv.Start.Add(cfg.Length)
		free := true
		for _, a := range booked {
			if iv.Overlaps(a.Interval()) {
				free = false
				break
			}
		}
		slots = append(slots, Slot{Start: iv.Start, End: iv.End, Available: free})
	}
	return slots, nil
}

func (b *BookingLedger) load(ctx context.Context, id string) (model.Appointment, error) {
	a, err := b.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	return a, err
}

// parties resolves who a belongs to.  A doctor record that no longer exists
// leaves only the raw doctor id.
func (b *BookingLedger) parties(ctx context.Context, a model.Appointment) (access.Parties, error) {
	p := access.Parties{PatientID: a.PatientID, DoctorIDs: []string{a.DoctorID}}
	d, err := b.doctors.GetByID(ctx, a.DoctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return p, nil
		}
		return p, err
	}
	if uid := d.TreatingUserID(); uid != d.ID {
		p.DoctorIDs = append(p.DoctorIDs, uid)
	}
	return p, nil
}

func (b *BookingLedger) publish(ctx context.Context, a model.Appointment, caller access.Identity) {
	if b.events == nil {
		return
	}
	_ = b.events.Publish(ctx, queue.NewAppointmentEvent(a, caller.ID, caller.Role, b.now()))
}
