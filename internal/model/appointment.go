package model

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusBooked, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransition reports whether from → to is an edge of the appointment
// state machine.  BOOKED is the only state with outgoing edges.
func CanTransition(from, to Status) bool {
	return from == StatusBooked && (to == StatusCancelled || to == StatusCompleted)
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two half-open intervals share an instant.
// Back-to-back intervals ([10:00,10:30) and [10:30,11:00)) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Appointment records a booking of one doctor by one patient as stored in
// the `appointments` table.  Rows are never deleted; cancellation and
// completion are status changes.
//
// Fields:
//  ID        – opaque identifier.
//  DoctorID  – doctor being booked (weak reference, no cascade).
//  PatientID – patient who booked (weak reference, no cascade).
//  Start     – first instant of the appointment (UTC).
//  End       – first instant after the appointment (UTC).
//  Status    – BOOKED, CANCELLED or COMPLETED.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Appointment struct {
	ID        string    // appointments.id
	DoctorID  string    // appointments.doctor_id
	PatientID string    // appointments.patient_id
	Start     time.Time // appointments.start_at
	End       time.Time // appointments.end_at
	Status    Status    // appointments.status
	CreatedAt time.Time // appointments.created_at
	UpdatedAt time.Time // appointments.updated_at
}

// Interval returns the time range occupied by the appointment.
func (a Appointment) Interval() Interval { return Interval{Start: a.Start, End: a.End} }
