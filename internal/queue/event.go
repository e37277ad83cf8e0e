// Package queue carries appointment domain events over RabbitMQ: the
// payload type, a publisher used by the API server and the consumer run by
// the notifier.
package queue

import (
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// Exchange is the topic exchange appointment events are published to.
const Exchange = "clinic.events"

// Routing keys, one per appointment transition.
const (
	KeyAppointmentBooked    = "appointment.booked"
	KeyAppointmentCancelled = "appointment.cancelled"
	KeyAppointmentCompleted = "appointment.completed"
)

// AppointmentEvent is published after an appointment is created or changes
// status.  It is self-contained so consumers need not query the database.
type AppointmentEvent struct {
	Type          string    `json:"type"`
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	ActorID       string    `json:"actor_id"`
	ActorRole     string    `json:"actor_role"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// KeyForStatus maps the status an appointment moved into to its routing key.
func KeyForStatus(s model.Status) string {
	switch s {
	case model.StatusCancelled:
		return KeyAppointmentCancelled
	case model.StatusCompleted:
		return KeyAppointmentCompleted
	}
	return KeyAppointmentBooked
}

// NewAppointmentEvent builds the event for a after a transition made by
// actor.
func NewAppointmentEvent(a model.Appointment, actorID string, actorRole model.Role, at time.Time) AppointmentEvent {
	return AppointmentEvent{
		Type:          KeyForStatus(a.Status),
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		ActorID:       actorID,
		ActorRole:     string(actorRole),
		Start:         a.Start.UTC(),
		End:           a.End.UTC(),
		Status:        string(a.Status),
		OccurredAt:    at.UTC(),
	}
}
