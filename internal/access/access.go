// Package access is the single place that branches on account roles.  Every
// protected operation asks Authorize (or Permits for a role-level check made
// before the resource is loaded) and every role-dependent view asks Scope.
package access

import "github.com/iliyamo/clinic-appointments/internal/model"

// Identity is the verified caller attached to a request by the access-token
// middleware.
type Identity struct {
	ID   string
	Role model.Role
}

// Operation names a protected action.
type Operation int

const (
	CreateAppointment Operation = iota
	ListAppointments
	ViewAppointment
	CancelAppointment
	CompleteAppointment
	ManageDoctors
	ManageUsers
	ViewStats
	ManageOwnAccount
)

var opNames = map[Operation]string{
	CreateAppointment:   "create appointment",
	ListAppointments:    "list appointments",
	ViewAppointment:     "view appointment",
	CancelAppointment:   "cancel appointment",
	CompleteAppointment: "complete appointment",
	ManageDoctors:       "manage doctors",
	ManageUsers:         "manage users",
	ViewStats:           "view stats",
	ManageOwnAccount:    "manage own account",
}

func (o Operation) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "unknown"
}

// grant describes what a role may do for one operation.
type grant uint8

const (
	deny   grant = iota
	own           // only when the caller owns the resource
	anyone        // regardless of ownership
)

// rules is the role × operation table.  A missing entry is deny.
var rules = map[model.Role]map[Operation]grant{
	model.RolePatient: {
		CreateAppointment: own,
		ListAppointments:  own,
		ViewAppointment:   own,
		CancelAppointment: own,
		ManageOwnAccount:  own,
	},
	model.RoleDoctor: {
		ListAppointments:    own,
		ViewAppointment:     own,
		CompleteAppointment: own,
		ManageOwnAccount:    own,
	},
	model.RoleAdmin: {
		ListAppointments:    anyone,
		ViewAppointment:     anyone,
		CancelAppointment:   anyone,
		CompleteAppointment: anyone,
		ManageDoctors:       anyone,
		ManageUsers:         anyone,
		ViewStats:           anyone,
		ManageOwnAccount:    own,
	},
}

// Authorize decides whether a caller with role may perform op on a resource
// owned by ownerID.  For PATIENT ownership means being the patient; for
// DOCTOR it means being the treating doctor.
func Authorize(role model.Role, op Operation, ownerID, callerID string) bool {
	switch rules[role][op] {
	case anyone:
		return true
	case own:
		return callerID != "" && ownerID == callerID
	}
	return false
}

// Permits is the role-level part of Authorize: whether role has any grant
// for op.  Middleware uses it before the resource owner is known.
func Permits(role model.Role, op Operation) bool {
	return rules[role][op] != deny
}

// ListScope is the appointment view filter derived from the caller.  All
// means no filter; otherwise exactly one of PatientID or DoctorUserID is set.
type ListScope struct {
	All          bool
	PatientID    string
	DoctorUserID string
}

// Scope returns the appointment filter for id.  Unknown roles see nothing.
func Scope(id Identity) (ListScope, bool) {
	if !Permits(id.Role, ListAppointments) {
		return ListScope{}, false
	}
	switch id.Role {
	case model.RoleAdmin:
		return ListScope{All: true}, true
	case model.RoleDoctor:
		return ListScope{DoctorUserID: id.ID}, true
	case model.RolePatient:
		return ListScope{PatientID: id.ID}, true
	}
	return ListScope{}, false
}

// Parties are the accounts an appointment belongs to: the patient, and the
// ids that act as its doctor (the doctor record id and, when linked, the
// doctor's user account).
type Parties struct {
	PatientID string
	DoctorIDs []string
}

// AuthorizeAppointment applies Authorize to an appointment, taking the
// patient as owner for patients and the treating doctor for doctors.
func AuthorizeAppointment(id Identity, op Operation, p Parties) bool {
	switch id.Role {
	case model.RoleDoctor:
		for _, d := range p.DoctorIDs {
			if Authorize(id.Role, op, d, id.ID) {
				return true
			}
		}
		return false
	case model.RolePatient:
		return Authorize(id.Role, op, p.PatientID, id.ID)
	}
	return Authorize(id.Role, op, "", id.ID)
}
