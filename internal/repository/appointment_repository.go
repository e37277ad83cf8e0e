package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// AppointmentRepo persists appointments.  Rows are never deleted; the only
// mutation after insert is a guarded status change.
type AppointmentRepo struct{ DB *sql.DB }

func NewAppointmentRepo(db *sql.DB) *AppointmentRepo { return &AppointmentRepo{DB: db} }

// AppointmentFilter narrows List.  PatientID and DoctorUserID express the
// caller's visibility scope; the remaining fields are user supplied filters
// applied inside that scope.  Zero values mean "no restriction".
type AppointmentFilter struct {
	PatientID    string
	DoctorUserID string
	DoctorID     string
	Status       model.Status
	From         time.Time
	To           time.Time
	Page         int
	Limit        int
}

// AppointmentStats aggregates counts for the admin dashboard.
type AppointmentStats struct {
	Total          int
	ByStatus       map[model.Status]int
	CancelledSince int
}

const apptCols = "id, doctor_id, patient_id, start_at, end_at, status, created_at, updated_at"

func scanAppointment(row rowScanner, a *model.Appointment) error {
	var status string
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Start, &a.End, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return err
	}
	a.Status = model.Status(status)
	a.Start = a.Start.UTC()
	a.End = a.End.UTC()
	return nil
}

// CreateBooked inserts a as a BOOKED appointment.  Concurrent bookings for
// the same doctor are serialized by locking the doctor row; the overlap
// check then runs against committed data and the insert follows in the same
// transaction.  The unique index on (doctor_id, booked_start) backs this up
// for identical start instants.  Returns ErrNotFound for an unknown doctor
// and ErrSlotTaken when any BOOKED appointment of the doctor overlaps.
func (r *AppointmentRepo) CreateBooked(ctx context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = model.StatusBooked

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var doctorID string
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM doctors WHERE id=? FOR UPDATE", a.DoctorID).Scan(&doctorID); err != nil {
		return notFound(err)
	}

	var clash int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE doctor_id=? AND status='BOOKED' AND start_at < ? AND end_at > ?`,
		a.DoctorID, a.End.UTC(), a.Start.UTC()).Scan(&clash)
	if err != nil {
		return err
	}
	if clash > 0 {
		return ErrSlotTaken
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO appointments (id, doctor_id, patient_id, start_at, end_at, status) VALUES (?,?,?,?,?,?)",
		a.ID, a.DoctorID, a.PatientID, a.Start.UTC(), a.End.UTC(), string(a.Status))
	if err != nil {
		if isDuplicate(err, "uq_doctor_booked_start") {
			return ErrSlotTaken
		}
		return err
	}
	if err := scanAppointment(tx.QueryRowContext(ctx,
		"SELECT "+apptCols+" FROM appointments WHERE id=?", a.ID), a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID fetches one appointment.
func (r *AppointmentRepo) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	err := scanAppointment(r.DB.QueryRowContext(ctx,
		"SELECT "+apptCols+" FROM appointments WHERE id=? LIMIT 1", id), &a)
	return a, notFound(err)
}

// List returns appointments matching f ordered by start time.
func (r *AppointmentRepo) List(ctx context.Context, f AppointmentFilter) ([]model.Appointment, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.PatientID != "" {
		conds = append(conds, "a.patient_id = ?")
		args = append(args, f.PatientID)
	}
	if f.DoctorUserID != "" {
		conds = append(conds, "(a.doctor_id = ? OR a.doctor_id IN (SELECT d.id FROM doctors d WHERE d.user_id = ?))")
		args = append(args, f.DoctorUserID, f.DoctorUserID)
	}
	if f.DoctorID != "" {
		conds = append(conds, "a.doctor_id = ?")
		args = append(args, f.DoctorID)
	}
	if f.Status != "" {
		conds = append(conds, "a.status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		conds = append(conds, "a.end_at > ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "a.start_at < ?")
		args = append(args, f.To.UTC())
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM appointments a"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, limit := ClampPage(f.Page, f.Limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT a.id, a.doctor_id, a.patient_id, a.start_at, a.end_at, a.status, a.created_at, a.updated_at"+
			" FROM appointments a"+where+" ORDER BY a.start_at, a.id LIMIT ? OFFSET ?",
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Appointment, 0)
	for rows.Next() {
		var a model.Appointment
		if err := scanAppointment(rows, &a); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// ListBookedOverlapping returns the doctor's BOOKED appointments that
// overlap iv.
func (r *AppointmentRepo) ListBookedOverlapping(ctx context.Context, doctorID string, iv model.Interval) ([]model.Appointment, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+apptCols+` FROM appointments
		 WHERE doctor_id=? AND status='BOOKED' AND start_at < ? AND end_at > ?
		 ORDER BY start_at`,
		doctorID, iv.End.UTC(), iv.Start.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Appointment, 0)
	for rows.Next() {
		var a model.Appointment
		if err := scanAppointment(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Transition moves appointment id from status from to status to.  The
// update is guarded on the current status, so of two racing transitions
// only one succeeds; the loser gets ErrStateChanged.  The updated row is
// returned.
func (r *AppointmentRepo) Transition(ctx context.Context, id string, from, to model.Status) (model.Appointment, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE appointments SET status=? WHERE id=? AND status=?",
		string(to), id, string(from))
	if err != nil {
		return model.Appointment{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Appointment{}, err
	}
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if n == 0 {
		return a, ErrStateChanged
	}
	return a, nil
}

// Stats counts appointments in total, per status, and cancellations whose
// last update is at or after since.
func (r *AppointmentRepo) Stats(ctx context.Context, since time.Time) (AppointmentStats, error) {
	st := AppointmentStats{ByStatus: map[model.Status]int{}}
	rows, err := r.DB.QueryContext(ctx, "SELECT status, COUNT(*) FROM appointments GROUP BY status")
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return st, err
		}
		st.ByStatus[model.Status(s)] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	err = r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM appointments WHERE status='CANCELLED' AND updated_at >= ?",
		since.UTC()).Scan(&st.CancelledSince)
	return st, err
}
