package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// DoctorRepo manages rows in the doctors table.
type DoctorRepo struct{ DB *sql.DB }

func NewDoctorRepo(db *sql.DB) *DoctorRepo { return &DoctorRepo{DB: db} }

// DoctorQuery filters the public doctor listing.
type DoctorQuery struct {
	Speciality      string
	Search          string
	IncludeInactive bool
	Page            int
	Limit           int
}

const doctorCols = "id, user_id, name, image, speciality, degree, experience_years, about, fee, " +
	"address_line1, address_line2, active, rating, created_at, updated_at"

func scanDoctor(row rowScanner, d *model.Doctor) error {
	var userID, image, degree, about, addr2 sql.NullString
	err := row.Scan(&d.ID, &userID, &d.Name, &image, &d.Speciality, &degree, &d.ExperienceYears,
		&about, &d.Fee, &d.AddressLine1, &addr2, &d.Active, &d.Rating, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return err
	}
	d.UserID = nullable(userID)
	d.Image = nullable(image)
	d.Degree = nullable(degree)
	d.About = nullable(about)
	d.AddressLine2 = nullable(addr2)
	return nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Create inserts d, assigning an id when empty.  A user already linked to
// another doctor is reported as ErrConflict.
func (r *DoctorRepo) Create(ctx context.Context, d *model.Doctor) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO doctors (id, user_id, name, image, speciality, degree, experience_years, about, fee,
		 address_line1, address_line2, active, rating) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.UserID, d.Name, d.Image, d.Speciality, d.Degree, d.ExperienceYears, d.About, d.Fee,
		d.AddressLine1, d.AddressLine2, d.Active, d.Rating)
	if err != nil {
		if isDuplicate(err, "user_id") {
			return ErrConflict
		}
		return err
	}
	got, err := r.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	*d = got
	return nil
}

// GetByID fetches a doctor regardless of its active flag.
func (r *DoctorRepo) GetByID(ctx context.Context, id string) (model.Doctor, error) {
	var d model.Doctor
	err := scanDoctor(r.DB.QueryRowContext(ctx,
		"SELECT "+doctorCols+" FROM doctors WHERE id=? LIMIT 1", id), &d)
	return d, notFound(err)
}

// List returns one page of doctors, newest first, and the total count.
func (r *DoctorRepo) List(ctx context.Context, q DoctorQuery) ([]model.Doctor, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if !q.IncludeInactive {
		conds = append(conds, "active = 1")
	}
	if s := strings.TrimSpace(q.Speciality); s != "" {
		conds = append(conds, "speciality = ?")
		args = append(args, s)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		conds = append(conds, "(name LIKE ? OR speciality LIKE ? OR degree LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like, like)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM doctors"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, limit := ClampPage(q.Page, q.Limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+doctorCols+" FROM doctors"+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Doctor, 0)
	for rows.Next() {
		var d model.Doctor
		if err := scanDoctor(rows, &d); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// Update writes every mutable column of d and reloads it.
func (r *DoctorRepo) Update(ctx context.Context, d *model.Doctor) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE doctors SET user_id=?, name=?, image=?, speciality=?, degree=?, experience_years=?,
		 about=?, fee=?, address_line1=?, address_line2=?, active=?, rating=? WHERE id=?`,
		d.UserID, d.Name, d.Image, d.Speciality, d.Degree, d.ExperienceYears, d.About, d.Fee,
		d.AddressLine1, d.AddressLine2, d.Active, d.Rating, d.ID)
	if err != nil {
		if isDuplicate(err, "user_id") {
			return ErrConflict
		}
		return err
	}
	got, err := r.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	*d = got
	return nil
}

// Count returns the number of doctors, active or not.
func (r *DoctorRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM doctors").Scan(&n)
	return n, err
}
