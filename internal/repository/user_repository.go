package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserQuery filters and pages ListUsers.  Search matches name or email.
type UserQuery struct {
	Search string
	Page   int
	Limit  int
}

const userCols = "id,name,email,password_hash,role,created_at,updated_at"

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func scanUser(row rowScanner, u *model.User) error {
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.Role = model.Role(role)
	return nil
}

// Create inserts u, assigning a new id when u.ID is empty.  The password
// must already be hashed.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RolePatient
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash, role) VALUES (?,?,?,?,?)",
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role))
	if err != nil {
		if isDuplicate(err, "email") {
			return ErrEmailExists
		}
		return err
	}
	got, err := r.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = got
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)), &u)
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id), &u)
	return u, notFound(err)
}

// List returns one page of users, newest first, and the total match count.
func (r *UserRepo) List(ctx context.Context, q UserQuery) ([]model.User, int, error) {
	where := ""
	args := []interface{}{}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = " WHERE name LIKE ? OR email LIKE ?"
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, limit := ClampPage(q.Page, q.Limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userCols+" FROM users"+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users := make([]model.User, 0)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// Update writes name, email, password hash and role of u.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET name=?, email=?, password_hash=?, role=? WHERE id=?",
		u.Name, u.Email, u.PasswordHash, string(u.Role), u.ID)
	if err != nil {
		if isDuplicate(err, "email") {
			return ErrEmailExists
		}
		return err
	}
	// MySQL reports 0 affected rows when nothing changed, so existence is
	// checked by reloading.
	got, err := r.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	*u = got
	return nil
}

// Delete removes the user.  Refresh tokens go with it (FK cascade);
// appointments stay.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRole returns the number of users per role.
func (r *UserRepo) CountByRole(ctx context.Context) (map[model.Role]int, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.Role]int{}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[model.Role(role)] = n
	}
	return out, rows.Err()
}

// ClampPage applies the listing defaults: page at least 1, limit 20 when
// unset and at most 100.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
