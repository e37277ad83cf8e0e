package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/queue"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// memTokens mirrors repository.TokenRepo in memory.
type memTokens struct {
	mu         sync.Mutex
	rows       map[string]model.RefreshToken
	duplicates int // number of upcoming inserts that collide
}

func newMemTokens() *memTokens { return &memTokens{rows: map[string]model.RefreshToken{}} }

func (m *memTokens) insertLocked(t model.RefreshToken) error {
	if m.duplicates > 0 {
		m.duplicates--
		return repository.ErrDuplicate
	}
	if _, ok := m.rows[t.TokenHash]; ok {
		return repository.ErrDuplicate
	}
	m.rows[t.TokenHash] = t
	return nil
}

func (m *memTokens) Create(_ context.Context, t model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(t)
}

func (m *memTokens) Rotate(_ context.Context, oldHash string, next model.RefreshToken, now time.Time) (model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.rows[oldHash]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	if !old.Active(now) {
		return old, repository.ErrTokenInactive
	}
	next.UserID = old.UserID
	if err := m.insertLocked(next); err != nil {
		return old, err
	}
	at, h := now, next.TokenHash
	updated := old
	updated.RevokedAt, updated.ReplacedByHash = &at, &h
	m.rows[oldHash] = updated
	return old, nil
}

func (m *memTokens) Revoke(_ context.Context, hash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[hash]
	if !ok || !t.Active(now) {
		return false, nil
	}
	t.RevokedAt = &now
	m.rows[hash] = t
	return true, nil
}

func (m *memTokens) RevokeChain(_ context.Context, fromHash string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	seen := map[string]bool{}
	for h := fromHash; h != "" && !seen[h]; {
		seen[h] = true
		t, ok := m.rows[h]
		if !ok {
			break
		}
		if t.RevokedAt == nil {
			t.RevokedAt = &now
			m.rows[h] = t
			n++
		}
		h = ""
		if t.ReplacedByHash != nil {
			h = *t.ReplacedByHash
		}
	}
	return n, nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for h, t := range m.rows {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			m.rows[h] = t
			n++
		}
	}
	return n, nil
}

// memUsers mirrors repository.UserRepo in memory.
type memUsers struct {
	mu   sync.Mutex
	rows map[string]model.User
}

func newMemUsers(users ...model.User) *memUsers {
	m := &memUsers{rows: map[string]model.User{}}
	for _, u := range users {
		m.rows[u.ID] = u
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = repository.NormalizeEmail(u.Email)
	for _, o := range m.rows {
		if o.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.RolePatient
	}
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	m.rows[u.ID] = *u
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range m.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) List(_ context.Context, _ repository.UserQuery) ([]model.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.rows))
	for _, u := range m.rows {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memUsers) Update(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[u.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, o := range m.rows {
		if id != u.ID && o.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	m.rows[u.ID] = *u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

// memDoctors mirrors repository.DoctorRepo in memory.
type memDoctors struct {
	mu   sync.Mutex
	rows map[string]model.Doctor
}

func newMemDoctors(docs ...model.Doctor) *memDoctors {
	m := &memDoctors{rows: map[string]model.Doctor{}}
	for _, d := range docs {
		m.rows[d.ID] = d
	}
	return m
}

func (m *memDoctors) Create(_ context.Context, d *model.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.UserID != nil {
		for _, o := range m.rows {
			if o.UserID != nil && *o.UserID == *d.UserID {
				return repository.ErrConflict
			}
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	m.rows[d.ID] = *d
	return nil
}

func (m *memDoctors) GetByID(_ context.Context, id string) (model.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.rows[id]
	if !ok {
		return model.Doctor{}, repository.ErrNotFound
	}
	return d, nil
}

func (m *memDoctors) List(_ context.Context, q repository.DoctorQuery) ([]model.Doctor, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Doctor, 0)
	for _, d := range m.rows {
		if !d.Active && !q.IncludeInactive {
			continue
		}
		if q.Speciality != "" && d.Speciality != q.Speciality {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memDoctors) Update(_ context.Context, d *model.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[d.ID]; !ok {
		return repository.ErrNotFound
	}
	m.rows[d.ID] = *d
	return nil
}

// memAppointments mirrors repository.AppointmentRepo in memory.  The mutex
// plays the role of the doctor row lock.
type memAppointments struct {
	mu      sync.Mutex
	doctors *memDoctors
	rows    []model.Appointment
}

func newMemAppointments(doctors *memDoctors) *memAppointments {
	return &memAppointments{doctors: doctors}
}

func (m *memAppointments) CreateBooked(ctx context.Context, a *model.Appointment) error {
	if _, err := m.doctors.GetByID(ctx, a.DoctorID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.DoctorID == a.DoctorID && o.Status == model.StatusBooked && o.Interval().Overlaps(a.Interval()) {
			return repository.ErrSlotTaken
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = model.StatusBooked
	a.CreatedAt, a.UpdatedAt = time.Now(), time.Now()
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memAppointments) GetByID(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, repository.ErrNotFound
}

func (m *memAppointments) List(ctx context.Context, f repository.AppointmentFilter) ([]model.Appointment, int, error) {
	m.mu.Lock()
	rows := append([]model.Appointment(nil), m.rows...)
	m.mu.Unlock()
	out := make([]model.Appointment, 0)
	for _, a := range rows {
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.DoctorUserID != "" {
			d, err := m.doctors.GetByID(ctx, a.DoctorID)
			if a.DoctorID != f.DoctorUserID && (err != nil || d.UserID == nil || *d.UserID != f.DoctorUserID) {
				continue
			}
		}
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && !a.End.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.Start.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *memAppointments) ListBookedOverlapping(_ context.Context, doctorID string, iv model.Interval) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Appointment, 0)
	for _, a := range m.rows {
		if a.DoctorID == doctorID && a.Status == model.StatusBooked && a.Interval().Overlaps(iv) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAppointments) Transition(_ context.Context, id string, from, to model.Status) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.rows {
		if a.ID != id {
			continue
		}
		if a.Status != from {
			return a, repository.ErrStateChanged
		}
		m.rows[i].Status = to
		m.rows[i].UpdatedAt = time.Now()
		return m.rows[i], nil
	}
	return model.Appointment{}, repository.ErrNotFound
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AppointmentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AppointmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}
