package repository

import (
	"context"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/model"
)

// StatsRepo groups the counting queries behind the admin dashboard.
type StatsRepo struct {
	Users        *UserRepo
	Doctors      *DoctorRepo
	Appointments *AppointmentRepo
}

func (s StatsRepo) CountByRole(ctx context.Context) (map[model.Role]int, error) {
	return s.Users.CountByRole(ctx)
}

func (s StatsRepo) CountDoctors(ctx context.Context) (int, error) {
	return s.Doctors.Count(ctx)
}

func (s StatsRepo) AppointmentStats(ctx context.Context, since time.Time) (AppointmentStats, error) {
	return s.Appointments.Stats(ctx, since)
}
