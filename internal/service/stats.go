package service

import (
	"context"
	"time"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// StatsSource gathers the counters shown on the admin dashboard.
type StatsSource interface {
	CountByRole(ctx context.Context) (map[model.Role]int, error)
	CountDoctors(ctx context.Context) (int, error)
	AppointmentStats(ctx context.Context, since time.Time) (repository.AppointmentStats, error)
}

// Stats is the admin dashboard summary.
type Stats struct {
	Doctors            int
	Patients           int
	Appointments       int
	ByStatus           map[model.Status]int
	CancellationsToday int
}

// StatsService answers GET /admin/stats.
type StatsService struct {
	src StatsSource
	now func() time.Time
}

func NewStatsService(src StatsSource) *StatsService {
	return &StatsService{src: src, now: time.Now}
}

func (s *StatsService) Stats(ctx context.Context, caller access.Identity) (Stats, error) {
	if !access.Authorize(caller.Role, access.ViewStats, "", caller.ID) {
		return Stats{}, ErrForbidden
	}
	roles, err := s.src.CountByRole(ctx)
	if err != nil {
		return Stats{}, err
	}
	doctors, err := s.src.CountDoctors(ctx)
	if err != nil {
		return Stats{}, err
	}
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	appts, err := s.src.AppointmentStats(ctx, midnight)
	if err != nil {
		return Stats{}, err
	}
	byStatus := map[model.Status]int{
		model.StatusBooked:    0,
		model.StatusCancelled: 0,
		model.StatusCompleted: 0,
	}
	for k, v := range appts.ByStatus {
		byStatus[k] = v
	}
	return Stats{
		Doctors:            doctors,
		Patients:           roles[model.RolePatient],
		Appointments:       appts.Total,
		ByStatus:           byStatus,
		CancellationsToday: appts.CancelledSince,
	}, nil
}
