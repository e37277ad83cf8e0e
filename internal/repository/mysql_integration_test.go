package repository_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-appointments/internal/config"
	"github.com/iliyamo/clinic-appointments/internal/database"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// startMySQL runs mysql:8 in Docker and returns a migrated connection.
func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("SKIP_DOCKER") == "1" {
		t.Skip("SKIP_DOCKER=1 set; skipping integration test")
	}
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0",
		Env:        []string{"MYSQL_ROOT_PASSWORD=secret", "MYSQL_DATABASE=clinic"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	cfg := config.Config{DBUser: "root", DBPass: "secret", DBHost: "localhost", DBName: "clinic"}
	var db *sql.DB
	err = pool.Retry(func() error {
		cfg.DBPort = resource.GetPort("3306/tcp")
		var err error
		if db, err = database.Open(cfg.DSN(), cfg.DBPool); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func TestMySQLIntegration(t *testing.T) {
	db := startMySQL(t)
	ctx := context.Background()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	doctors := repository.NewDoctorRepo(db)
	appts := repository.NewAppointmentRepo(db)

	t.Run("users", func(t *testing.T) {
		u := model.User{Name: "Alice", Email: " Alice@Example.com ", PasswordHash: "h"}
		require.NoError(t, users.Create(ctx, &u))
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, "alice@example.com", u.Email)
		assert.Equal(t, model.RolePatient, u.Role)

		dup := model.User{Name: "Other", Email: "alice@example.com", PasswordHash: "h"}
		assert.ErrorIs(t, users.Create(ctx, &dup), repository.ErrEmailExists)

		got, err := users.GetByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = users.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	docUser := model.User{Name: "Dr Who", Email: "who@example.com", PasswordHash: "h", Role: model.RoleDoctor}
	require.NoError(t, users.Create(ctx, &docUser))
	doc := model.Doctor{UserID: &docUser.ID, Name: "Dr Who", Speciality: "General", Fee: 50, AddressLine1: "1 Main St", Active: true, Rating: 4.5}
	require.NoError(t, doctors.Create(ctx, &doc))

	t.Run("doctor link is unique", func(t *testing.T) {
		other := model.Doctor{UserID: &docUser.ID, Name: "Clone", Speciality: "General", Fee: 1, AddressLine1: "x"}
		assert.ErrorIs(t, doctors.Create(ctx, &other), repository.ErrConflict)
	})

	day := time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	t.Run("booking overlap", func(t *testing.T) {
		first := model.Appointment{DoctorID: doc.ID, PatientID: "p1", Start: at(10, 0), End: at(10, 30)}
		require.NoError(t, appts.CreateBooked(ctx, &first))
		assert.Equal(t, model.StatusBooked, first.Status)

		clash := model.Appointment{DoctorID: doc.ID, PatientID: "p2", Start: at(10, 15), End: at(10, 45)}
		assert.ErrorIs(t, appts.CreateBooked(ctx, &clash), repository.ErrSlotTaken)

		next := model.Appointment{DoctorID: doc.ID, PatientID: "p2", Start: at(10, 30), End: at(11, 0)}
		require.NoError(t, appts.CreateBooked(ctx, &next), "back-to-back is allowed")

		unknown := model.Appointment{DoctorID: "nope", PatientID: "p2", Start: at(12, 0), End: at(12, 30)}
		assert.ErrorIs(t, appts.CreateBooked(ctx, &unknown), repository.ErrNotFound)

		cancelled, err := appts.Transition(ctx, first.ID, model.StatusBooked, model.StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, cancelled.Status)
		_, err = appts.Transition(ctx, first.ID, model.StatusBooked, model.StatusCancelled)
		assert.ErrorIs(t, err, repository.ErrStateChanged)

		again := model.Appointment{DoctorID: doc.ID, PatientID: "p3", Start: at(10, 0), End: at(10, 30)}
		require.NoError(t, appts.CreateBooked(ctx, &again), "a cancelled slot can be booked again")
	})

	t.Run("concurrent booking has one winner", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, taken := 0, 0
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a := model.Appointment{DoctorID: doc.ID, PatientID: "racer", Start: at(14, i), End: at(14, 30+i)}
				err := appts.CreateBooked(ctx, &a)
				mu.Lock()
				defer mu.Unlock()
				switch err {
				case nil:
					wins++
				case repository.ErrSlotTaken:
					taken++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, 5, taken)
	})

	t.Run("doctor scope listing", func(t *testing.T) {
		list, total, err := appts.List(ctx, repository.AppointmentFilter{DoctorUserID: docUser.ID, Status: model.StatusBooked})
		require.NoError(t, err)
		assert.Equal(t, total, len(list))
		assert.Equal(t, 3, total)

		list, _, err = appts.List(ctx, repository.AppointmentFilter{PatientID: "p2"})
		require.NoError(t, err)
		require.Len(t, list, 1)

		booked, err := appts.ListBookedOverlapping(ctx, doc.ID, model.Interval{Start: at(10, 0), End: at(11, 0)})
		require.NoError(t, err)
		assert.Len(t, booked, 2)
	})

	t.Run("refresh token rotation", func(t *testing.T) {
		owner, err := users.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		now := time.Now().UTC().Truncate(time.Second)

		t1 := model.RefreshToken{TokenHash: "h1", UserID: owner.ID, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, tokens.Create(ctx, t1))
		assert.ErrorIs(t, tokens.Create(ctx, t1), repository.ErrDuplicate)

		_, err = tokens.Rotate(ctx, "h1", model.RefreshToken{TokenHash: "h2", ExpiresAt: now.Add(time.Hour)}, now)
		require.NoError(t, err)
		_, err = tokens.Rotate(ctx, "h2", model.RefreshToken{TokenHash: "h3", ExpiresAt: now.Add(time.Hour)}, now)
		require.NoError(t, err)

		old, err := tokens.Rotate(ctx, "h1", model.RefreshToken{TokenHash: "h4", ExpiresAt: now.Add(time.Hour)}, now)
		assert.ErrorIs(t, err, repository.ErrTokenInactive)
		require.True(t, old.Rotated())

		n, err := tokens.RevokeChain(ctx, *old.ReplacedByHash, now)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "only h3 was still active")

		h3, err := tokens.Get(ctx, "h3")
		require.NoError(t, err)
		assert.False(t, h3.Active(now))
		_, err = tokens.Get(ctx, "h4")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		swept, err := tokens.Sweep(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 3, swept)
	})

	t.Run("stats", func(t *testing.T) {
		src := repository.StatsRepo{Users: users, Doctors: doctors, Appointments: appts}
		roles, err := src.CountByRole(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, roles[model.RolePatient])
		assert.Equal(t, 1, roles[model.RoleDoctor])

		n, err := src.CountDoctors(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		st, err := src.AppointmentStats(ctx, time.Now().UTC().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 4, st.Total)
		assert.Equal(t, 1, st.ByStatus[model.StatusCancelled])
		assert.Equal(t, 1, st.CancelledSince)
	})
}
