package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-appointments/internal/access"
	"github.com/iliyamo/clinic-appointments/internal/middleware"
	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/repository"
	"github.com/iliyamo/clinic-appointments/internal/service"
)

var (
	patient = access.Identity{ID: "pat-1", Role: model.RolePatient}
	admin   = access.Identity{ID: "adm-1", Role: model.RoleAdmin}
	t0      = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
)

// ----- stubs -----

type stubAccounts struct {
	Accounts
	user  model.User
	pair  service.TokenPair
	err   error
	input service.RegisterInput
	patch service.UserPatch
}

func (s *stubAccounts) Register(_ context.Context, in service.RegisterInput) (model.User, error) {
	s.input = in
	return s.user, s.err
}

func (s *stubAccounts) Login(context.Context, string, string) (model.User, service.TokenPair, error) {
	return s.user, s.pair, s.err
}

func (s *stubAccounts) Me(context.Context, access.Identity) (model.User, error) { return s.user, s.err }

func (s *stubAccounts) UpdateMe(_ context.Context, _ access.Identity, p service.UserPatch) (model.User, error) {
	s.patch = p
	return s.user, s.err
}

func (s *stubAccounts) ListUsers(context.Context, access.Identity, repository.UserQuery) ([]model.User, int, error) {
	return []model.User{s.user}, 41, s.err
}

type stubSessions struct {
	pair    service.TokenPair
	err     error
	revoked []string
}

func (s *stubSessions) Rotate(context.Context, string) (service.TokenPair, error) { return s.pair, s.err }

func (s *stubSessions) Revoke(_ context.Context, raw string) error {
	s.revoked = append(s.revoked, raw)
	return s.err
}

func (s *stubSessions) RevokeAll(context.Context, string) (int, error) { return 3, s.err }

type stubLedger struct {
	Ledger
	appt  model.Appointment
	err   error
	query service.ListQuery
	in    service.NewAppointment
}

func (s *stubLedger) Create(_ context.Context, _ access.Identity, in service.NewAppointment) (model.Appointment, error) {
	s.in = in
	return s.appt, s.err
}

func (s *stubLedger) List(_ context.Context, _ access.Identity, q service.ListQuery) ([]model.Appointment, int, error) {
	s.query = q
	return []model.Appointment{s.appt}, 7, s.err
}

func (s *stubLedger) Cancel(context.Context, access.Identity, string) (model.Appointment, error) {
	return s.appt, s.err
}

type stubDoctors struct {
	Doctors
	doctor model.Doctor
	err    error
}

func (s *stubDoctors) Get(context.Context, *access.Identity, string) (model.Doctor, error) {
	return s.doctor, s.err
}

type stubSlots struct{ slots []service.Slot }

func (s stubSlots) AvailableSlots(context.Context, string, time.Time) ([]service.Slot, error) {
	return s.slots, nil
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

// ----- helpers -----

func call(t *testing.T, h echo.HandlerFunc, id *access.Identity, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if id != nil {
		middleware.SetIdentity(c, *id)
	}
	require.NoError(t, h(c))
	return rec
}

func withParam(h echo.HandlerFunc, name, value string) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.SetParamNames(name)
		c.SetParamValues(value)
		return h(c)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env, ok := decode(t, rec)["error"].(map[string]interface{})
	require.True(t, ok, "error envelope expected, got %s", rec.Body.String())
	return env["code"].(string)
}

// ----- tests -----

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.Validation("start", "is required"), http.StatusBadRequest, "VALIDATION"},
		{service.ErrDoctorNotFound, http.StatusNotFound, "NOT_FOUND"},
		{service.ErrInvalidRefreshToken, http.StatusUnauthorized, "INVALID_REFRESH"},
		{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{service.ErrSlotTaken, http.StatusConflict, "SLOT_TAKEN"},
		{service.ErrInvalidState, http.StatusBadRequest, "INVALID_STATE"},
		{errors.New("db down"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tc := range cases {
		rec := call(t, func(c echo.Context) error { return respondError(c, tc.err) }, nil, http.MethodGet, "/", "")
		assert.Equal(t, tc.status, rec.Code, tc.code)
		assert.Equal(t, tc.code, errorCode(t, rec))
	}
}

func TestRegisterReturnsCreatedUserWithoutHash(t *testing.T) {
	acc := &stubAccounts{user: model.User{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: model.RolePatient, PasswordHash: "secret-hash"}}
	h := NewAuthHandler(acc, &stubSessions{})

	rec := call(t, h.Register, nil, http.MethodPost, "/auth/register", `{"name":"Alice","email":"Alice@Example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-hash")
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "PATIENT", user["role"])
	assert.Equal(t, "Alice@Example.com", acc.input.Email)
}

func TestLoginResponseShape(t *testing.T) {
	acc := &stubAccounts{
		user: model.User{ID: "u1", Email: "alice@example.com", Role: model.RolePatient},
		pair: service.TokenPair{AccessToken: "acc", RefreshToken: "ref", AccessExpiresAt: t0, RefreshExpiresAt: t0},
	}
	h := NewAuthHandler(acc, &stubSessions{})

	rec := call(t, h.Login, nil, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "acc", body["accessToken"])
	assert.Equal(t, "ref", body["refreshToken"])
	assert.Equal(t, "u1", body["user"].(map[string]interface{})["id"])

	acc.err = service.ErrInvalidCredentials
	rec = call(t, h.Login, nil, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))
}

func TestRefreshAndLogoutRequireToken(t *testing.T) {
	h := NewAuthHandler(&stubAccounts{}, &stubSessions{})
	for _, fn := range []echo.HandlerFunc{h.Refresh, h.Logout} {
		rec := call(t, fn, nil, http.MethodPost, "/auth/x", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION", errorCode(t, rec))
	}
}

func TestRefreshRotates(t *testing.T) {
	sess := &stubSessions{pair: service.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	h := NewAuthHandler(&stubAccounts{}, sess)

	rec := call(t, h.Refresh, nil, http.MethodPost, "/auth/refresh", `{"refreshToken":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r2", decode(t, rec)["refreshToken"])

	sess.err = service.ErrInvalidRefreshToken
	rec = call(t, h.Refresh, nil, http.MethodPost, "/auth/refresh", `{"refreshToken":"r1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutIsSuccessful(t *testing.T) {
	sess := &stubSessions{}
	h := NewAuthHandler(&stubAccounts{}, sess)

	rec := call(t, h.Logout, nil, http.MethodPost, "/auth/logout", `{"refreshToken":" r1 "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
	assert.Equal(t, []string{"r1"}, sess.revoked)

	rec = call(t, h.LogoutAll, &patient, http.MethodPost, "/auth/logout-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["revoked"])
}

func TestUpdateMeTrimsFields(t *testing.T) {
	acc := &stubAccounts{user: model.User{ID: "pat-1"}}
	h := NewUserHandler(acc)

	rec := call(t, h.UpdateMe, &patient, http.MethodPatch, "/users/me", `{"name":"  Bob  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, acc.patch.Name)
	assert.Equal(t, "Bob", *acc.patch.Name)
	assert.Nil(t, acc.patch.Email)
}

func TestListUsersMeta(t *testing.T) {
	h := NewUserHandler(&stubAccounts{user: model.User{ID: "u1"}})

	rec := call(t, h.List, &admin, http.MethodGet, "/users?page=2&limit=500", "")
	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode(t, rec)["meta"].(map[string]interface{})
	assert.EqualValues(t, 2, meta["page"])
	assert.EqualValues(t, 100, meta["limit"])
	assert.EqualValues(t, 41, meta["total"])

	rec = call(t, h.List, &admin, http.MethodGet, "/users?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAppointment(t *testing.T) {
	led := &stubLedger{appt: model.Appointment{ID: "a1", DoctorID: "doc-1", PatientID: "pat-1", Start: t0, End: t0.Add(30 * time.Minute), Status: model.StatusBooked}}
	h := NewAppointmentHandler(led)

	rec := call(t, h.Create, &patient, http.MethodPost, "/appointments",
		`{"doctorId":"doc-1","start":"2026-03-02T10:00:00Z","end":"2026-03-02T10:30:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "BOOKED", decode(t, rec)["status"])
	assert.True(t, led.in.Start.Equal(t0))

	rec = call(t, h.Create, &patient, http.MethodPost, "/appointments", `{"doctorId":"doc-1","start":"tomorrow","end":"2026-03-02T10:30:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	led.err = service.ErrSlotTaken
	rec = call(t, h.Create, &patient, http.MethodPost, "/appointments",
		`{"doctorId":"doc-1","start":"2026-03-02T10:00:00Z","end":"2026-03-02T10:30:00Z"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLOT_TAKEN", errorCode(t, rec))
}

func TestListAppointmentsFilters(t *testing.T) {
	led := &stubLedger{appt: model.Appointment{ID: "a1", Status: model.StatusBooked}}
	h := NewAppointmentHandler(led)

	rec := call(t, h.List, &patient, http.MethodGet, "/appointments?status=cancelled&doctorId=doc-1&from=2026-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("X-Total-Count"))
	assert.Equal(t, model.StatusCancelled, led.query.Status)
	assert.Equal(t, "doc-1", led.query.DoctorID)
	assert.False(t, led.query.From.IsZero())
	assert.True(t, led.query.To.IsZero())

	var arr []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arr))
	assert.Len(t, arr, 1)

	rec = call(t, h.List, &patient, http.MethodGet, "/appointments?status=PENDING", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelInvalidState(t *testing.T) {
	h := NewAppointmentHandler(&stubLedger{err: service.ErrInvalidState})
	rec := call(t, withParam(h.Cancel, "id", "a1"), &patient, http.MethodPatch, "/appointments/a1/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, rec))
}

func TestDoctorSlots(t *testing.T) {
	slots := stubSlots{slots: []service.Slot{
		{Start: t0, End: t0.Add(30 * time.Minute), Available: true},
		{Start: t0.Add(30 * time.Minute), End: t0.Add(time.Hour), Available: false},
	}}
	docs := &stubDoctors{doctor: model.Doctor{ID: "doc-1", Active: true}}
	h := NewDoctorHandler(docs, slots)

	rec := call(t, withParam(h.Slots, "id", "doc-1"), nil, http.MethodGet, "/doctors/doc-1/slots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, withParam(h.Slots, "id", "doc-1"), nil, http.MethodGet, "/doctors/doc-1/slots?date=2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []slotResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.True(t, out[0].Available)
	assert.False(t, out[1].Available)

	docs.err = service.ErrDoctorNotFound
	rec = call(t, withParam(h.Slots, "id", "nope"), nil, http.MethodGet, "/doctors/nope/slots?date=2026-03-02", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReady(t *testing.T) {
	rec := call(t, Ready(stubPinger{}), nil, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, Ready(stubPinger{err: errors.New("refused")}), nil, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
