package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/schedule"
)

const (
	testSecret = "test-secret"
	testIssuer = "clinicbook-test"
)

var day = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

type stubAppointments struct {
	createReq   booking.CreateRequest
	createActor booking.Actor
	replayed    bool
	err         error
	patch       booking.UpdatePatch
	filter      booking.ListFilter
	lastID      string
	pending     int
}

func (s *stubAppointments) appt(id string) *model.Appointment {
	return &model.Appointment{
		ID:            id,
		DoctorID:      "doc-1",
		PatientID:     "pat-1",
		Date:          day,
		Time:          "14:00",
		Duration:      30,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
	}
}

func (s *stubAppointments) Create(_ context.Context, actor booking.Actor, req booking.CreateRequest) (*model.Appointment, bool, error) {
	s.createReq, s.createActor = req, actor
	if s.err != nil {
		return nil, false, s.err
	}
	return s.appt("appt-1"), s.replayed, nil
}

func (s *stubAppointments) Get(_ context.Context, _ booking.Actor, id string) (*model.Appointment, error) {
	s.lastID = id
	if s.err != nil {
		return nil, s.err
	}
	return s.appt(id), nil
}

func (s *stubAppointments) List(_ context.Context, _ booking.Actor, f booking.ListFilter) ([]*model.Appointment, error) {
	s.filter = f
	return []*model.Appointment{s.appt("appt-1"), s.appt("appt-2")}, nil
}

func (s *stubAppointments) Update(_ context.Context, _ booking.Actor, id string, patch booking.UpdatePatch) (*model.Appointment, error) {
	s.lastID, s.patch = id, patch
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt(id)
	if patch.Time != nil {
		a.Time = *patch.Time
	}
	return a, nil
}

func (s *stubAppointments) Confirm(_ context.Context, _ booking.Actor, id string) (*model.Appointment, error) {
	s.lastID = id
	a := s.appt(id)
	a.Status = model.StatusConfirmed
	return a, nil
}

func (s *stubAppointments) Cancel(_ context.Context, _ booking.Actor, id string) (*model.Appointment, error) {
	s.lastID = id
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt(id)
	a.Status = model.StatusCancelled
	return a, nil
}

func (s *stubAppointments) MarkArrived(_ context.Context, _ booking.Actor, id string) (*model.Appointment, error) {
	s.lastID = id
	a := s.appt(id)
	a.Arrived = true
	a.Status = model.StatusWaiting
	return a, nil
}

func (s *stubAppointments) PendingCount(context.Context, booking.Actor) (int, error) {
	return s.pending, nil
}

type stubSchedules struct {
	doctorID string
	date     time.Time
	start    string
	end      string
	reason   string
}

func (s *stubSchedules) sched(doctorID string, date time.Time) *model.DailySchedule {
	return &model.DailySchedule{
		DoctorID: doctorID,
		Date:     date,
		Slots:    []model.Slot{{Start: "09:00", End: "09:30", Status: model.SlotAvailable}},
	}
}

func (s *stubSchedules) GetDaySchedule(_ context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	s.doctorID, s.date = doctorID, date
	return s.sched(doctorID, date), nil
}

func (s *stubSchedules) MarkAvailable(_ context.Context, doctorID string, date time.Time, start, end string) (*model.Slot, error) {
	s.doctorID, s.date, s.start, s.end = doctorID, date, start, end
	return &model.Slot{Start: start, End: end, Status: model.SlotAvailable}, nil
}

func (s *stubSchedules) Block(_ context.Context, doctorID string, date time.Time, start, end, reason string) (*model.Slot, error) {
	s.doctorID, s.date, s.start, s.end, s.reason = doctorID, date, start, end, reason
	return &model.Slot{Start: start, End: end, Status: model.SlotBlocked, BlockedReason: reason}, nil
}

func (s *stubSchedules) Unblock(_ context.Context, doctorID string, date time.Time, start string) (*model.Slot, error) {
	s.doctorID, s.date, s.start = doctorID, date, start
	return &model.Slot{Start: start, End: "09:30", Status: model.SlotAvailable}, nil
}

func (s *stubSchedules) BlockDay(_ context.Context, doctorID string, date time.Time, reason string) (*model.DailySchedule, error) {
	s.doctorID, s.date, s.reason = doctorID, date, reason
	return s.sched(doctorID, date), nil
}

func (s *stubSchedules) UpdateShifts(_ context.Context, doctorID string, date time.Time, shifts []model.Shift, breaks []model.Break) (*model.DailySchedule, error) {
	s.doctorID, s.date = doctorID, date
	out := s.sched(doctorID, date)
	out.Shifts, out.Breaks = shifts, breaks
	return out, nil
}

func (s *stubSchedules) CheckConflicts(_ context.Context, doctorID string, date time.Time, start string, _ int, _ string) (conflict.Result, error) {
	s.doctorID, s.date, s.start = doctorID, date, start
	return conflict.Result{
		HasConflict: true,
		Conflicts:   []conflict.Conflict{{Kind: conflict.KindBooked, Start: start, Message: "This time slot is already booked"}},
	}, nil
}

func (s *stubSchedules) MonthlyOverview(_ context.Context, doctorID string, year int, month time.Month) ([]schedule.DayOverview, error) {
	s.doctorID = doctorID
	return []schedule.DayOverview{{Date: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), HasSchedule: true, Total: 16, Available: 15, Booked: 1}}, nil
}

func (s *stubSchedules) BlockedDays(_ context.Context, doctorID string, from, _ time.Time) ([]time.Time, error) {
	s.doctorID = doctorID
	return []time.Time{from}, nil
}

type stubSettings struct {
	patch availability.SettingsPatch
}

func (s *stubSettings) Get(_ context.Context, doctorID string) (*model.DoctorSettings, error) {
	return model.DefaultSettings(doctorID), nil
}

func (s *stubSettings) Update(_ context.Context, doctorID string, p availability.SettingsPatch) (*model.DoctorSettings, error) {
	s.patch = p
	st := model.DefaultSettings(doctorID)
	st.AvailableDays = p.AvailableDays
	return st, nil
}

type stubTemplates struct {
	in      availability.TemplateInput
	deleted string
}

func (s *stubTemplates) Create(_ context.Context, doctorID string, in availability.TemplateInput) (*model.AvailabilityTemplate, error) {
	s.in = in
	return &model.AvailabilityTemplate{ID: "tpl-1", DoctorID: doctorID, Name: in.Name, WorkingDays: in.WorkingDays, ValidFrom: in.ValidFrom}, nil
}

func (s *stubTemplates) Update(_ context.Context, doctorID, id string, in availability.TemplateInput) (*model.AvailabilityTemplate, error) {
	s.in = in
	return &model.AvailabilityTemplate{ID: id, DoctorID: doctorID, Name: in.Name}, nil
}

func (s *stubTemplates) Get(_ context.Context, _ string, id string) (*model.AvailabilityTemplate, error) {
	return nil, apperr.NotFound("availability template", id)
}

func (s *stubTemplates) List(context.Context, string) ([]*model.AvailabilityTemplate, error) {
	return nil, nil
}

func (s *stubTemplates) Delete(_ context.Context, _ string, id string) error {
	s.deleted = id
	return nil
}

type stubDoctors struct{}

func (stubDoctors) FindDoctors(context.Context) ([]*model.User, error) {
	return []*model.User{{ID: "doc-1", Name: "Dr. Smith", Role: model.RoleDoctor, IsActive: true, AvailableDays: []string{"Monday"}}}, nil
}

type testAPI struct {
	srv       http.Handler
	appts     *stubAppointments
	schedules *stubSchedules
	settings  *stubSettings
	templates *stubTemplates
}

func newTestAPI() *testAPI {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &testAPI{
		appts:     &stubAppointments{},
		schedules: &stubSchedules{},
		settings:  &stubSettings{},
		templates: &stubTemplates{},
	}
	h := New(api.appts, api.schedules, api.settings, api.templates, stubDoctors{}, logger)
	r := chi.NewRouter()
	h.Mount(r, auth.Middleware(auth.NewVerifier(testSecret, testIssuer), logger))
	api.srv = r
	return api
}

func (a *testAPI) do(t *testing.T, method, path, userID, role, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if userID != "" {
		token, err := auth.Sign(auth.Principal{UserID: userID, Role: role}, testSecret, testIssuer, time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rw := httptest.NewRecorder()
	a.srv.ServeHTTP(rw, req)
	return rw
}

func decode[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rw.Body.String(), err)
	}
	return out
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

func TestRequiresBearerToken(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/appointments/pending-count", "", "", "")
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}
}

func TestCreateAppointment(t *testing.T) {
	api := newTestAPI()
	body := `{"doctor_id":"doc-1","patient_id":"pat-1","date":"2025-03-03","time":"14:00","duration":30}`
	rw := api.do(t, http.MethodPost, "/api/v1/appointments", "rec-1", "receptionist", body, "Idempotency-Key", "k-1")
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	got := decode[appointmentJSON](t, rw)
	if got.ID != "appt-1" || got.Date != "2025-03-03" || got.Time != "14:00" || got.Status != "pending" {
		t.Fatalf("unexpected body %+v", got)
	}
	if api.appts.createReq.IdempotencyKey != "k-1" || api.appts.createReq.DoctorID != "doc-1" {
		t.Fatalf("request not forwarded: %+v", api.appts.createReq)
	}
	if api.appts.createActor.ID != "rec-1" || api.appts.createActor.Role != model.RoleReceptionist {
		t.Fatalf("actor not taken from token: %+v", api.appts.createActor)
	}
}

func TestCreateAppointmentReplay(t *testing.T) {
	api := newTestAPI()
	api.appts.replayed = true
	rw := api.do(t, http.MethodPost, "/api/v1/appointments", "pat-1", "patient", `{"doctor_id":"doc-1","date":"2025-03-03","time":"14:00"}`, "Idempotency-Key", "k-1")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rw.Code)
	}
	if rw.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
}

func TestCreateAppointmentErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		body   string
		status int
		code   string
	}{
		{"unknown field", nil, `{"doctor":"x"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"rule", apperr.Rule("Doctor is not available on Sunday"), `{}`, http.StatusBadRequest, "BUSINESS_RULE"},
		{"conflict", apperr.Conflict("This time slot is already booked"), `{}`, http.StatusConflict, "SLOT_CONFLICT"},
		{"forbidden", apperr.Forbidden("Patients can only book for themselves"), `{}`, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI()
			api.appts.err = tc.err
			rw := api.do(t, http.MethodPost, "/api/v1/appointments", "pat-1", "patient", tc.body)
			if rw.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rw.Code, rw.Body.String())
			}
			if got := decode[errorResponse](t, rw); got.Code != tc.code {
				t.Fatalf("expected code %s, got %+v", tc.code, got)
			}
		})
	}
}

func TestUpdateAppointmentPatch(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodPatch, "/api/v1/appointments/appt-9", "rec-1", "receptionist", `{"time":"15:00","status":"confirmed"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	p := api.appts.patch
	if api.appts.lastID != "appt-9" || p.Time == nil || *p.Time != "15:00" || p.Status == nil || *p.Status != "confirmed" {
		t.Fatalf("patch not forwarded: id=%s %+v", api.appts.lastID, p)
	}
	if p.Date != nil || p.Duration != nil {
		t.Fatalf("absent fields must stay nil: %+v", p)
	}
}

func TestAppointmentActions(t *testing.T) {
	api := newTestAPI()
	cases := []struct {
		path   string
		status string
	}{
		{"/api/v1/appointments/a-1/confirm", "confirmed"},
		{"/api/v1/appointments/a-1/cancel", "cancelled"},
		{"/api/v1/appointments/a-1/arrived", "waiting"},
	}
	for _, tc := range cases {
		rw := api.do(t, http.MethodPatch, tc.path, "rec-1", "receptionist", "")
		if rw.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, rw.Code)
		}
		if got := decode[appointmentJSON](t, rw); got.Status != tc.status || got.ID != "a-1" {
			t.Fatalf("%s: unexpected body %+v", tc.path, got)
		}
	}
}

func TestCancelNotFound(t *testing.T) {
	api := newTestAPI()
	api.appts.err = apperr.NotFound("appointment", "missing")
	rw := api.do(t, http.MethodPatch, "/api/v1/appointments/missing/cancel", "pat-1", "patient", "")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestListAppointmentsFilter(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/appointments?doctor_id=doc-1&status=pending&from=2025-03-01&limit=10", "rec-1", "receptionist", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	f := api.appts.filter
	if f.DoctorID != "doc-1" || f.Status != model.StatusPending || f.Limit != 10 || f.From == nil || !f.From.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) || f.To != nil {
		t.Fatalf("unexpected filter %+v", f)
	}
	body := decode[struct {
		Appointments []appointmentJSON `json:"appointments"`
	}](t, rw)
	if len(body.Appointments) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(body.Appointments))
	}

	rw = api.do(t, http.MethodGet, "/api/v1/appointments?status=bogus", "rec-1", "receptionist", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rw.Code)
	}
}

func TestPendingCount(t *testing.T) {
	api := newTestAPI()
	api.appts.pending = 4
	rw := api.do(t, http.MethodGet, "/api/v1/appointments/pending-count", "doc-1", "doctor", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if got := decode[map[string]int](t, rw); got["count"] != 4 {
		t.Fatalf("expected count 4, got %v", got)
	}
}

func TestDayScheduleDoctorResolution(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/doctors/schedule/2025-03-03?doctor_id=other", "doc-1", "doctor", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if api.schedules.doctorID != "doc-1" || !api.schedules.date.Equal(day) {
		t.Fatalf("doctor must read own schedule, got %s %s", api.schedules.doctorID, api.schedules.date)
	}
	got := decode[scheduleJSON](t, rw)
	if got.Date != "2025-03-03" || len(got.Slots) != 1 || got.Shifts == nil {
		t.Fatalf("unexpected body %+v", got)
	}

	rw = api.do(t, http.MethodGet, "/api/v1/doctors/schedule/2025-03-03", "rec-1", "receptionist", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without doctor_id, got %d", rw.Code)
	}
	rw = api.do(t, http.MethodGet, "/api/v1/doctors/schedule/2025-03-03?doctor_id=doc-2", "rec-1", "receptionist", "")
	if rw.Code != http.StatusOK || api.schedules.doctorID != "doc-2" {
		t.Fatalf("expected doc-2 schedule, got %d %s", rw.Code, api.schedules.doctorID)
	}

	rw = api.do(t, http.MethodGet, "/api/v1/doctors/schedule/03-03-2025", "doc-1", "doctor", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rw.Code)
	}
}

func TestSlotMutationsRoleGated(t *testing.T) {
	api := newTestAPI()
	body := `{"date":"2025-03-03","start_time":"12:00","end_time":"12:30","reason":"lunch meeting"}`

	rw := api.do(t, http.MethodPost, "/api/v1/doctors/schedule/block", "pat-1", "patient", body)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for patient, got %d", rw.Code)
	}
	rw = api.do(t, http.MethodPost, "/api/v1/doctors/schedule/block", "rec-1", "receptionist", body)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for receptionist, got %d", rw.Code)
	}

	rw = api.do(t, http.MethodPost, "/api/v1/doctors/schedule/block", "doc-1", "doctor", body)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	if api.schedules.start != "12:00" || api.schedules.end != "12:30" || api.schedules.reason != "lunch meeting" {
		t.Fatalf("block args not forwarded: %+v", api.schedules)
	}
	got := decode[slotResponse](t, rw)
	if got.Slot.Status != model.SlotBlocked || got.Date != "2025-03-03" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestSlotMutationValidation(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodPost, "/api/v1/doctors/schedule/available", "doc-1", "doctor", `{"date":"2025-3-3","start_time":"09:00"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	got := decode[errorResponse](t, rw)
	if got.Details["date"] == "" || got.Details["end_time"] == "" {
		t.Fatalf("expected date and end_time details, got %+v", got)
	}

	rw = api.do(t, http.MethodPost, "/api/v1/doctors/schedule/unblock", "doc-1", "doctor", `{"date":"2025-03-03","start_time":"09:00"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("unblock needs no end_time, got %d: %s", rw.Code, rw.Body.String())
	}
}

func TestBlockDayAndShifts(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodPost, "/api/v1/doctors/schedule/2025-03-03/block-day", "doc-1", "doctor", `{"reason":"conference"}`)
	if rw.Code != http.StatusOK || api.schedules.reason != "conference" {
		t.Fatalf("block-day: %d reason=%q", rw.Code, api.schedules.reason)
	}
	rw = api.do(t, http.MethodPost, "/api/v1/doctors/schedule/2025-03-03/block-day", "doc-1", "doctor", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("block-day without body: %d", rw.Code)
	}

	shifts := `{"shifts":[{"type":"morning","start":"09:00","end":"12:00","slot_duration":30,"enabled":true}],"breaks":[]}`
	rw = api.do(t, http.MethodPut, "/api/v1/doctors/schedule/2025-03-03/shifts", "doc-1", "doctor", shifts)
	if rw.Code != http.StatusOK {
		t.Fatalf("shifts: %d %s", rw.Code, rw.Body.String())
	}
	got := decode[scheduleJSON](t, rw)
	if len(got.Shifts) != 1 || got.Shifts[0].Type != model.ShiftMorning {
		t.Fatalf("unexpected shifts %+v", got.Shifts)
	}
}

func TestConflictCheck(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/doctors/schedule/2025-03-03/conflicts?start_time=14:00&duration=30", "doc-1", "doctor", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	got := decode[conflict.Result](t, rw)
	if !got.HasConflict || got.First() != "This time slot is already booked" {
		t.Fatalf("unexpected result %+v", got)
	}

	rw = api.do(t, http.MethodGet, "/api/v1/doctors/schedule/2025-03-03/conflicts", "doc-1", "doctor", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without start_time, got %d", rw.Code)
	}
}

func TestMonthlyOverview(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/doctors/schedule/overview?year=2025&month=3", "doc-1", "doctor", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	got := decode[struct {
		Days []dayOverviewJSON `json:"days"`
	}](t, rw)
	if len(got.Days) != 1 || got.Days[0].Date != "2025-03-01" || got.Days[0].Booked != 1 {
		t.Fatalf("unexpected overview %+v", got)
	}

	rw = api.do(t, http.MethodGet, "/api/v1/doctors/schedule/overview?year=2025&month=13", "doc-1", "doctor", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for month 13, got %d", rw.Code)
	}
}

func TestBlockedDays(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/doctors/schedule/blocked-days?from=2025-03-01&to=2025-03-31", "doc-1", "doctor", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	got := decode[map[string][]string](t, rw)
	if len(got["blocked_days"]) != 1 || got["blocked_days"][0] != "2025-03-01" {
		t.Fatalf("unexpected body %v", got)
	}

	rw = api.do(t, http.MethodGet, "/api/v1/doctors/schedule/blocked-days?from=2025-03-31&to=2025-03-01", "doc-1", "doctor", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rw.Code)
	}
}

func TestSettings(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/doctors/settings", "doc-1", "doctor", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if got := decode[settingsJSON](t, rw); got.StartTime != "09:00" || got.AvailableDays == nil {
		t.Fatalf("unexpected settings %+v", got)
	}

	rw = api.do(t, http.MethodPut, "/api/v1/doctors/settings", "doc-1", "doctor", `{"available_days":["Monday","Tue"],"valid_from":"2025-03-01"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	p := api.settings.patch
	if len(p.AvailableDays) != 2 || p.ValidFrom == nil || p.StartTime != nil {
		t.Fatalf("unexpected patch %+v", p)
	}

	rw = api.do(t, http.MethodPut, "/api/v1/doctors/settings", "pat-1", "patient", `{}`)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for patient, got %d", rw.Code)
	}
}

func TestTemplates(t *testing.T) {
	api := newTestAPI()
	body := `{"name":"Weekdays","working_days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","slot_duration":30,"valid_from":"2025-03-01"}`
	rw := api.do(t, http.MethodPost, "/api/v1/doctors/templates", "doc-1", "doctor", body)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	got := decode[templateJSON](t, rw)
	if got.ID != "tpl-1" || got.ValidFrom == nil || *got.ValidFrom != "2025-03-01" || got.Breaks == nil {
		t.Fatalf("unexpected template %+v", got)
	}
	if len(api.templates.in.WorkingDays) != 5 {
		t.Fatalf("working days not forwarded: %+v", api.templates.in)
	}

	rw = api.do(t, http.MethodPost, "/api/v1/doctors/templates", "doc-1", "doctor", `{"name":"x","valid_until":"soon"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad valid_until, got %d", rw.Code)
	}

	rw = api.do(t, http.MethodGet, "/api/v1/doctors/templates/nope", "doc-1", "doctor", "")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}

	rw = api.do(t, http.MethodDelete, "/api/v1/doctors/templates/tpl-1", "doc-1", "doctor", "")
	if rw.Code != http.StatusNoContent || api.templates.deleted != "tpl-1" {
		t.Fatalf("delete: %d %q", rw.Code, api.templates.deleted)
	}
}

func TestListDoctors(t *testing.T) {
	api := newTestAPI()
	rw := api.do(t, http.MethodGet, "/api/v1/doctors", "pat-1", "patient", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	got := decode[struct {
		Doctors []doctorJSON `json:"doctors"`
	}](t, rw)
	if len(got.Doctors) != 1 || got.Doctors[0].Name != "Dr. Smith" {
		t.Fatalf("unexpected doctors %+v", got)
	}
}
