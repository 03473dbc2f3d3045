// Package handlers is the HTTP surface of the scheduling service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/schedule"
)

type Appointments interface {
	Create(ctx context.Context, actor booking.Actor, req booking.CreateRequest) (*model.Appointment, bool, error)
	Get(ctx context.Context, actor booking.Actor, id string) (*model.Appointment, error)
	List(ctx context.Context, actor booking.Actor, f booking.ListFilter) ([]*model.Appointment, error)
	Update(ctx context.Context, actor booking.Actor, id string, patch booking.UpdatePatch) (*model.Appointment, error)
	Confirm(ctx context.Context, actor booking.Actor, id string) (*model.Appointment, error)
	Cancel(ctx context.Context, actor booking.Actor, id string) (*model.Appointment, error)
	MarkArrived(ctx context.Context, actor booking.Actor, id string) (*model.Appointment, error)
	PendingCount(ctx context.Context, actor booking.Actor) (int, error)
}

type Schedules interface {
	GetDaySchedule(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error)
	MarkAvailable(ctx context.Context, doctorID string, date time.Time, start, end string) (*model.Slot, error)
	Block(ctx context.Context, doctorID string, date time.Time, start, end, reason string) (*model.Slot, error)
	Unblock(ctx context.Context, doctorID string, date time.Time, start string) (*model.Slot, error)
	BlockDay(ctx context.Context, doctorID string, date time.Time, reason string) (*model.DailySchedule, error)
	UpdateShifts(ctx context.Context, doctorID string, date time.Time, shifts []model.Shift, breaks []model.Break) (*model.DailySchedule, error)
	CheckConflicts(ctx context.Context, doctorID string, date time.Time, start string, duration int, excludeAppointmentID string) (conflict.Result, error)
	MonthlyOverview(ctx context.Context, doctorID string, year int, month time.Month) ([]schedule.DayOverview, error)
	BlockedDays(ctx context.Context, doctorID string, from, to time.Time) ([]time.Time, error)
}

type Settings interface {
	Get(ctx context.Context, doctorID string) (*model.DoctorSettings, error)
	Update(ctx context.Context, doctorID string, p availability.SettingsPatch) (*model.DoctorSettings, error)
}

type Templates interface {
	Create(ctx context.Context, doctorID string, in availability.TemplateInput) (*model.AvailabilityTemplate, error)
	Update(ctx context.Context, doctorID, id string, in availability.TemplateInput) (*model.AvailabilityTemplate, error)
	Get(ctx context.Context, doctorID, id string) (*model.AvailabilityTemplate, error)
	List(ctx context.Context, doctorID string) ([]*model.AvailabilityTemplate, error)
	Delete(ctx context.Context, doctorID, id string) error
}

type Doctors interface {
	FindDoctors(ctx context.Context) ([]*model.User, error)
}

type Handler struct {
	appts     Appointments
	schedules Schedules
	settings  Settings
	templates Templates
	doctors   Doctors
	logger    *slog.Logger
}

func New(appts Appointments, schedules Schedules, settings Settings, templates Templates, doctors Doctors, logger *slog.Logger) *Handler {
	return &Handler{
		appts:     appts,
		schedules: schedules,
		settings:  settings,
		templates: templates,
		doctors:   doctors,
		logger:    logger,
	}
}

const (
	rolePatient      = string(model.RolePatient)
	roleDoctor       = string(model.RoleDoctor)
	roleReceptionist = string(model.RoleReceptionist)
	roleAdmin        = string(model.RoleAdmin)
)

// Mount registers the API under /api/v1. authn must put an auth.Principal
// in the request context.
func (h *Handler) Mount(r chi.Router, authn httpx.Middleware) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn)

		r.Get("/doctors", h.listDoctors)

		r.Route("/doctors/schedule", func(r chi.Router) {
			r.Get("/overview", h.monthlyOverview)
			r.Get("/blocked-days", h.blockedDays)
			r.Get("/{date}", h.getDaySchedule)
			r.Get("/{date}/conflicts", h.checkConflicts)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(h.logger, roleDoctor, roleAdmin))
				r.Post("/available", h.markAvailable)
				r.Post("/block", h.block)
				r.Post("/unblock", h.unblock)
				r.Post("/{date}/block-day", h.blockDay)
				r.Put("/{date}/shifts", h.updateShifts)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRoles(h.logger, roleDoctor, roleAdmin))
			r.Get("/doctors/settings", h.getSettings)
			r.Put("/doctors/settings", h.updateSettings)
			r.Get("/doctors/templates", h.listTemplates)
			r.Post("/doctors/templates", h.createTemplate)
			r.Get("/doctors/templates/{id}", h.getTemplate)
			r.Put("/doctors/templates/{id}", h.updateTemplate)
			r.Delete("/doctors/templates/{id}", h.deleteTemplate)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/pending-count", h.pendingCount)
			r.Get("/{id}", h.getAppointment)
			r.Patch("/{id}", h.updateAppointment)
			r.Patch("/{id}/confirm", h.confirmAppointment)
			r.Patch("/{id}/cancel", h.cancelAppointment)
			r.Patch("/{id}/arrived", h.markArrived)
		})
	})
}

func actorFrom(r *http.Request) (booking.Actor, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return booking.Actor{}, apperr.Unauthorized("authentication required")
	}
	return booking.Actor{ID: p.UserID, Role: model.Role(p.Role)}, nil
}

// doctorFor picks the doctor a schedule request is about: doctors always
// act on their own calendar, everyone else names one with doctor_id.
func doctorFor(r *http.Request, actor booking.Actor) (string, error) {
	if actor.Role == model.RoleDoctor {
		return actor.ID, nil
	}
	id := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	if id == "" {
		return "", apperr.Validation("doctor_id is required", map[string]string{"doctor_id": "required"})
	}
	return id, nil
}

func dateParam(r *http.Request, name string) (time.Time, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		raw = r.URL.Query().Get(name)
	}
	d, err := daytime.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid "+name, map[string]string{name: "must be YYYY-MM-DD"})
	}
	return d, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("invalid "+name, map[string]string{name: "must be an integer"})
	}
	return n, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, h.logger, err)
}

func (h *Handler) listDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.doctors.FindDoctors(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]doctorJSON, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, toDoctorJSON(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"doctors": out})
}
