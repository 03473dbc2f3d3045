package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

const idempotencyHeader = "Idempotency-Key"

type createAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Duration  int    `json:"duration"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

type updateAppointmentRequest struct {
	Date           *string `json:"date"`
	Time           *string `json:"time"`
	Duration       *int    `json:"duration"`
	Type           *string `json:"type"`
	Notes          *string `json:"notes"`
	Status         *string `json:"status"`
	PaymentStatus  *string `json:"payment_status"`
	ReceptionistID *string `json:"receptionist_id"`
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > 255 {
		h.fail(w, r, apperr.Validation("idempotency key too long", map[string]string{"Idempotency-Key": "at most 255 characters"}))
		return
	}
	appt, replayed, err := h.appts.Create(r.Context(), actor, booking.CreateRequest{
		DoctorID:       req.DoctorID,
		PatientID:      req.PatientID,
		Date:           req.Date,
		Time:           req.Time,
		Duration:       req.Duration,
		Type:           req.Type,
		Notes:          req.Notes,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, toAppointmentJSON(appt))
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	f := booking.ListFilter{
		DoctorID:  strings.TrimSpace(q.Get("doctor_id")),
		PatientID: strings.TrimSpace(q.Get("patient_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st := model.AppointmentStatus(raw)
		if !st.Valid() {
			h.fail(w, r, apperr.Validation("invalid status", map[string]string{"status": "unknown status"}))
			return
		}
		f.Status = st
	}
	if q.Get("from") != "" {
		d, err := dateParam(r, "from")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		f.From = &d
	}
	if q.Get("to") != "" {
		d, err := dateParam(r, "to")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		f.To = &d
	}
	if f.Limit, err = intQuery(r, "limit", 0); err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.appts.List(r.Context(), actor, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]appointmentJSON, 0, len(list))
	for _, a := range list {
		out = append(out, toAppointmentJSON(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	h.appointmentAction(w, r, h.appts.Get)
}

func (h *Handler) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	h.appointmentAction(w, r, h.appts.Confirm)
}

func (h *Handler) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	h.appointmentAction(w, r, h.appts.Cancel)
}

func (h *Handler) markArrived(w http.ResponseWriter, r *http.Request) {
	h.appointmentAction(w, r, h.appts.MarkArrived)
}

func (h *Handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	appt, err := h.appts.Update(r.Context(), actor, chi.URLParam(r, "id"), booking.UpdatePatch{
		Date:           req.Date,
		Time:           req.Time,
		Duration:       req.Duration,
		Type:           req.Type,
		Notes:          req.Notes,
		Status:         req.Status,
		PaymentStatus:  req.PaymentStatus,
		ReceptionistID: req.ReceptionistID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentJSON(appt))
}

func (h *Handler) pendingCount(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.appts.PendingCount(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

type appointmentFunc func(ctx context.Context, actor booking.Actor, id string) (*model.Appointment, error)

func (h *Handler) appointmentAction(w http.ResponseWriter, r *http.Request, fn appointmentFunc) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	appt, err := fn(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentJSON(appt))
}
