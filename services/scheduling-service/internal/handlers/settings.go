package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

type settingsRequest struct {
	AvailableDays       []string `json:"available_days"`
	StartTime           *string  `json:"start_time"`
	EndTime             *string  `json:"end_time"`
	AppointmentDuration *int     `json:"appointment_duration"`
	BufferMinutes       *int     `json:"buffer_minutes"`
	ConsultationFee     *float64 `json:"consultation_fee"`
	ValidFrom           *string  `json:"valid_from"`
	ValidUntil          *string  `json:"valid_until"`
	DefaultTemplateID   *string  `json:"default_template_id"`
}

type templateRequest struct {
	Name          string                `json:"name"`
	WorkingDays   []int                 `json:"working_days"`
	StartTime     string                `json:"start_time"`
	EndTime       string                `json:"end_time"`
	SlotDuration  int                   `json:"slot_duration"`
	BufferMinutes int                   `json:"buffer_minutes"`
	Breaks        []model.TemplateBreak `json:"breaks"`
	ValidFrom     *string               `json:"valid_from"`
	ValidUntil    *string               `json:"valid_until"`
	IsDefault     bool                  `json:"is_default"`
}

func (req templateRequest) input() (availability.TemplateInput, error) {
	from, err := parseOptDate(req.ValidFrom)
	if err != nil {
		return availability.TemplateInput{}, apperr.Validation("invalid valid_from", map[string]string{"valid_from": "must be YYYY-MM-DD"})
	}
	until, err := parseOptDate(req.ValidUntil)
	if err != nil {
		return availability.TemplateInput{}, apperr.Validation("invalid valid_until", map[string]string{"valid_until": "must be YYYY-MM-DD"})
	}
	return availability.TemplateInput{
		Name:          req.Name,
		WorkingDays:   req.WorkingDays,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		SlotDuration:  req.SlotDuration,
		BufferMinutes: req.BufferMinutes,
		Breaks:        req.Breaks,
		ValidFrom:     from,
		ValidUntil:    until,
		IsDefault:     req.IsDefault,
	}, nil
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doctorID, err := doctorFor(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.settings.Get(r.Context(), doctorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSettingsJSON(st))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doctorID, err := doctorFor(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req settingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	from, err := parseOptDate(req.ValidFrom)
	if err != nil {
		h.fail(w, r, apperr.Validation("invalid valid_from", map[string]string{"valid_from": "must be YYYY-MM-DD"}))
		return
	}
	until, err := parseOptDate(req.ValidUntil)
	if err != nil {
		h.fail(w, r, apperr.Validation("invalid valid_until", map[string]string{"valid_until": "must be YYYY-MM-DD"}))
		return
	}
	st, err := h.settings.Update(r.Context(), doctorID, availability.SettingsPatch{
		AvailableDays:       req.AvailableDays,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		AppointmentDuration: req.AppointmentDuration,
		BufferMinutes:       req.BufferMinutes,
		ConsultationFee:     req.ConsultationFee,
		ValidFrom:           from,
		ValidUntil:          until,
		DefaultTemplateID:   req.DefaultTemplateID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSettingsJSON(st))
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doctorID, err := doctorFor(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.templates.List(r.Context(), doctorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]templateJSON, 0, len(list))
	for _, t := range list {
		out = append(out, toTemplateJSON(t))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doctorID, err := doctorFor(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.templates.Get(r.Context(), doctorID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTemplateJSON(t))
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	h.saveTemplate(w, r, "")
}

func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	h.saveTemplate(w, r, chi.URLParam(r, "id"))
}

// saveTemplate creates when id is empty and replaces otherwise.
func (h *Handler) saveTemplate(w http.ResponseWriter, r *http.Request, id string) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doctorID, err := doctorFor(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req templateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var (
		t      *model.AvailabilityTemplate
		status = http.StatusOK
	)
	if id == "" {
		t, err = h.templates.Create(r.Context(), doctorID, in)
		status = http.StatusCreated
	} else {
		t, err = h.templates.Update(r.Context(), doctorID, id, in)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, status, toTemplateJSON(t))
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doctorID, err := doctorFor(r, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.templates.Delete(r.Context(), doctorID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
