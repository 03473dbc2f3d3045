package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

type slotRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

type slotResponse struct {
	Date string     `json:"date"`
	Slot model.Slot `json:"slot"`
}

type blockDayRequest struct {
	Reason string `json:"reason"`
}

type shiftsRequest struct {
	Shifts []model.Shift `json:"shifts"`
	Breaks []model.Break `json:"breaks"`
}

func (h *Handler) getDaySchedule(w http.ResponseWriter, r *http.Request) {
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
	date, err := dateParam(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sched, err := h.schedules.GetDaySchedule(r.Context(), doctorID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleJSON(sched))
}

// decodeSlot reads a slot mutation body. start_time is always required;
// end_time only when needEnd is set.
func decodeSlot(r *http.Request, needEnd bool) (slotRequest, time.Time, error) {
	var req slotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return req, time.Time{}, err
	}
	details := map[string]string{}
	date, err := daytime.ParseDate(req.Date)
	if err != nil {
		details["date"] = "must be YYYY-MM-DD"
	}
	if strings.TrimSpace(req.StartTime) == "" {
		details["start_time"] = "required"
	}
	if needEnd && strings.TrimSpace(req.EndTime) == "" {
		details["end_time"] = "required"
	}
	if len(details) > 0 {
		return req, time.Time{}, apperr.Validation("invalid slot request", details)
	}
	return req, date, nil
}

func (h *Handler) slotMutation(w http.ResponseWriter, r *http.Request, needEnd bool, apply func(doctorID string, date time.Time, req slotRequest) (*model.Slot, error)) {
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
	req, date, err := decodeSlot(r, needEnd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	slot, err := apply(doctorID, date, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotResponse{Date: daytime.FormatDate(date), Slot: *slot})
}

func (h *Handler) markAvailable(w http.ResponseWriter, r *http.Request) {
	h.slotMutation(w, r, true, func(doctorID string, date time.Time, req slotRequest) (*model.Slot, error) {
		return h.schedules.MarkAvailable(r.Context(), doctorID, date, req.StartTime, req.EndTime)
	})
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	h.slotMutation(w, r, true, func(doctorID string, date time.Time, req slotRequest) (*model.Slot, error) {
		return h.schedules.Block(r.Context(), doctorID, date, req.StartTime, req.EndTime, req.Reason)
	})
}

func (h *Handler) unblock(w http.ResponseWriter, r *http.Request) {
	h.slotMutation(w, r, false, func(doctorID string, date time.Time, req slotRequest) (*model.Slot, error) {
		return h.schedules.Unblock(r.Context(), doctorID, date, req.StartTime)
	})
}

func (h *Handler) blockDay(w http.ResponseWriter, r *http.Request) {
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
	date, err := dateParam(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req blockDayRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	sched, err := h.schedules.BlockDay(r.Context(), doctorID, date, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleJSON(sched))
}

func (h *Handler) updateShifts(w http.ResponseWriter, r *http.Request) {
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
	date, err := dateParam(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req shiftsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sched, err := h.schedules.UpdateShifts(r.Context(), doctorID, date, req.Shifts, req.Breaks)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleJSON(sched))
}

func (h *Handler) checkConflicts(w http.ResponseWriter, r *http.Request) {
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
	date, err := dateParam(r, "date")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	start := strings.TrimSpace(q.Get("start_time"))
	if start == "" {
		h.fail(w, r, apperr.Validation("start_time is required", map[string]string{"start_time": "required"}))
		return
	}
	duration, err := intQuery(r, "duration", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.schedules.CheckConflicts(r.Context(), doctorID, date, start, duration, q.Get("exclude_appointment_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) monthlyOverview(w http.ResponseWriter, r *http.Request) {
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
	year, err := intQuery(r, "year", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	month, err := intQuery(r, "month", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if year < 1970 || year > 9999 || month < 1 || month > 12 {
		h.fail(w, r, apperr.Validation("year and month are required", map[string]string{
			"year":  "1970-9999",
			"month": "1-12",
		}))
		return
	}
	days, err := h.schedules.MonthlyOverview(r.Context(), doctorID, year, time.Month(month))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]dayOverviewJSON, 0, len(days))
	for _, d := range days {
		out = append(out, toDayOverviewJSON(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "days": out})
}

func (h *Handler) blockedDays(w http.ResponseWriter, r *http.Request) {
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
	from, err := dateParam(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if to.Before(from) {
		h.fail(w, r, apperr.Validation("to must not be before from", map[string]string{"to": "must not be before from"}))
		return
	}
	days, err := h.schedules.BlockedDays(r.Context(), doctorID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, daytime.FormatDate(d))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"blocked_days": out})
}
