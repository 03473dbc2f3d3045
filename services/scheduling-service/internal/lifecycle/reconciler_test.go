package lifecycle

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

func TestReconcileDayRepairsSlots(t *testing.T) {
	repo := newMemRepo(
		appt("kept", "2025-03-04", "09:00", model.StatusConfirmed),
		appt("cancelled", "2025-03-04", "09:30", model.StatusCancelled),
		appt("unclaimed", "2025-03-04", "10:00", model.StatusPending),
		appt("missed", "2025-03-04", "11:00", model.StatusMissed),
	)
	slots := &memSlots{rows: map[string]*model.DailySchedule{
		"doc-1|2025-03-04": {DoctorID: "doc-1", Slots: []model.Slot{
			{Start: "09:00", End: "09:30", Status: model.SlotBooked, AppointmentID: "kept"},
			{Start: "09:30", End: "10:00", Status: model.SlotBooked, AppointmentID: "cancelled"},
			{Start: "10:00", End: "10:30", Status: model.SlotAvailable},
			{Start: "10:30", End: "11:00", Status: model.SlotBooked, AppointmentID: "deleted"},
			{Start: "11:00", End: "11:30", Status: model.SlotBooked, AppointmentID: "missed"},
		}},
	}}
	r := NewReconciler(repo, slots, noTx{}, clock, discard(), ReconcilerConfig{})

	d, _ := daytime.ParseDate("2025-03-04")
	rep, err := r.ReconcileDay(context.Background(), "doc-1", d)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rep.Claimed != 1 || rep.Released != 2 {
		t.Fatalf("unexpected repairs %+v", rep)
	}
	want := map[string]string{"09:00": "kept", "09:30": "", "10:00": "unclaimed", "10:30": "", "11:00": "missed"}
	sched := slots.rows["doc-1|2025-03-04"]
	for start, id := range want {
		s := sched.Slots[sched.SlotIndex(start)]
		if s.AppointmentID != id {
			t.Fatalf("%s: expected %q, got %+v", start, id, s)
		}
	}

	rep, err = r.ReconcileDay(context.Background(), "doc-1", d)
	if err != nil || rep.Claimed+rep.Released != 0 {
		t.Fatalf("second pass should be a no-op, got %+v %v", rep, err)
	}
}

func TestReconcileRecentCoversWindow(t *testing.T) {
	repo := newMemRepo(
		appt("old", "2025-02-20", "09:00", model.StatusConfirmed),
		appt("today", "2025-03-03", "15:00", model.StatusConfirmed),
		appt("next", "2025-03-05", "09:00", model.StatusConfirmed),
	)
	slots := &memSlots{rows: map[string]*model.DailySchedule{}}
	r := NewReconciler(repo, slots, noTx{}, clock, discard(), ReconcilerConfig{WindowDays: 3})

	rep, err := r.ReconcileRecent(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rep.Claimed != 2 {
		t.Fatalf("expected 2 claims, got %+v", rep)
	}
	if _, ok := slots.rows["doc-1|2025-02-20"]; ok {
		t.Fatalf("days before today are not reconciled")
	}
}
