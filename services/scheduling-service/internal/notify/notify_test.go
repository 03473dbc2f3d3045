package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/outbox"
)

type captureWriter struct {
	events []outbox.Event
}

func (c *captureWriter) Insert(_ context.Context, evt outbox.Event) error {
	c.events = append(c.events, evt)
	return nil
}

func appt() model.Appointment {
	return model.Appointment{
		ID: "a1", DoctorID: "doc-1", PatientID: "pat-1",
		Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Time: "10:00", Duration: 30,
		Status: model.StatusMissed, UpdatedAt: time.Unix(100, 0),
	}
}

func TestNotifyWritesOutboxEvent(t *testing.T) {
	w := &captureWriter{}
	n := NewOutboxNotifier(w, func() time.Time { return time.Unix(0, 0) })

	a := appt()
	if err := n.Notify(context.Background(), Event{Type: EventMissed, Appointment: a, Recipients: ForDoctor(a)}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(w.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(w.events))
	}
	evt := w.events[0]
	if evt.EventType != "clinic.appointment.missed.v1" || evt.AggregateID != "a1" || evt.DedupKey != "a1:missed:2025-03-03:10:00" {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	var body payload
	if err := json.Unmarshal(evt.Payload, &body); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if body.Date != "2025-03-03" || len(body.Recipients) != 1 || body.Recipients[0] != "doc-1" {
		t.Fatalf("unexpected payload %+v", body)
	}
}

func TestDedupKeys(t *testing.T) {
	a := appt()
	if got := DedupKey(Event{Type: EventCreated, Appointment: a}); got != "a1:created" {
		t.Fatalf("created key = %q", got)
	}
	moved := a
	moved.UpdatedAt = time.Unix(200, 0)
	if DedupKey(Event{Type: EventRescheduled, Appointment: a}) == DedupKey(Event{Type: EventRescheduled, Appointment: moved}) {
		t.Fatalf("distinct reschedules must have distinct keys")
	}
	rebooked := a
	rebooked.Date = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rebooked.Time = "11:00"
	for _, typ := range []EventType{EventMissed, EventOverdue, EventConfirmed, EventCancelled} {
		if DedupKey(Event{Type: typ, Appointment: a}) == DedupKey(Event{Type: typ, Appointment: rebooked}) {
			t.Fatalf("%s keys must differ once the visit is rebooked", typ)
		}
	}
	day := DedupKey(Event{Type: EventReminder, Appointment: a, Offset: 24 * time.Hour})
	hour := DedupKey(Event{Type: EventReminder, Appointment: a, Offset: time.Hour})
	if day == hour || day != "a1:reminder:2025-03-03:10:00:1440" {
		t.Fatalf("unexpected reminder keys %q %q", day, hour)
	}
}

func TestReminderNames(t *testing.T) {
	a := appt()
	cases := []struct {
		evt  Event
		want string
	}{
		{Event{Type: EventReminder, Appointment: a, Offset: 24 * time.Hour}, "reminder_24h"},
		{Event{Type: EventReminder, Appointment: a, Offset: time.Hour}, "reminder_1h"},
		{Event{Type: EventReminder, Appointment: a, Offset: 90 * time.Minute}, "reminder_90m"},
		{Event{Type: EventCancelled, Appointment: a}, "cancelled"},
	}
	for _, tc := range cases {
		if got := Name(tc.evt); got != tc.want {
			t.Fatalf("Name(%s, %s) = %q, want %q", tc.evt.Type, tc.evt.Offset, got, tc.want)
		}
	}
}
