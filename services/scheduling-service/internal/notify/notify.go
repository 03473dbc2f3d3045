// Package notify turns appointment state changes into outbox events that
// the relay publishes to Kafka for the notification service.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/outbox"
)

type EventType string

const (
	EventCreated     EventType = "created"
	EventConfirmed   EventType = "confirmed"
	EventCancelled   EventType = "cancelled"
	EventRescheduled EventType = "rescheduled"
	EventMissed      EventType = "missed"
	EventOverdue     EventType = "overdue"
	EventReminder    EventType = "reminder"
)

// Topic is the Kafka topic for an event type.
func Topic(t EventType) string {
	return "clinic.appointment." + string(t) + ".v1"
}

type Event struct {
	Type        EventType
	Appointment model.Appointment
	Recipients  []string
	// Offset is set for reminders: how long before the start it fires.
	Offset time.Duration
}

// ForPatientAndDoctor is the recipient list for booking lifecycle events.
func ForPatientAndDoctor(a model.Appointment) []string {
	return []string{a.PatientID, a.DoctorID}
}

// ForDoctor is the recipient list for sweeper transitions.
func ForDoctor(a model.Appointment) []string {
	return []string{a.DoctorID}
}

type Writer interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

// OutboxNotifier writes events to the outbox using the transaction carried
// by ctx, so the notification commits or rolls back with the change.
type OutboxNotifier struct {
	out Writer
	now func() time.Time
}

func NewOutboxNotifier(out Writer, now func() time.Time) *OutboxNotifier {
	return &OutboxNotifier{out: out, now: now}
}

type payload struct {
	EventType     string   `json:"event_type"`
	AppointmentID string   `json:"appointment_id"`
	DoctorID      string   `json:"doctor_id"`
	PatientID     string   `json:"patient_id"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	Duration      int      `json:"duration"`
	Status        string   `json:"status"`
	PaymentStatus string   `json:"payment_status"`
	Recipients    []string `json:"recipients"`
	ReminderMins  int      `json:"reminder_minutes,omitempty"`
	OccurredAt    string   `json:"occurred_at"`
}

func (n *OutboxNotifier) Notify(ctx context.Context, evt Event) error {
	a := evt.Appointment
	body, err := json.Marshal(payload{
		EventType:     Name(evt),
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          daytime.FormatDate(a.Date),
		Time:          a.Time,
		Duration:      a.Duration,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		Recipients:    evt.Recipients,
		ReminderMins:  int(evt.Offset / time.Minute),
		OccurredAt:    n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	return n.out.Insert(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     Topic(evt.Type),
		DedupKey:      DedupKey(evt),
		Payload:       body,
	})
}

// Name is the event name carried in the payload. Reminders are named by
// their offset: reminder_24h, reminder_1h, reminder_30m.
func Name(evt Event) string {
	if evt.Type != EventReminder || evt.Offset <= 0 {
		return string(evt.Type)
	}
	if evt.Offset%time.Hour == 0 {
		return fmt.Sprintf("reminder_%dh", int(evt.Offset/time.Hour))
	}
	return fmt.Sprintf("reminder_%dm", int(evt.Offset/time.Minute))
}

// DedupKey identifies an event that must be emitted at most once. Creation
// happens once per appointment. Status events and reminders are keyed by the
// slot they refer to, so a rebooked visit that is missed again still notifies.
func DedupKey(evt Event) string {
	a := evt.Appointment
	switch evt.Type {
	case EventCreated:
		return a.ID + ":" + string(evt.Type)
	case EventRescheduled:
		return fmt.Sprintf("%s:%s:%d", a.ID, evt.Type, a.UpdatedAt.UnixNano())
	case EventReminder:
		return fmt.Sprintf("%s:%s:%s:%s:%d", a.ID, evt.Type, daytime.FormatDate(a.Date), a.Time, int(evt.Offset/time.Minute))
	default:
		return fmt.Sprintf("%s:%s:%s:%s", a.ID, evt.Type, daytime.FormatDate(a.Date), a.Time)
	}
}
