package model

import "time"

type Role string

const (
	RolePatient      Role = "patient"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
	RoleAdmin        Role = "admin"
)

// Staff reports whether the role books on behalf of patients.
func (r Role) Staff() bool {
	return r == RoleReceptionist || r == RoleAdmin
}

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusWaiting    AppointmentStatus = "waiting"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusMissed     AppointmentStatus = "missed"
	StatusOverdue    AppointmentStatus = "overdue"
)

// ActiveStatuses hold a slot: at most one appointment per doctor, date and
// time may be in one of these.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed, StatusScheduled}

func (s AppointmentStatus) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusScheduled:
		return true
	}
	return false
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusScheduled, StatusWaiting, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusMissed, StatusOverdue:
		return true
	}
	return false
}

// Terminal statuses never change through a manual update. A missed or
// overdue visit is recovered only by rescheduling it.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusMissed, StatusOverdue:
		return true
	}
	return false
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:    {StatusConfirmed, StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusConfirmed, StatusWaiting, StatusCancelled},
	StatusConfirmed:  {StatusScheduled, StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusWaiting:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether staff may move an appointment from one
// status to another. Keeping the current status is always allowed.
func CanTransition(from, to AppointmentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentNotPaid  PaymentStatus = "not_paid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentNotPaid, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

type Appointment struct {
	ID             string
	DoctorID       string
	PatientID      string
	ReceptionistID string
	Date           time.Time // calendar date, midnight UTC
	Time           string    // "HH:MM" clinic wall clock
	Duration       int       // minutes
	Type           string
	Notes          string
	Status         AppointmentStatus
	PaymentStatus  PaymentStatus
	Arrived        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
