package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

const activeSlotIndex = "appointments_active_slot_uidx"

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `id, doctor_id, patient_id, COALESCE(receptionist_id::text, ''), appointment_date, appointment_time,
	duration, type, notes, status, payment_status, arrived, created_at, updated_at`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var a model.Appointment
	var status, payment string
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.ReceptionistID, &a.Date, &a.Time,
		&a.Duration, &a.Type, &a.Notes, &status, &payment, &a.Arrived, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = model.AppointmentStatus(status)
	a.PaymentStatus = model.PaymentStatus(payment)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*model.Appointment, error) {
	defer rows.Close()
	var out []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Insert loses quietly to an existing active appointment on the same slot,
// reporting apperr.ErrDuplicate without aborting the transaction.
func (r *AppointmentRepository) Insert(ctx context.Context, a *model.Appointment) error {
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, receptionist_id, appointment_date, appointment_time, duration,
			 type, notes, status, payment_status, arrived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (doctor_id, appointment_date, appointment_time)
			WHERE status IN ('pending', 'confirmed', 'scheduled')
			DO NOTHING
	`, a.ID, a.DoctorID, a.PatientID, nullable(a.ReceptionistID), a.Date, a.Time, a.Duration,
		a.Type, a.Notes, string(a.Status), string(a.PaymentStatus), a.Arrived, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrDuplicate
	}
	return nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (*model.Appointment, error) {
	return r.get(ctx, id, "")
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, id string) (*model.Appointment, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *AppointmentRepository) get(ctx context.Context, id, lock string) (*model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("appointment", id)
	}
	a, err := scanAppointment(r.pool.Conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 `+lock, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment", id)
	}
	return a, err
}

func (r *AppointmentRepository) Update(ctx context.Context, a *model.Appointment) error {
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
			appointment_time = $3,
			duration = $4,
			type = $5,
			notes = $6,
			status = $7,
			payment_status = $8,
			receptionist_id = $9,
			arrived = $10,
			updated_at = $11
		WHERE id = $1
	`, a.ID, a.Date, a.Time, a.Duration, a.Type, a.Notes, string(a.Status), string(a.PaymentStatus),
		nullable(a.ReceptionistID), a.Arrived, a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) && db.ConstraintName(err) == activeSlotIndex {
			return apperr.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", a.ID)
	}
	return nil
}

func statusStrings(statuses []model.AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *AppointmentRepository) FindActiveAt(ctx context.Context, doctorID string, date time.Time, clock string, statuses []model.AppointmentStatus) (*model.Appointment, error) {
	a, err := scanAppointment(r.pool.Conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND appointment_time = $3 AND status = ANY($4)
		ORDER BY created_at
		LIMIT 1
	`, doctorID, date, clock, statusStrings(statuses)))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return a, err
}

// where builds the WHERE clause for a list filter.
func where(f booking.ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.DoctorID != "" {
		add("doctor_id::text = $%d", f.DoctorID)
	}
	if f.PatientID != "" {
		add("patient_id::text = $%d", f.PatientID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("appointment_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("appointment_date <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *AppointmentRepository) CountPending(ctx context.Context, f booking.ListFilter) (int, error) {
	f.Status = model.StatusPending
	clause, args := where(f)
	var n int
	err := r.pool.Conn(ctx).QueryRow(ctx, `SELECT count(*) FROM appointments`+clause, args...).Scan(&n)
	return n, err
}

func (r *AppointmentRepository) List(ctx context.Context, f booking.ListFilter) ([]*model.Appointment, error) {
	clause, args := where(f)
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	rows, err := r.pool.Conn(ctx).Query(ctx, `SELECT `+appointmentColumns+` FROM appointments`+clause+
		fmt.Sprintf(" ORDER BY appointment_date, appointment_time LIMIT $%d", len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListExpired locks active appointments that started before clock on today
// or on any earlier date. Rows held by a concurrent sweeper are skipped.
func (r *AppointmentRepository) ListExpired(ctx context.Context, today time.Time, clock string, limit int) ([]*model.Appointment, error) {
	rows, err := r.pool.Conn(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed', 'scheduled')
		  AND (appointment_date < $1 OR (appointment_date = $1 AND appointment_time < $2))
		ORDER BY appointment_date, appointment_time
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, today, clock, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id string, from, to model.AppointmentStatus, at time.Time) (bool, error) {
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AppointmentRepository) ListActiveBetween(ctx context.Context, from, to time.Time) ([]*model.Appointment, error) {
	rows, err := r.pool.Conn(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed', 'scheduled')
		  AND appointment_date BETWEEN $1 AND $2
		ORDER BY appointment_date, appointment_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListForDay(ctx context.Context, doctorID string, date time.Time) ([]*model.Appointment, error) {
	rows, err := r.pool.Conn(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
		ORDER BY appointment_time, created_at
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListDoctorDays(ctx context.Context, from, to time.Time) ([]lifecycle.DoctorDay, error) {
	rows, err := r.pool.Conn(ctx).Query(ctx, `
		SELECT DISTINCT doctor_id, appointment_date
		FROM appointments
		WHERE appointment_date BETWEEN $1 AND $2
		ORDER BY appointment_date, doctor_id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lifecycle.DoctorDay
	for rows.Next() {
		var d lifecycle.DoctorDay
		if err := rows.Scan(&d.DoctorID, &d.Date); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
