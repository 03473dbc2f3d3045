package storage

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

func (r *SettingsRepository) Get(ctx context.Context, doctorID string) (*model.DoctorSettings, error) {
	var s model.DoctorSettings
	err := r.pool.Conn(ctx).QueryRow(ctx, `
		SELECT doctor_id, available_days, start_time, end_time, appointment_duration, buffer_minutes,
			consultation_fee::float8, valid_from, valid_until, COALESCE(default_template_id::text, ''), updated_at
		FROM doctor_settings
		WHERE doctor_id = $1
	`, doctorID).Scan(&s.DoctorID, &s.AvailableDays, &s.StartTime, &s.EndTime, &s.AppointmentDuration, &s.BufferMinutes,
		&s.ConsultationFee, &s.ValidFrom, &s.ValidUntil, &s.DefaultTemplateID, &s.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("doctor settings", doctorID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Insert creates the row unless one already exists, in which case it
// returns apperr.ErrDuplicate.
func (r *SettingsRepository) Insert(ctx context.Context, s *model.DoctorSettings) error {
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		INSERT INTO doctor_settings
			(doctor_id, available_days, start_time, end_time, appointment_duration, buffer_minutes,
			 consultation_fee, valid_from, valid_until, default_template_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (doctor_id) DO NOTHING
	`, s.DoctorID, days(s.AvailableDays), s.StartTime, s.EndTime, s.AppointmentDuration, s.BufferMinutes,
		s.ConsultationFee, s.ValidFrom, s.ValidUntil, nullable(s.DefaultTemplateID), s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrDuplicate
	}
	return nil
}

func (r *SettingsRepository) Update(ctx context.Context, s *model.DoctorSettings) error {
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		UPDATE doctor_settings
		SET available_days = $2, start_time = $3, end_time = $4, appointment_duration = $5, buffer_minutes = $6,
			consultation_fee = $7, valid_from = $8, valid_until = $9, default_template_id = $10, updated_at = $11
		WHERE doctor_id = $1
	`, s.DoctorID, days(s.AvailableDays), s.StartTime, s.EndTime, s.AppointmentDuration, s.BufferMinutes,
		s.ConsultationFee, s.ValidFrom, s.ValidUntil, nullable(s.DefaultTemplateID), s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor settings", s.DoctorID)
	}
	return nil
}

// days keeps text[] columns non-null.
func days(d []string) []string {
	if d == nil {
		return []string{}
	}
	return d
}
