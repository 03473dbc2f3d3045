package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

type TemplateRepository struct {
	pool *db.Pool
}

func NewTemplateRepository(pool *db.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

const templateColumns = `id, doctor_id, name, working_days, start_time, end_time, slot_duration, buffer_minutes,
	breaks, valid_from, valid_until, is_default, created_at, updated_at`

func scanTemplate(row pgx.Row) (*model.AvailabilityTemplate, error) {
	var t model.AvailabilityTemplate
	var days []int32
	var breaks []byte
	if err := row.Scan(&t.ID, &t.DoctorID, &t.Name, &days, &t.StartTime, &t.EndTime, &t.SlotDuration, &t.BufferMinutes,
		&breaks, &t.ValidFrom, &t.ValidUntil, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.WorkingDays = make([]int, len(days))
	for i, d := range days {
		t.WorkingDays[i] = int(d)
	}
	if err := json.Unmarshal(breaks, &t.Breaks); err != nil {
		return nil, fmt.Errorf("decode template breaks: %w", err)
	}
	return &t, nil
}

func templateArgs(t *model.AvailabilityTemplate) ([]int32, []byte, error) {
	days := make([]int32, len(t.WorkingDays))
	for i, d := range t.WorkingDays {
		days[i] = int32(d)
	}
	breaks, err := jsonArray(t.Breaks)
	return days, breaks, err
}

func (r *TemplateRepository) Insert(ctx context.Context, t *model.AvailabilityTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	days, breaks, err := templateArgs(t)
	if err != nil {
		return err
	}
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		INSERT INTO availability_templates
			(id, doctor_id, name, working_days, start_time, end_time, slot_duration, buffer_minutes,
			 breaks, valid_from, valid_until, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`, t.ID, t.DoctorID, t.Name, days, t.StartTime, t.EndTime, t.SlotDuration, t.BufferMinutes,
		breaks, t.ValidFrom, t.ValidUntil, t.IsDefault, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrDuplicate
	}
	return nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.AvailabilityTemplate) error {
	days, breaks, err := templateArgs(t)
	if err != nil {
		return err
	}
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		UPDATE availability_templates
		SET name = $2, working_days = $3, start_time = $4, end_time = $5, slot_duration = $6,
			buffer_minutes = $7, breaks = $8, valid_from = $9, valid_until = $10, is_default = $11, updated_at = $12
		WHERE id = $1
	`, t.ID, t.Name, days, t.StartTime, t.EndTime, t.SlotDuration,
		t.BufferMinutes, breaks, t.ValidFrom, t.ValidUntil, t.IsDefault, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("template", t.ID)
	}
	return nil
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*model.AvailabilityTemplate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("template", id)
	}
	t, err := scanTemplate(r.pool.Conn(ctx).QueryRow(ctx,
		`SELECT `+templateColumns+` FROM availability_templates WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("template", id)
	}
	return t, err
}

func (r *TemplateRepository) GetDefault(ctx context.Context, doctorID string) (*model.AvailabilityTemplate, error) {
	t, err := scanTemplate(r.pool.Conn(ctx).QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE doctor_id = $1 AND is_default
		ORDER BY updated_at DESC
		LIMIT 1
	`, doctorID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return t, err
}

func (r *TemplateRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*model.AvailabilityTemplate, error) {
	rows, err := r.pool.Conn(ctx).Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE doctor_id = $1
		ORDER BY is_default DESC, name
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AvailabilityTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Conn(ctx).Exec(ctx, `DELETE FROM availability_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("template", id)
	}
	return nil
}

// ClearDefault unsets the default flag on every other template of the doctor.
func (r *TemplateRepository) ClearDefault(ctx context.Context, doctorID, exceptID string) error {
	_, err := r.pool.Conn(ctx).Exec(ctx, `
		UPDATE availability_templates
		SET is_default = false, updated_at = now()
		WHERE doctor_id = $1 AND id <> $2 AND is_default
	`, doctorID, exceptID)
	return err
}
