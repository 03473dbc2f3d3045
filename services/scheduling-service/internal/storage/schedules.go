package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// ScheduleRepository keeps shifts, breaks and slots of a day as JSONB
// documents on one row per (doctor, date).
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

const scheduleColumns = `id, doctor_id, schedule_date, shifts, breaks, slots, created_at, updated_at`

func scanSchedule(row pgx.Row) (*model.DailySchedule, error) {
	var s model.DailySchedule
	var shifts, breaks, slots []byte
	if err := row.Scan(&s.ID, &s.DoctorID, &s.Date, &shifts, &breaks, &slots, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shifts, &s.Shifts); err != nil {
		return nil, fmt.Errorf("decode shifts: %w", err)
	}
	if err := json.Unmarshal(breaks, &s.Breaks); err != nil {
		return nil, fmt.Errorf("decode breaks: %w", err)
	}
	if err := json.Unmarshal(slots, &s.Slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return &s, nil
}

func collectSchedules(rows pgx.Rows) ([]*model.DailySchedule, error) {
	defer rows.Close()
	var out []*model.DailySchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// jsonArray marshals v, writing nil slices as [].
func jsonArray[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

func encodeSchedule(s *model.DailySchedule) (shifts, breaks, slots []byte, err error) {
	if shifts, err = jsonArray(s.Shifts); err != nil {
		return
	}
	if breaks, err = jsonArray(s.Breaks); err != nil {
		return
	}
	slots, err = jsonArray(s.Slots)
	return
}

func (r *ScheduleRepository) Get(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	return r.get(ctx, doctorID, date, "")
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *ScheduleRepository) GetForUpdate(ctx context.Context, doctorID string, date time.Time) (*model.DailySchedule, error) {
	return r.get(ctx, doctorID, date, "FOR UPDATE")
}

func (r *ScheduleRepository) get(ctx context.Context, doctorID string, date time.Time, lock string) (*model.DailySchedule, error) {
	s, err := scanSchedule(r.pool.Conn(ctx).QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM daily_schedules
		WHERE doctor_id = $1 AND schedule_date = $2
		`+lock, doctorID, date))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("schedule", doctorID+"/"+daytime.FormatDate(date))
	}
	return s, err
}

func (r *ScheduleRepository) Insert(ctx context.Context, s *model.DailySchedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	shifts, breaks, slots, err := encodeSchedule(s)
	if err != nil {
		return err
	}
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		INSERT INTO daily_schedules (id, doctor_id, schedule_date, shifts, breaks, slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (doctor_id, schedule_date) DO NOTHING
	`, s.ID, s.DoctorID, s.Date, shifts, breaks, slots, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrDuplicate
	}
	return nil
}

func (r *ScheduleRepository) Update(ctx context.Context, s *model.DailySchedule) error {
	shifts, breaks, slots, err := encodeSchedule(s)
	if err != nil {
		return err
	}
	tag, err := r.pool.Conn(ctx).Exec(ctx, `
		UPDATE daily_schedules
		SET shifts = $3, breaks = $4, slots = $5, updated_at = $6
		WHERE doctor_id = $1 AND schedule_date = $2
	`, s.DoctorID, s.Date, shifts, breaks, slots, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule", s.DoctorID+"/"+daytime.FormatDate(s.Date))
	}
	return nil
}

// ListRecent returns the doctor's latest schedules, newest first.
func (r *ScheduleRepository) ListRecent(ctx context.Context, doctorID string, limit int) ([]*model.DailySchedule, error) {
	rows, err := r.pool.Conn(ctx).Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM daily_schedules
		WHERE doctor_id = $1
		ORDER BY schedule_date DESC
		LIMIT $2
	`, doctorID, limit)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (r *ScheduleRepository) LatestWithShifts(ctx context.Context, doctorID string) (*model.DailySchedule, error) {
	s, err := scanSchedule(r.pool.Conn(ctx).QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM daily_schedules
		WHERE doctor_id = $1 AND jsonb_array_length(shifts) > 0
		ORDER BY schedule_date DESC
		LIMIT 1
	`, doctorID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return s, err
}

func (r *ScheduleRepository) ListRange(ctx context.Context, doctorID string, from, to time.Time) ([]*model.DailySchedule, error) {
	rows, err := r.pool.Conn(ctx).Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM daily_schedules
		WHERE doctor_id = $1 AND schedule_date BETWEEN $2 AND $3
		ORDER BY schedule_date
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}
