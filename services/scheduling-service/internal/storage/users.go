package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// Directory reads the users table. Accounts are managed elsewhere.
type Directory struct {
	pool *db.Pool
}

func NewDirectory(pool *db.Pool) *Directory {
	return &Directory{pool: pool}
}

const userColumns = `id, name, email, role, is_active, specialty, available_days, start_time, end_time`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.IsActive, &u.Specialty, &u.AvailableDays, &u.StartTime, &u.EndTime); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (d *Directory) FindOne(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("user", id)
	}
	u, err := scanUser(d.pool.Conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("user", id)
	}
	return u, err
}

func (d *Directory) FindDoctors(ctx context.Context) ([]*model.User, error) {
	rows, err := d.pool.Conn(ctx).Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'doctor' AND is_active
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
