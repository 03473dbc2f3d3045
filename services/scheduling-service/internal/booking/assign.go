package booking

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/daytime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
)

// autoAssign returns the first active doctor, in directory order, who works
// on the requested day and hour and has the slot free. It returns "" when
// none qualifies.
func (e *Engine) autoAssign(ctx context.Context, in request) (string, error) {
	doctors, err := e.directory.FindDoctors(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range doctors {
		if d.Role != model.RoleDoctor || !d.IsActive {
			continue
		}
		settings := e.doctorSettings(ctx, d.ID)
		if days := workingDays(d, settings); len(days) > 0 && !daytime.ContainsWeekday(days, in.date.Weekday()) {
			continue
		}
		if err := e.checkDirectConflict(ctx, d.ID, in.date, in.clock, ""); err != nil {
			if isRejection(err) {
				continue
			}
			return "", err
		}
		if err := e.checkSlot(ctx, d, settings, in.date, in.clock, in.duration); err != nil {
			if isRejection(err) {
				continue
			}
			return "", err
		}
		e.logger.Debug("doctor auto-assigned", "doctor_id", d.ID, "date", daytime.FormatDate(in.date), "time", in.clock)
		return d.ID, nil
	}
	return "", nil
}
