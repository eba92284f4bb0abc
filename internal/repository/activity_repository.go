package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/request-desk/internal/domain"
)

// ActivityRepository stores the append-only audit trail. Entries are never
// updated; DeleteByRequest exists solely for the administrative delete path.
type ActivityRepository interface {
	Append(ctx context.Context, activity *domain.Activity) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.Activity, error)
	DeleteByRequest(ctx context.Context, requestID string) error
}

type activityRepository struct {
	db Querier
}

// NewActivityRepository instantiates the repository over a pool or transaction.
func NewActivityRepository(db Querier) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(ctx context.Context, activity *domain.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `
        INSERT INTO request_activities (id, request_id, actor_type, actor_id, activity_type,
                                        old_status, new_status, time_spent_minutes, notes, is_internal,
                                        assignee_staff_id, department_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.db.Exec(ctx, query,
		activity.ID,
		activity.RequestID,
		activity.ActorType,
		activity.ActorID,
		activity.Type,
		activity.OldStatus,
		activity.NewStatus,
		activity.TimeSpentMinutes,
		activity.Notes,
		activity.IsInternal,
		activity.AssigneeID,
		activity.DepartmentID,
		activity.CreatedAt,
	)
	return err
}

func (r *activityRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.Activity, error) {
	const query = `
        SELECT id, request_id, actor_type, actor_id, activity_type,
               old_status, new_status, time_spent_minutes, notes, is_internal,
               assignee_staff_id, department_id, created_at
        FROM request_activities WHERE request_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Activity
	for rows.Next() {
		var activity domain.Activity
		if err := rows.Scan(
			&activity.ID,
			&activity.RequestID,
			&activity.ActorType,
			&activity.ActorID,
			&activity.Type,
			&activity.OldStatus,
			&activity.NewStatus,
			&activity.TimeSpentMinutes,
			&activity.Notes,
			&activity.IsInternal,
			&activity.AssigneeID,
			&activity.DepartmentID,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}

func (r *activityRepository) DeleteByRequest(ctx context.Context, requestID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM request_activities WHERE request_id=$1`, requestID)
	return err
}
