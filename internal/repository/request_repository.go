package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-desk/internal/domain"
)

// RequestScope restricts listings to what a viewer may see. Set fields are
// ORed together; an empty scope means unrestricted (admin).
type RequestScope struct {
	RequesterID  *string
	AssigneeID   *string
	DepartmentID *string
}

// RequestFilter captures listing parameters.
type RequestFilter struct {
	Statuses     []domain.RequestStatus
	Types        []domain.RequestType
	Urgency      *domain.RequestUrgency
	DepartmentID *string
	AssigneeID   *string
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// RequestRepository encapsulates request persistence. The compare-and-set
// methods are the single serialization point for concurrent writers. Every
// writer clamps last_activity_at with GREATEST so a later-committing write
// carrying an earlier timestamp never moves it backwards.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	GetByNumber(ctx context.Context, number string) (*domain.Request, error)
	ListWithFilter(ctx context.Context, scope RequestScope, filter RequestFilter) ([]domain.Request, error)
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.RequestStatus, at time.Time) (bool, error)
	CompareAndSetAssignee(ctx context.Context, id string, expected *string, assignee, department string, at time.Time) (bool, error)
	SetUrgency(ctx context.Context, id string, urgency domain.RequestUrgency, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type requestRepository struct {
	db Querier
}

// NewRequestRepository instantiates the repository over a pool or transaction.
func NewRequestRepository(db Querier) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `id, request_number, requester_user_id, request_type, status, urgency,
               department_id, assignee_staff_id, title, description, due_date,
               created_at, updated_at, last_activity_at`

func (r *requestRepository) Create(ctx context.Context, req *domain.Request) error {
	const query = `
        INSERT INTO requests (request_number, requester_user_id, request_type, status, urgency,
                              department_id, assignee_staff_id, title, description, due_date, last_activity_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
        RETURNING id, created_at, updated_at, last_activity_at`
	return r.db.QueryRow(ctx, query,
		req.RequestNumber,
		req.RequesterID,
		req.Type,
		req.Status,
		req.Urgency,
		req.DepartmentID,
		req.AssigneeID,
		req.Title,
		req.Description,
		req.DueDate,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt, &req.LastActivityAt)
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *requestRepository) GetByNumber(ctx context.Context, number string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE request_number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *requestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Request, error) {
	var req domain.Request
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&req.ID,
		&req.RequestNumber,
		&req.RequesterID,
		&req.Type,
		&req.Status,
		&req.Urgency,
		&req.DepartmentID,
		&req.AssigneeID,
		&req.Title,
		&req.Description,
		&req.DueDate,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.LastActivityAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

// CompareAndSetStatus moves the request to next only when its persisted
// status still equals expected. Returns false when the precondition failed.
func (r *requestRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.RequestStatus, at time.Time) (bool, error) {
	const query = `
        UPDATE requests SET status=$1, last_activity_at=GREATEST(last_activity_at, $2), updated_at=NOW()
        WHERE id=$3 AND status=$4`
	cmd, err := r.db.Exec(ctx, query, next, at, id, expected)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// CompareAndSetAssignee sets the assignee and department only when the
// persisted assignee still equals expected (commonly NULL).
func (r *requestRepository) CompareAndSetAssignee(ctx context.Context, id string, expected *string, assignee, department string, at time.Time) (bool, error) {
	const query = `
        UPDATE requests SET assignee_staff_id=$1, department_id=$2, last_activity_at=GREATEST(last_activity_at, $3), updated_at=NOW()
        WHERE id=$4 AND assignee_staff_id IS NOT DISTINCT FROM $5`
	cmd, err := r.db.Exec(ctx, query, assignee, department, at, id, expected)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *requestRepository) SetUrgency(ctx context.Context, id string, urgency domain.RequestUrgency, at time.Time) error {
	const query = `
        UPDATE requests SET urgency=$1, last_activity_at=GREATEST(last_activity_at, $2), updated_at=NOW()
        WHERE id=$3`
	cmd, err := r.db.Exec(ctx, query, urgency, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE requests SET last_activity_at=GREATEST(last_activity_at, $1), updated_at=NOW()
        WHERE id=$2`
	cmd, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestRepository) ListWithFilter(ctx context.Context, scope RequestScope, filter RequestFilter) ([]domain.Request, error) {
	base := `SELECT ` + requestColumns + ` FROM requests`
	clauses := []string{"1=1"}
	args := []any{}

	if scopeClause, scopeArgs := buildScopeClause(scope, len(args)); scopeClause != "" {
		clauses = append(clauses, scopeClause)
		args = append(args, scopeArgs...)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, rt := range filter.Types {
			args = append(args, rt)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("request_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Urgency != nil {
		args = append(args, *filter.Urgency)
		clauses = append(clauses, fmt.Sprintf("urgency=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_staff_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY last_activity_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func buildScopeClause(scope RequestScope, argOffset int) (string, []any) {
	parts := []string{}
	args := []any{}
	if scope.RequesterID != nil {
		args = append(args, *scope.RequesterID)
		parts = append(parts, fmt.Sprintf("requester_user_id=$%d", argOffset+len(args)))
	}
	if scope.AssigneeID != nil {
		args = append(args, *scope.AssigneeID)
		parts = append(parts, fmt.Sprintf("assignee_staff_id=$%d", argOffset+len(args)))
	}
	if scope.DepartmentID != nil {
		args = append(args, *scope.DepartmentID)
		parts = append(parts, fmt.Sprintf("department_id=$%d", argOffset+len(args)))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	var result []domain.Request
	for rows.Next() {
		var req domain.Request
		if err := rows.Scan(
			&req.ID,
			&req.RequestNumber,
			&req.RequesterID,
			&req.Type,
			&req.Status,
			&req.Urgency,
			&req.DepartmentID,
			&req.AssigneeID,
			&req.Title,
			&req.Description,
			&req.DueDate,
			&req.CreatedAt,
			&req.UpdatedAt,
			&req.LastActivityAt,
		); err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}
