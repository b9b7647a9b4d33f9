// Package postgres persists requests, providers, attempts and notification records
// in PostgreSQL. Status changes are conditional UPDATEs checked through RowsAffected.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/models"
	"service-dispatch/internal/store"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var (
	_ store.RequestStore  = (*Store)(nil)
	_ store.ProviderStore = (*Store)(nil)
)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const requestColumns = `id, requester_id, requester_channel_id, service_type, description, location,
	urgency, status, created_at, updated_at, accepted_at, completed_at, assigned_provider_id,
	estimated_cost, final_cost, cancel_reason`

func (s *Store) CreateRequest(ctx context.Context, req *models.ServiceRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		req.ID, req.RequesterID, req.RequesterChannelID, string(req.ServiceType), req.Description,
		req.Location, string(req.Urgency), string(req.Status), req.CreatedAt, req.UpdatedAt,
		nullTime(req.AcceptedAt), nullTime(req.CompletedAt), nullString(req.AssignedProviderID),
		nullFloat(req.EstimatedCost), nullFloat(req.FinalCost), req.CancelReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate id %s", apperrors.ErrInvalidRequest, req.ID)
		}
		return apperrors.NewQueryExecutionFailedError("create_request", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRequestNotFound, id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_request", err)
	}
	return req, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, u store.StatusUpdate) (bool, error) {
	sets := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{string(u.To), u.At}

	switch u.To {
	case models.StatusAssigned:
		sets = append(sets, "assigned_provider_id = $3", "accepted_at = $2")
		args = append(args, u.ProviderID)
	case models.StatusCancelled:
		sets = append(sets, "cancel_reason = $3")
		args = append(args, u.CancelReason)
	case models.StatusCompleted:
		sets = append(sets, "completed_at = $2", "final_cost = $3")
		args = append(args, nullFloat(u.FinalCost))
	}

	from := make([]string, len(u.From))
	for i, f := range u.From {
		from[i] = string(f)
	}
	args = append(args, id, pq.Array(from))

	query := fmt.Sprintf("UPDATE service_requests SET %s WHERE id = $%d AND status = ANY($%d)",
		strings.Join(sets, ", "), len(args)-1, len(args))
	if u.To == models.StatusAssigned {
		query += " AND assigned_provider_id IS NULL"
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("update_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("update_status", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM service_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, apperrors.NewQueryExecutionFailedError("update_status", err)
	}
	if !exists {
		return false, fmt.Errorf("%w: %s", apperrors.ErrRequestNotFound, id)
	}
	return false, nil
}

func (s *Store) SaveAttempt(ctx context.Context, a *models.DispatchAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_attempts (id, request_id, notified_provider_ids, deadline, resolved, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.RequestID, pq.Array(a.NotifiedProviderIDs), a.Deadline, a.Resolved, nullOutcome(a.Outcome), a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: request %s already has an open attempt", apperrors.ErrInvalidTransition, a.RequestID)
		}
		return apperrors.NewQueryExecutionFailedError("save_attempt", err)
	}
	return nil
}

func (s *Store) ResolveAttempt(ctx context.Context, requestID string, outcome models.AttemptOutcome) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dispatch_attempts SET resolved = TRUE, outcome = $2
		WHERE request_id = $1 AND resolved = FALSE`, requestID, string(outcome))
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("resolve_attempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("resolve_attempt", err)
	}
	return n > 0, nil
}

const attemptColumns = `id, request_id, notified_provider_ids, deadline, resolved, outcome, created_at`

func (s *Store) ListAttempts(ctx context.Context, requestID string) ([]models.DispatchAttempt, error) {
	return s.queryAttempts(ctx, "list_attempts",
		`SELECT `+attemptColumns+` FROM dispatch_attempts WHERE request_id = $1 ORDER BY created_at`, requestID)
}

func (s *Store) OpenAttempts(ctx context.Context) ([]models.DispatchAttempt, error) {
	return s.queryAttempts(ctx, "open_attempts",
		`SELECT `+attemptColumns+` FROM dispatch_attempts WHERE resolved = FALSE ORDER BY deadline`)
}

func (s *Store) queryAttempts(ctx context.Context, op, query string, args ...interface{}) ([]models.DispatchAttempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(op, err)
	}
	defer rows.Close()

	var out []models.DispatchAttempt
	for rows.Next() {
		var (
			a        models.DispatchAttempt
			notified pq.StringArray
			outcome  sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.RequestID, &notified, &a.Deadline, &a.Resolved, &outcome, &a.CreatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError(op, err)
		}
		a.NotifiedProviderIDs = []string(notified)
		if outcome.Valid {
			o := models.AttemptOutcome(outcome.String)
			a.Outcome = &o
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(op, err)
	}
	return out, nil
}

func (s *Store) SaveNotification(ctx context.Context, rec *models.NotificationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_records (request_id, provider_id, channel_id, sent_at, delivered)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id, provider_id) DO UPDATE
		SET channel_id = EXCLUDED.channel_id, sent_at = EXCLUDED.sent_at, delivered = EXCLUDED.delivered,
		    responded_at = NULL, response = NULL`,
		rec.RequestID, rec.ProviderID, rec.ChannelID, rec.SentAt, rec.Delivered,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("save_notification", err)
	}
	return nil
}

func (s *Store) MarkDelivered(ctx context.Context, requestID, providerID string, delivered bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_records SET delivered = $3 WHERE request_id = $1 AND provider_id = $2`,
		requestID, providerID, delivered)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("mark_delivered", err)
	}
	return nil
}

func (s *Store) MarkResponded(ctx context.Context, requestID, providerID string, decision models.ReplyDecision, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_records SET responded_at = $3, response = $4
		WHERE request_id = $1 AND provider_id = $2 AND responded_at IS NULL`,
		requestID, providerID, at, string(decision))
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("mark_responded", err)
	}
	return nil
}

const notificationColumns = `request_id, provider_id, channel_id, sent_at, delivered, responded_at, response`

func (s *Store) LatestOpenNotification(ctx context.Context, channelID string) (*models.NotificationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT n.request_id, n.provider_id, n.channel_id, n.sent_at, n.delivered, n.responded_at, n.response
		FROM notification_records n
		JOIN service_requests r ON r.id = n.request_id
		WHERE n.channel_id = $1 AND n.responded_at IS NULL
		ORDER BY (r.status = $2) DESC, n.sent_at DESC LIMIT 1`, channelID, string(models.StatusAwaitingResponse))

	rec, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrNoPendingRequest, channelID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("latest_open_notification", err)
	}
	return rec, nil
}

func (s *Store) ListNotifications(ctx context.Context, requestID string) ([]models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notification_records
		WHERE request_id = $1 ORDER BY sent_at`, requestID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_notifications", err)
	}
	defer rows.Close()

	var out []models.NotificationRecord
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list_notifications", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_notifications", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row scanner) (*models.ServiceRequest, error) {
	var (
		req                          models.ServiceRequest
		serviceType, urgency, status string
		acceptedAt, completedAt      sql.NullTime
		assigned                     sql.NullString
		estimatedCost, finalCost     sql.NullFloat64
	)
	err := row.Scan(&req.ID, &req.RequesterID, &req.RequesterChannelID, &serviceType, &req.Description,
		&req.Location, &urgency, &status, &req.CreatedAt, &req.UpdatedAt, &acceptedAt, &completedAt,
		&assigned, &estimatedCost, &finalCost, &req.CancelReason)
	if err != nil {
		return nil, err
	}

	req.ServiceType = models.ServiceType(serviceType)
	req.Urgency = models.Urgency(urgency)
	req.Status = models.RequestStatus(status)
	if acceptedAt.Valid {
		req.AcceptedAt = &acceptedAt.Time
	}
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}
	if assigned.Valid {
		req.AssignedProviderID = &assigned.String
	}
	if estimatedCost.Valid {
		req.EstimatedCost = &estimatedCost.Float64
	}
	if finalCost.Valid {
		req.FinalCost = &finalCost.Float64
	}
	return &req, nil
}

func scanNotification(row scanner) (*models.NotificationRecord, error) {
	var (
		rec         models.NotificationRecord
		respondedAt sql.NullTime
		response    sql.NullString
	)
	if err := row.Scan(&rec.RequestID, &rec.ProviderID, &rec.ChannelID, &rec.SentAt, &rec.Delivered, &respondedAt, &response); err != nil {
		return nil, err
	}
	if respondedAt.Valid {
		rec.RespondedAt = &respondedAt.Time
	}
	if response.Valid {
		d := models.ReplyDecision(response.String)
		rec.Response = &d
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullOutcome(o *models.AttemptOutcome) sql.NullString {
	if o == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*o), Valid: true}
}
