package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/models"
	"service-dispatch/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

var assignUpdate = store.StatusUpdate{
	From:       []models.RequestStatus{models.StatusAwaitingResponse},
	To:         models.StatusAssigned,
	ProviderID: "prov-1",
}

const assignQuery = `UPDATE service_requests SET status = \$1, updated_at = \$2, assigned_provider_id = \$3, accepted_at = \$2 WHERE id = \$4 AND status = ANY\(\$5\) AND assigned_provider_id IS NULL`

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantOK    bool
		wantErr   error
	}{
		{
			name: "cas wins",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(assignQuery).
					WithArgs("assigned", sqlmock.AnyArg(), "prov-1", "req-1", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantOK: true,
		},
		{
			name: "cas lost",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(assignQuery).
					WithArgs("assigned", sqlmock.AnyArg(), "prov-1", "req-1", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("req-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantOK: false,
		},
		{
			name: "unknown request",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(assignQuery).
					WithArgs("assigned", sqlmock.AnyArg(), "prov-1", "req-1", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT EXISTS`).
					WithArgs("req-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: apperrors.ErrRequestNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setupMock(mock)

			u := assignUpdate
			u.At = time.Now().UTC()
			ok, err := s.UpdateStatus(context.Background(), "req-1", u)

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOK, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateStatus_CancelSetsReason(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE service_requests SET status = \$1, updated_at = \$2, cancel_reason = \$3 WHERE id = \$4 AND status = ANY\(\$5\)$`).
		WithArgs("cancelled", sqlmock.AnyArg(), "requester changed plans", "req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.UpdateStatus(context.Background(), "req-1", store.StatusUpdate{
		From:         models.OpenStatuses,
		To:           models.StatusCancelled,
		At:           time.Now(),
		CancelReason: "requester changed plans",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_DatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(assignQuery).WillReturnError(errors.New("connection reset"))

	_, err := s.UpdateStatus(context.Background(), "req-1", assignUpdate)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, apperrors.FromError(err).Code)
}

func TestGetRequest(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	cols := []string{"id", "requester_id", "requester_channel_id", "service_type", "description", "location",
		"urgency", "status", "created_at", "updated_at", "accepted_at", "completed_at", "assigned_provider_id",
		"estimated_cost", "final_cost", "cancel_reason"}
	mock.ExpectQuery(`SELECT (.+) FROM service_requests WHERE id = \$1`).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("req-1", "user-1", "ch-user", "plumbing", "fuite sous l'evier",
			"Bonamoussadi, Douala", "urgent", "assigned", now, now, now, nil, "prov-1", 120.0, nil, ""))

	req, err := s.GetRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, req.Status)
	assert.Equal(t, models.UrgencyUrgent, req.Urgency)
	require.NotNil(t, req.AssignedProviderID)
	assert.Equal(t, "prov-1", *req.AssignedProviderID)
	assert.Nil(t, req.CompletedAt)
	assert.Nil(t, req.FinalCost)
	require.NotNil(t, req.EstimatedCost)
	assert.Equal(t, 120.0, *req.EstimatedCost)
}

func TestGetRequest_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM service_requests`).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetRequest(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperrors.ErrRequestNotFound))
}

func TestSaveAttempt_SecondOpenAttemptRejected(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO dispatch_attempts`).WillReturnError(&pq.Error{Code: "23505"})

	err := s.SaveAttempt(context.Background(), &models.DispatchAttempt{ID: "a2", RequestID: "req-1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestResolveAttempt(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE dispatch_attempts SET resolved = TRUE`).
		WithArgs("req-1", "escalated").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.ResolveAttempt(context.Background(), "req-1", models.OutcomeEscalated)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLatestOpenNotification(t *testing.T) {
	cols := []string{"request_id", "provider_id", "channel_id", "sent_at", "delivered", "responded_at", "response"}

	t.Run("found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`JOIN service_requests r ON r.id = n.request_id\s+WHERE n.channel_id = \$1 AND n.responded_at IS NULL\s+ORDER BY \(r.status = \$2\) DESC, n.sent_at DESC`).
			WithArgs("ch-1", "awaiting_response").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("req-1", "prov-1", "ch-1", time.Now(), true, nil, nil))

		rec, err := s.LatestOpenNotification(context.Background(), "ch-1")
		require.NoError(t, err)
		assert.Equal(t, "req-1", rec.RequestID)
		assert.True(t, rec.Open())
	})

	t.Run("none", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM notification_records`).WithArgs("ch-1", "awaiting_response").WillReturnRows(sqlmock.NewRows(cols))

		_, err := s.LatestOpenNotification(context.Background(), "ch-1")
		assert.True(t, errors.Is(err, apperrors.ErrNoPendingRequest))
	})
}

func TestListEligible_ScansArrays(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	cols := []string{"id", "display_name", "channel_id", "phone", "services", "coverage_areas", "is_available",
		"is_active", "rating", "rating_count", "total_jobs", "created_at", "updated_at"}
	mock.ExpectQuery(`WHERE is_active AND is_available AND \$1 = ANY\(services\)`).
		WithArgs("plumbing").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("prov-1", "Plomberie Roy", "ch-1", "+15145550101", "{plumbing,electrical}", "{Bonamoussadi,Akwa}", true, true, 4.9, 12, 40, now, now))

	providers, err := s.ListEligible(context.Background(), models.ServicePlumbing)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, []models.ServiceType{models.ServicePlumbing, models.ServiceElectrical}, providers[0].Services)
	assert.Equal(t, []string{"Bonamoussadi", "Akwa"}, providers[0].CoverageAreas)
	assert.True(t, providers[0].IsPrimary(models.ServicePlumbing))
}

func TestApplyRating_UnknownProvider(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE providers\s+SET rating =`).
		WithArgs("ghost", 5.0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.ApplyRating(context.Background(), "ghost", 7)
	assert.True(t, errors.Is(err, apperrors.ErrProviderNotFound))
}
