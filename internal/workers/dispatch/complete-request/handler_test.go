package completerequest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/validation"
	"service-dispatch/internal/models"
	"service-dispatch/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, requestID string, finalCost, rating *float64) (*models.ServiceRequest, error) {
	args := m.Called(ctx, requestID, finalCost, rating)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceRequest), args.Error(1)
}

func createMockJob(variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       31,
		Type:      TaskType,
		Retries:   3,
		Variables: string(variablesJSON),
	}}
}

func TestRatingOutOfRangeRejectedBySchema(t *testing.T) {
	v := validation.NewValidator(registry.Default())
	vars := map[string]interface{}{"requestId": "req-1", "rating": 7}

	result, err := v.Check(TaskType, vars)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("rating"))
}

func TestExecute_Completes(t *testing.T) {
	c := &MockCompleter{}
	provider := "p-49"
	cost := 15000.0
	c.On("Complete", mock.Anything, "req-1", mock.MatchedBy(func(f *float64) bool { return f != nil && *f == cost }),
		mock.MatchedBy(func(r *float64) bool { return r != nil && *r == 4.5 })).
		Return(&models.ServiceRequest{
			ID:                 "req-1",
			Status:             models.StatusCompleted,
			AssignedProviderID: &provider,
			FinalCost:          &cost,
		}, nil)

	h, err := NewHandler(HandlerOptions{
		Completer: c,
		Validator: validation.NewValidator(registry.Default()),
		Logger:    logger.NewTestLogger(t),
	})
	require.NoError(t, err)

	var input Input
	job := createMockJob(map[string]interface{}{"requestId": "req-1", "finalCost": 15000, "rating": 4.5})
	require.NoError(t, json.Unmarshal([]byte(job.GetVariables()), &input))

	out, err := h.Execute(context.Background(), &input)
	require.NoError(t, err)
	vars := out.variables()
	assert.Equal(t, "completed", vars["dispatchStatus"])
	assert.Equal(t, "p-49", vars["providerId"])
	assert.Equal(t, 15000.0, vars["finalCost"])
	c.AssertExpectations(t)
}

func TestExecute_NotAssigned(t *testing.T) {
	c := &MockCompleter{}
	c.On("Complete", mock.Anything, "req-1", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: req-1 is escalated", apperrors.ErrInvalidTransition))

	h, err := NewHandler(HandlerOptions{Completer: c, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), &Input{RequestID: "req-1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.FromError(err).Code)
}
