package cancelrequest

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

type MockCanceller struct {
	mock.Mock
}

func (m *MockCanceller) Cancel(ctx context.Context, requestID, reason string) (*models.ServiceRequest, error) {
	args := m.Called(ctx, requestID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceRequest), args.Error(1)
}

func createMockJob(variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       21,
		Type:      TaskType,
		Retries:   3,
		Variables: string(variablesJSON),
	}}
}

func newTestHandler(t *testing.T, c Canceller) *Handler {
	h, err := NewHandler(HandlerOptions{
		Canceller: c,
		Validator: validation.NewValidator(registry.Default()),
		Logger:    logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

func TestParseInput(t *testing.T) {
	h := newTestHandler(t, &MockCanceller{})

	input, err := h.parseInput(createMockJob(map[string]interface{}{"requestId": "req-1", "reason": "resolved"}))
	require.NoError(t, err)
	assert.Equal(t, "req-1", input.RequestID)

	_, err = h.parseInput(createMockJob(map[string]interface{}{"requestId": ""}))
	assert.Error(t, err)
}

func TestExecute_Cancels(t *testing.T) {
	c := &MockCanceller{}
	c.On("Cancel", mock.Anything, "req-1", "resolved").Return(&models.ServiceRequest{
		ID:           "req-1",
		Status:       models.StatusCancelled,
		CancelReason: "resolved",
	}, nil)

	out, err := newTestHandler(t, c).Execute(context.Background(), &Input{RequestID: "req-1", Reason: "resolved"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out.Status)
	assert.Equal(t, "resolved", out.variables()["cancelReason"])
	c.AssertExpectations(t)
}

func TestExecute_AssignedRequestIsClosed(t *testing.T) {
	c := &MockCanceller{}
	c.On("Cancel", mock.Anything, "req-1", "").
		Return(nil, fmt.Errorf("%w: req-1 is assigned", apperrors.ErrRequestClosed))

	_, err := newTestHandler(t, c).Execute(context.Background(), &Input{RequestID: "req-1"})
	require.Error(t, err)

	bpmn := apperrors.ConvertToBPMNError(apperrors.FromError(err))
	assert.Equal(t, "REQUEST_CLOSED", bpmn.Code)
	assert.Equal(t, 0, bpmn.Retries)
}
