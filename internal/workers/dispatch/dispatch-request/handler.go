package dispatchrequest

import (
	"context"
	"fmt"
	"time"

	"service-dispatch/internal/common/camunda"
	"service-dispatch/internal/common/config"
	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/observability"
	"service-dispatch/internal/common/validation"
	"service-dispatch/internal/dispatch/coordinator"
	"service-dispatch/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "dispatch-request"

// Dispatcher starts a dispatch attempt for a new request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *models.ServiceRequest) (*coordinator.Result, error)
}

type Handler struct {
	config     *camunda.HandlerConfig
	dispatcher Dispatcher
	validator  *validation.Validator
	runner     *camunda.JobRunner
	logger     logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *camunda.HandlerConfig
	Dispatcher    Dispatcher
	Validator     *validation.Validator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg, err := camunda.HandlerConfigFor(opts.AppConfig, TaskType, opts.CustomConfig)
	if err != nil {
		return nil, err
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("%s: dispatcher is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:     cfg,
		dispatcher: opts.Dispatcher,
		validator:  opts.Validator,
		runner: &camunda.JobRunner{
			TaskType: TaskType,
			Errors:   apperrors.NewErrorHandler(log),
			Obs:      opts.Observability,
			Logger:   log,
		},
		logger: log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing dispatch request", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.runner.Finish(ctx, client, job, started, nil, err)
		return
	}
	output, err := h.Execute(ctx, input)
	if err != nil {
		h.runner.Finish(ctx, client, job, started, nil, err)
		return
	}
	h.runner.Finish(ctx, client, job, started, output.variables(), nil)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := camunda.DecodeVariables(job, h.validator, TaskType, &input); err != nil {
		return nil, err
	}
	return &input, nil
}

// Execute dispatches the request. When nobody can be notified the request is
// already escalated and the requester told; the job then throws
// NO_PROVIDER_AVAILABLE so the process can route to an operator.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.dispatcher.Dispatch(ctx, input.toRequest())
	if err != nil {
		return nil, err
	}
	if res.NoProvider {
		h.logger.Warn("no provider available", map[string]interface{}{"requestId": res.RequestID})
		return nil, apperrors.NewNoProviderAvailableError(res.RequestID)
	}

	notified := res.Notified
	if notified == nil {
		notified = []string{}
	}
	return &Output{
		RequestID:           res.RequestID,
		Status:              string(res.Status),
		AttemptID:           res.AttemptID,
		NotifiedProviderIDs: notified,
		Deadline:            res.Deadline,
	}, nil
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) GetConfig() *camunda.HandlerConfig {
	return h.config
}
