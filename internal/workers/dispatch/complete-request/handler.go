package completerequest

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
	"service-dispatch/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "complete-request"

// Completer closes an assigned request and applies the requester's rating.
type Completer interface {
	Complete(ctx context.Context, requestID string, finalCost, rating *float64) (*models.ServiceRequest, error)
}

type Handler struct {
	config    *camunda.HandlerConfig
	completer Completer
	validator *validation.Validator
	runner    *camunda.JobRunner
	logger    logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *camunda.HandlerConfig
	Completer     Completer
	Validator     *validation.Validator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg, err := camunda.HandlerConfigFor(opts.AppConfig, TaskType, opts.CustomConfig)
	if err != nil {
		return nil, err
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("%s: completer is required", TaskType)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:    cfg,
		completer: opts.Completer,
		validator: opts.Validator,
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

	var input Input
	if err := camunda.DecodeVariables(job, h.validator, TaskType, &input); err != nil {
		h.runner.Finish(ctx, client, job, started, nil, err)
		return
	}
	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.runner.Finish(ctx, client, job, started, nil, err)
		return
	}
	h.runner.Finish(ctx, client, job, started, output.variables(), nil)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req, err := h.completer.Complete(ctx, input.RequestID, input.FinalCost, input.Rating)
	if err != nil {
		return nil, err
	}
	out := &Output{
		RequestID: req.ID,
		Status:    string(req.Status),
		FinalCost: req.FinalCost,
	}
	if req.AssignedProviderID != nil {
		out.ProviderID = *req.AssignedProviderID
	}
	return out, nil
}
