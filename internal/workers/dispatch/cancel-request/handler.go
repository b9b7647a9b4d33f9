package cancelrequest

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

const TaskType = "cancel-request"

type Canceller interface {
	Cancel(ctx context.Context, requestID, reason string) (*models.ServiceRequest, error)
}

type Handler struct {
	config    *camunda.HandlerConfig
	canceller Canceller
	validator *validation.Validator
	runner    *camunda.JobRunner
	logger    logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *camunda.HandlerConfig
	Canceller     Canceller
	Validator     *validation.Validator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg, err := camunda.HandlerConfigFor(opts.AppConfig, TaskType, opts.CustomConfig)
	if err != nil {
		return nil, err
	}
	if opts.Canceller == nil {
		return nil, fmt.Errorf("%s: canceller is required", TaskType)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:    cfg,
		canceller: opts.Canceller,
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

// Execute cancels the request. Cancelling an already cancelled request succeeds.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req, err := h.canceller.Cancel(ctx, input.RequestID, input.Reason)
	if err != nil {
		return nil, err
	}
	h.logger.Info("request cancelled", map[string]interface{}{"requestId": req.ID})
	return &Output{
		RequestID:    req.ID,
		Status:       string(req.Status),
		CancelReason: req.CancelReason,
	}, nil
}
