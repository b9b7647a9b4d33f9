package providerreply

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
	"service-dispatch/internal/dispatch/response"
	"service-dispatch/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "provider-reply"

// ReplyHandler applies an inbound provider message.
type ReplyHandler interface {
	OnReply(ctx context.Context, channelID, text string) (*response.Outcome, error)
}

type Handler struct {
	config    *camunda.HandlerConfig
	replies   ReplyHandler
	validator *validation.Validator
	runner    *camunda.JobRunner
	logger    logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *camunda.HandlerConfig
	Replies       ReplyHandler
	Validator     *validation.Validator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg, err := camunda.HandlerConfigFor(opts.AppConfig, TaskType, opts.CustomConfig)
	if err != nil {
		return nil, err
	}
	if opts.Replies == nil {
		return nil, fmt.Errorf("%s: reply handler is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:    cfg,
		replies:   opts.Replies,
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
	if err := h.decode(job, &input); err != nil {
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

func (h *Handler) decode(job entities.Job, input *Input) error {
	return camunda.DecodeVariables(job, h.validator, TaskType, input)
}

// Execute applies the reply. A lost race or a closed request is a normal outcome
// for the process: the provider has been told, so the job completes with
// Conflict set instead of failing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := h.replies.OnReply(ctx, input.ChannelID, input.Text)
	if outcome == nil {
		if err == nil {
			err = fmt.Errorf("reply on %s produced no outcome", input.ChannelID)
		}
		return nil, err
	}

	out := fromOutcome(outcome)
	if err != nil {
		if !coordinator.IsConflict(err) {
			return nil, err
		}
		out.Conflict = true
		out.ErrorCode = string(apperrors.FromError(err).Code)
		h.logger.Info("reply lost the assignment", map[string]interface{}{
			"requestId":  out.RequestID,
			"providerId": out.ProviderID,
			"errorCode":  out.ErrorCode,
		})
		return out, nil
	}

	out.Assigned = outcome.Decision == models.DecisionAccept && outcome.Status == models.StatusAssigned
	return out, nil
}

func (h *Handler) GetTaskType() string {
	return TaskType
}
