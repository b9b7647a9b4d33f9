package analyzeconversation

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
	"service-dispatch/internal/conversation/complexity"
	"service-dispatch/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "analyze-conversation"

// Evaluator scores a conversation and routes it to an agent when needed.
type Evaluator interface {
	Evaluate(ctx context.Context, conv models.Conversation) (complexity.Assessment, bool, error)
}

type Handler struct {
	config    *camunda.HandlerConfig
	evaluator Evaluator
	validator *validation.Validator
	runner    *camunda.JobRunner
	logger    logger.Logger
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *camunda.HandlerConfig
	Evaluator     Evaluator
	Validator     *validation.Validator
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg, err := camunda.HandlerConfigFor(opts.AppConfig, TaskType, opts.CustomConfig)
	if err != nil {
		return nil, err
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("%s: evaluator is required", TaskType)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"worker": TaskType})

	return &Handler{
		config:    cfg,
		evaluator: opts.Evaluator,
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

// Execute never touches request dispatch state.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	assessment, routed, err := h.evaluator.Evaluate(ctx, input.Conversation)
	if err != nil {
		return nil, err
	}
	if routed {
		h.logger.Info("conversation handed to agent", map[string]interface{}{
			"conversationId": input.Conversation.ID,
			"trigger":        assessment.Trigger,
			"score":          assessment.Score,
		})
	}
	return &Output{Assessment: assessment, Routed: routed}, nil
}
