package camunda

import (
	"context"
	"fmt"
	"time"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/metrics"
	"service-dispatch/internal/common/observability"
	"service-dispatch/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// DecodeVariables checks the job variables against the activity schema for
// taskType and decodes them into out.
func DecodeVariables(job entities.Job, v *validation.Validator, taskType string, out interface{}) error {
	vars, err := job.GetVariablesAsMap()
	if err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("job variables are not a JSON object: %v", err))
	}
	if v != nil {
		if err := v.Validate(taskType, vars); err != nil {
			return err
		}
	}
	if err := job.GetVariablesAs(out); err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("decode job variables: %v", err))
	}
	return nil
}

// JobRunner holds what every task handler needs to finish a job.
type JobRunner struct {
	TaskType string
	Errors   *apperrors.ErrorHandler
	Obs      *observability.Observability
	Logger   logger.Logger
}

// Finish completes the job with vars, or hands err to the error handler.
// It records the job metrics either way.
func (r *JobRunner) Finish(ctx context.Context, client worker.JobClient, job entities.Job, started time.Time, vars map[string]interface{}, err error) {
	if err != nil {
		code := string(apperrors.FromError(err).Code)
		metrics.RecordJob(r.TaskType, started, code)
		r.Obs.RecordJob(ctx, r.TaskType, time.Since(started), "failed")
		r.Errors.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, cmdErr := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromMap(vars)
	if cmdErr != nil {
		r.Logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  cmdErr.Error(),
			"worker": r.TaskType,
		})
		return
	}
	if _, sendErr := cmd.Send(ctx); sendErr != nil {
		r.Logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  sendErr.Error(),
			"worker": r.TaskType,
		})
		return
	}

	metrics.RecordJob(r.TaskType, started, "")
	r.Obs.RecordJob(ctx, r.TaskType, time.Since(started), "completed")
	r.Logger.Debug("job completed", map[string]interface{}{
		"jobKey": job.GetKey(),
		"worker": r.TaskType,
	})
}
