// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// JobErrorHandler resolves a failed Zeebe job: retryable errors fail the job
// so the broker retries it, everything else is thrown as a BPMN error.
type JobErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewJobErrorHandler(logger Logger) *JobErrorHandler {
	return &JobErrorHandler{logger: logger}
}

// HandleJobError handles any error in a worker job
func (h *JobErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := normalizeError(err)
	retry, remaining := retryDecision(stdErr, job.Retries)

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"message":          stdErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retriesLeft":      remaining,
		"workflowInstance": job.ProcessInstanceKey,
	})

	var sendErr error
	if retry {
		sendErr = h.failJob(ctx, client, job, stdErr, remaining)
	} else {
		sendErr = h.throwError(ctx, client, job, stdErr)
	}
	if sendErr != nil {
		h.logger.Error("failed to resolve job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
}

// normalizeError ensures we always have a StandardError
func normalizeError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// retryDecision returns whether the job should go back to the broker and the
// retries it should carry.
func retryDecision(stdErr *StandardError, jobRetries int32) (bool, int32) {
	if !stdErr.Retryable || jobRetries <= 1 {
		return false, 0
	}
	return true, jobRetries - 1
}

func errorVariables(stdErr *StandardError) string {
	vars, err := json.Marshal(map[string]interface{}{
		"errorCode":    string(stdErr.Code),
		"errorMessage": stdErr.Message,
		"errorDetails": stdErr.Details,
	})
	if err != nil {
		return "{}"
	}
	return string(vars)
}

func (h *JobErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *StandardError, retries int32) error {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(stdErr.Error())

	withVars, err := cmd.VariablesFromString(errorVariables(stdErr))
	if err != nil {
		_, err = cmd.Send(ctx)
		return err
	}
	_, err = withVars.Send(ctx)
	return err
}

func (h *JobErrorHandler) throwError(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *StandardError) error {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(string(stdErr.Code)).
		ErrorMessage(stdErr.Error())

	withVars, err := cmd.VariablesFromString(errorVariables(stdErr))
	if err != nil {
		_, err = cmd.Send(ctx)
		return err
	}
	_, err = withVars.Send(ctx)
	return err
}
