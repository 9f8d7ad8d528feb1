package reapexpiredcommitments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/common/metrics"
	"commitment-reaper/internal/models"
)

const (
	TaskType = "reap-expired-commitments"
)

const (
	opAcquireToken = "acquire token"
	opListPlans    = "list commitment plans"
	opListDeploy   = "list deployments"
	opDelete       = "delete deployment"
	opPublish      = "publish report"
)

type Handler struct {
	config    *Config
	deps      Dependencies
	clock     clock.Clock
	executor  *Executor
	jobErrors *errors.JobErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, deps Dependencies, log logger.Logger) (*Handler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Credentials == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if deps.NewClient == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		deps:      deps,
		clock:     deps.Clock,
		executor:  NewExecutor(deps.Clock, deps.Observability, log),
		jobErrors: errors.NewJobErrorHandler(log),
		logger:    log,
	}, nil
}

// Handle runs one pass for a Zeebe job and completes it with the run report.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := parseInput(job.Variables)
	if err != nil {
		h.jobErrors.HandleJobError(context.Background(), client, job, errors.NewInvalidInputError(err))
		return
	}

	report := h.run(context.Background(), models.TriggerZeebe, h.dryRunFor(input))
	h.completeJob(client, job, newOutput(report))
}

func parseInput(variables string) (*Input, error) {
	var input Input
	if variables == "" {
		return &input, nil
	}
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return &input, nil
}

// dryRunFor lets a job force dry-run mode but never switch it off.
func (h *Handler) dryRunFor(input *Input) bool {
	if input != nil && input.DryRun != nil && *input.DryRun {
		return true
	}
	return h.config.DryRun
}

// Run performs one pass with the configured mode. It never fails: every
// failure resolves to an outcome in the returned report.
func (h *Handler) Run(ctx context.Context, trigger models.Trigger) *models.RunReport {
	return h.run(ctx, trigger, h.config.DryRun)
}

func (h *Handler) run(ctx context.Context, trigger models.Trigger, dryRun bool) *models.RunReport {
	ctx, cancel := context.WithTimeout(ctx, h.config.RunTimeout)
	defer cancel()

	report := &models.RunReport{
		RunID:          uuid.NewString(),
		Trigger:        trigger,
		StartedAt:      h.clock.Now().UTC(),
		DryRun:         dryRun,
		SubscriptionID: h.config.SubscriptionID,
		ResourceGroup:  h.config.ResourceGroup,
		AccountName:    h.config.AccountName,
		ExpiredPlans:   []models.CommitmentPlan{},
		Actions:        []models.DeploymentAction{},
		Errors:         []models.RunError{},
	}

	ctx, span := h.deps.Observability.StartSpan(ctx, "reaper.run",
		attribute.String("run.id", report.RunID),
		attribute.String("run.trigger", string(trigger)),
		attribute.Bool("run.dry_run", dryRun),
	)
	defer span.End()

	log := h.logger.WithFields(map[string]interface{}{
		"runId":   report.RunID,
		"trigger": string(trigger),
		"dryRun":  dryRun,
	})
	log.Info("run started", nil)

	report.Outcome = h.reap(ctx, log, report)
	report.FinishedAt = h.clock.Now().UTC()
	span.SetAttributes(attribute.String("run.outcome", string(report.Outcome)))

	simulated, deleted, failed := report.Counts()
	log.Info("run finished", map[string]interface{}{
		"outcome":      string(report.Outcome),
		"expiredPlans": len(report.ExpiredPlans),
		"simulated":    simulated,
		"deleted":      deleted,
		"failed":       failed,
		"errors":       len(report.Errors),
		"durationMs":   report.Duration().Milliseconds(),
	})

	h.record(ctx, report)
	h.publish(ctx, log, report)
	return report
}

func (h *Handler) reap(ctx context.Context, log logger.Logger, report *models.RunReport) models.RunOutcome {
	token, err := h.deps.Credentials.Acquire(ctx)
	if err != nil {
		log.WithError(err).Error("token acquisition failed, aborting run", nil)
		report.Errors = append(report.Errors, runError(opAcquireToken, err))
		return models.OutcomeAuthFailed
	}

	if err := h.config.ValidateTarget(); err != nil {
		log.WithError(err).Warn("target account not configured, nothing to do", nil)
		return models.OutcomeConfigMissing
	}

	sub, rg, account := h.config.SubscriptionID, h.config.ResourceGroup, h.config.AccountName
	api := h.deps.NewClient(token)
	outcome := models.OutcomeCompleted

	plans, err := api.ListExpiredCommitmentPlans(ctx, sub, rg, account)
	if err != nil {
		log.WithError(err).Warn("commitment plan listing incomplete", map[string]interface{}{"received": len(plans)})
		report.Errors = append(report.Errors, runError(opListPlans, err))
		outcome = models.OutcomePartial
	}
	report.ExpiredPlans = append(report.ExpiredPlans, plans...)

	if len(plans) == 0 {
		log.Info("no expired commitment plans without auto-renew", nil)
		return outcome
	}

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("run deadline reached, stopping", nil)
			report.Errors = append(report.Errors, runError(opListDeploy, err))
			return models.OutcomePartial
		}

		planLog := log.WithFields(map[string]interface{}{"plan": plan.Name, "endDate": plan.EndDate})
		planLog.Info("expired commitment plan without auto-renew", nil)

		deployments, err := api.ListDeployments(ctx, sub, rg, account)
		if err != nil {
			planLog.WithError(err).Warn("deployment listing incomplete", map[string]interface{}{"received": len(deployments)})
			report.Errors = append(report.Errors, runError(opListDeploy, err))
			outcome = models.OutcomePartial
		}

		for _, d := range deployments {
			action := h.executor.Delete(ctx, api, Target{
				SubscriptionID: sub,
				ResourceGroup:  rg,
				Account:        account,
				Plan:           plan.Name,
				Deployment:     d,
			}, report.DryRun)
			if action.Status == models.ActionFailed {
				report.Errors = append(report.Errors, models.RunError{
					Code:      string(errors.ErrCodeDeleteFailed),
					Operation: opDelete,
					Message:   action.Error,
				})
				outcome = models.OutcomePartial
			}
			report.Actions = append(report.Actions, action)
		}
	}

	return outcome
}

func (h *Handler) record(ctx context.Context, report *models.RunReport) {
	metrics.RunsTotal.WithLabelValues(string(report.Outcome), string(report.Trigger)).Inc()
	metrics.RunDuration.WithLabelValues(string(report.Outcome)).Observe(report.Duration().Seconds())
	metrics.LastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	h.deps.Observability.RecordRun(ctx, string(report.Outcome), string(report.Trigger), report.Duration())
}

// publish hands the report to the audit sink and, when something happened,
// to the notifiers. Failures are logged only.
func (h *Handler) publish(ctx context.Context, log logger.Logger, report *models.RunReport) {
	if h.deps.Validator != nil {
		if err := h.deps.Validator.Validate(report); err != nil {
			log.WithError(err).Error("run report rejected, not publishing", map[string]interface{}{"operation": opPublish})
			return
		}
	}

	if h.deps.Sink != nil {
		if err := h.deps.Sink.Record(ctx, report); err != nil {
			log.WithError(err).Error("failed to record run report", nil)
		}
	}

	if !report.Noteworthy() {
		return
	}
	for _, n := range h.deps.Notifiers {
		if err := n.Notify(ctx, report); err != nil {
			log.WithError(err).Error("failed to send run notification", nil)
		}
	}
}

func runError(operation string, err error) models.RunError {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrCodeTransportError
	}
	return models.RunError{Code: string(code), Operation: operation, Message: err.Error()}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}
