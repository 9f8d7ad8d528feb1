// internal/models/report.go
package models

import "time"

type RunOutcome string

const (
	OutcomeCompleted     RunOutcome = "completed"
	OutcomePartial       RunOutcome = "partial"
	OutcomeConfigMissing RunOutcome = "config_missing"
	OutcomeAuthFailed    RunOutcome = "auth_failed"
	OutcomeSkipped       RunOutcome = "skipped"
)

type ActionStatus string

const (
	ActionSimulated ActionStatus = "simulated"
	ActionDeleted   ActionStatus = "deleted"
	ActionFailed    ActionStatus = "failed"
)

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerCLI      Trigger = "cli"
	TriggerZeebe    Trigger = "zeebe"
)

// DeploymentAction records what happened to one deployment in a run.
type DeploymentAction struct {
	Plan       string       `json:"plan"`
	Deployment string       `json:"deployment"`
	SKU        string       `json:"sku"`
	Model      string       `json:"model,omitempty"`
	DryRun     bool         `json:"dryRun"`
	Status     ActionStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	At         time.Time    `json:"at"`
}

type RunError struct {
	Code      string `json:"code"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
}

// RunReport is the observable result of one pass.
type RunReport struct {
	RunID          string             `json:"runId"`
	Trigger        Trigger            `json:"trigger"`
	StartedAt      time.Time          `json:"startedAt"`
	FinishedAt     time.Time          `json:"finishedAt"`
	Outcome        RunOutcome         `json:"outcome"`
	DryRun         bool               `json:"dryRun"`
	SubscriptionID string             `json:"subscriptionId"`
	ResourceGroup  string             `json:"resourceGroup"`
	AccountName    string             `json:"accountName"`
	ExpiredPlans   []CommitmentPlan   `json:"expiredPlans"`
	Actions        []DeploymentAction `json:"actions"`
	Errors         []RunError         `json:"errors"`
}

// Counts tallies actions by status.
func (r *RunReport) Counts() (simulated, deleted, failed int) {
	for _, a := range r.Actions {
		switch a.Status {
		case ActionSimulated:
			simulated++
		case ActionDeleted:
			deleted++
		case ActionFailed:
			failed++
		}
	}
	return simulated, deleted, failed
}

// Noteworthy reports whether the run touched a deployment or hit an error.
func (r *RunReport) Noteworthy() bool {
	return len(r.Actions) > 0 || len(r.Errors) > 0 || r.Outcome == OutcomeAuthFailed
}

func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
