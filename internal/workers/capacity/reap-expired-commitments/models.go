package reapexpiredcommitments

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/benbjohnson/clock"

	"commitment-reaper/internal/common/auth"
	"commitment-reaper/internal/common/observability"
	"commitment-reaper/internal/models"
)

// Input is the job payload. It can only tighten a run into dry-run mode;
// live deletion is decided by configuration alone.
type Input struct {
	DryRun *bool `json:"dryRun,omitempty"`
}

type Output struct {
	RunID     string            `json:"runId"`
	Outcome   string            `json:"outcome"`
	Simulated int               `json:"simulated"`
	Deleted   int               `json:"deleted"`
	Failed    int               `json:"failed"`
	Report    *models.RunReport `json:"report"`
}

func newOutput(report *models.RunReport) *Output {
	simulated, deleted, failed := report.Counts()
	return &Output{
		RunID:     report.RunID,
		Outcome:   string(report.Outcome),
		Simulated: simulated,
		Deleted:   deleted,
		Failed:    failed,
		Report:    report,
	}
}

// ManagementAPI is the slice of the management client a run needs.
type ManagementAPI interface {
	ListExpiredCommitmentPlans(ctx context.Context, subscriptionID, resourceGroup, account string) ([]models.CommitmentPlan, error)
	ListDeployments(ctx context.Context, subscriptionID, resourceGroup, account string) ([]models.Deployment, error)
	DeploymentDeleter
}

type DeploymentDeleter interface {
	DeleteDeployment(ctx context.Context, subscriptionID, resourceGroup, account, deployment string) error
}

// ClientFactory binds a management client to the token of one run.
type ClientFactory func(token azcore.AccessToken) ManagementAPI

type ReportSink interface {
	Record(ctx context.Context, report *models.RunReport) error
}

type Notifier interface {
	Notify(ctx context.Context, report *models.RunReport) error
}

type ReportValidator interface {
	Validate(report *models.RunReport) error
}

// Dependencies are the collaborators of a Handler. Sink, Notifiers, Validator
// and Observability are optional.
type Dependencies struct {
	Credentials   auth.Provider
	NewClient     ClientFactory
	Sink          ReportSink
	Notifiers     []Notifier
	Validator     ReportValidator
	Clock         clock.Clock
	Observability *observability.Observability
}
