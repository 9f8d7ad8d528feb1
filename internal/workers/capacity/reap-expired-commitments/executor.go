package reapexpiredcommitments

import (
	"context"

	"github.com/benbjohnson/clock"

	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/common/metrics"
	"commitment-reaper/internal/common/observability"
	"commitment-reaper/internal/models"
)

// Target addresses one deployment picked for removal.
type Target struct {
	SubscriptionID string
	ResourceGroup  string
	Account        string
	Plan           string
	Deployment     models.Deployment
}

func (t Target) fields() map[string]interface{} {
	return map[string]interface{}{
		"subscriptionId": t.SubscriptionID,
		"resourceGroup":  t.ResourceGroup,
		"account":        t.Account,
		"plan":           t.Plan,
		"deployment":     t.Deployment.Name,
		"sku":            t.Deployment.SKU,
	}
}

// Executor removes deployments, or only reports them in dry-run mode.
type Executor struct {
	clock  clock.Clock
	obs    *observability.Observability
	logger logger.Logger
}

func NewExecutor(clk clock.Clock, obs *observability.Observability, log logger.Logger) *Executor {
	if clk == nil {
		clk = clock.New()
	}
	return &Executor{
		clock:  clk,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Delete never returns an error; a failed delete is logged and reported in the action.
func (e *Executor) Delete(ctx context.Context, api DeploymentDeleter, target Target, dryRun bool) models.DeploymentAction {
	action := models.DeploymentAction{
		Plan:       target.Plan,
		Deployment: target.Deployment.Name,
		SKU:        target.Deployment.SKU,
		Model:      target.Deployment.Model,
		DryRun:     dryRun,
	}

	if dryRun {
		e.logger.Info("simulated delete", target.fields())
		action.Status = models.ActionSimulated
	} else if err := api.DeleteDeployment(ctx, target.SubscriptionID, target.ResourceGroup, target.Account, target.Deployment.Name); err != nil {
		e.logger.WithError(err).Error("deployment delete failed", target.fields())
		action.Status = models.ActionFailed
		action.Error = err.Error()
	} else {
		e.logger.Info("deployment removed", target.fields())
		action.Status = models.ActionDeleted
	}

	action.At = e.clock.Now().UTC()
	metrics.DeploymentActions.WithLabelValues(string(action.Status)).Inc()
	e.obs.RecordAction(ctx, string(action.Status))
	return action
}
