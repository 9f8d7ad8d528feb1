// internal/inventory/inventory.go
package inventory

import (
	"context"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/models"
)

// Lister is the read-only slice of the management client used for discovery.
type Lister interface {
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
	ListResourceGroups(ctx context.Context, subscriptionID string) ([]models.ResourceGroup, error)
	ListAIServiceAccounts(ctx context.Context, subscriptionID, resourceGroup string) ([]models.Account, error)
	ListExpiredCommitmentPlans(ctx context.Context, subscriptionID, resourceGroup, account string) ([]models.CommitmentPlan, error)
}

type AccountEntry struct {
	models.Account
	ExpiredPlans []models.CommitmentPlan `json:"expiredPlans"`
}

// Report lists every OpenAI account reachable by the credential and the
// expired, non-renewing plans found on each.
type Report struct {
	Subscriptions  int               `json:"subscriptions"`
	ResourceGroups int               `json:"resourceGroups"`
	Accounts       []AccountEntry    `json:"accounts"`
	Errors         []models.RunError `json:"errors"`
}

// Expiring returns the accounts with at least one lapsed plan.
func (r *Report) Expiring() []AccountEntry {
	out := []AccountEntry{}
	for _, a := range r.Accounts {
		if len(a.ExpiredPlans) > 0 {
			out = append(out, a)
		}
	}
	return out
}

// Collect walks subscription, resource groups, accounts and plans. Listing
// failures are recorded and the walk continues with what was returned. When
// subscriptionID is set only that subscription is visited.
func Collect(ctx context.Context, l Lister, subscriptionID string, log logger.Logger) *Report {
	report := &Report{Accounts: []AccountEntry{}, Errors: []models.RunError{}}
	log = log.WithFields(map[string]interface{}{"component": "inventory"})

	record := func(operation string, err error) {
		log.WithError(err).Warn("inventory listing incomplete", map[string]interface{}{"operation": operation})
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.ErrCodeTransportError
		}
		report.Errors = append(report.Errors, models.RunError{Code: string(code), Operation: operation, Message: err.Error()})
	}

	var subscriptions []string
	if subscriptionID != "" {
		subscriptions = []string{subscriptionID}
	} else {
		subs, err := l.ListSubscriptions(ctx)
		if err != nil {
			record("list subscriptions", err)
		}
		for _, s := range subs {
			subscriptions = append(subscriptions, s.ID)
		}
	}
	report.Subscriptions = len(subscriptions)

	for _, sub := range subscriptions {
		groups, err := l.ListResourceGroups(ctx, sub)
		if err != nil {
			record("list resource groups", err)
		}
		report.ResourceGroups += len(groups)

		for _, rg := range groups {
			accounts, err := l.ListAIServiceAccounts(ctx, sub, rg.Name)
			if err != nil {
				record("list accounts", err)
			}

			for _, acct := range accounts {
				plans, err := l.ListExpiredCommitmentPlans(ctx, sub, rg.Name, acct.Name)
				if err != nil {
					record("list commitment plans", err)
				}
				if plans == nil {
					plans = []models.CommitmentPlan{}
				}
				report.Accounts = append(report.Accounts, AccountEntry{Account: acct, ExpiredPlans: plans})
			}
		}
	}

	log.Info("inventory collected", map[string]interface{}{
		"subscriptions":  report.Subscriptions,
		"resourceGroups": report.ResourceGroups,
		"accounts":       len(report.Accounts),
		"expiring":       len(report.Expiring()),
		"errors":         len(report.Errors),
	})
	return report
}
