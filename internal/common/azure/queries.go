// internal/common/azure/queries.go
package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/cognitiveservices/armcognitiveservices"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/models"
)

const (
	OpListSubscriptions   = "list subscriptions"
	OpListResourceGroups  = "list resource groups"
	OpListAccounts        = "list accounts"
	OpListDeployments     = "list deployments"
	OpListCommitmentPlans = "list commitment plans"
	OpDeleteDeployment    = "delete deployment"
)

// Every query below returns the items gathered before a failure along with the
// error, so callers can carry on with a partial view.

func (c *Client) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	client, err := armsubscriptions.NewClient(c.credential, c.clientOptions(c.versions.Resources))
	if err != nil {
		return nil, errors.NewTransportError(OpListSubscriptions, err)
	}

	subs, err := ListAll(ctx, c.logger, OpListSubscriptions, client.NewListPager(nil),
		func(p armsubscriptions.ClientListResponse) []*armsubscriptions.Subscription { return p.Value },
		notNil[armsubscriptions.Subscription],
	)

	out := make([]models.Subscription, 0, len(subs))
	for _, s := range subs {
		sub := models.Subscription{
			ID:          deref(s.SubscriptionID),
			DisplayName: deref(s.DisplayName),
		}
		if s.State != nil {
			sub.State = string(*s.State)
		}
		out = append(out, sub)
	}
	return out, err
}

func (c *Client) ListResourceGroups(ctx context.Context, subscriptionID string) ([]models.ResourceGroup, error) {
	client, err := armresources.NewResourceGroupsClient(subscriptionID, c.credential, c.clientOptions(c.versions.Resources))
	if err != nil {
		return nil, errors.NewTransportError(OpListResourceGroups, err)
	}

	groups, err := ListAll(ctx, c.logger, OpListResourceGroups, client.NewListPager(nil),
		func(p armresources.ResourceGroupsClientListResponse) []*armresources.ResourceGroup { return p.Value },
		notNil[armresources.ResourceGroup],
	)

	out := make([]models.ResourceGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.ResourceGroup{
			SubscriptionID: subscriptionID,
			Name:           deref(g.Name),
			Location:       deref(g.Location),
		})
	}
	return out, err
}

// ListAIServiceAccounts returns the resource group's accounts of kind OpenAI.
func (c *Client) ListAIServiceAccounts(ctx context.Context, subscriptionID, resourceGroup string) ([]models.Account, error) {
	client, err := armcognitiveservices.NewAccountsClient(subscriptionID, c.credential, c.clientOptions(c.versions.CognitiveServices))
	if err != nil {
		return nil, errors.NewTransportError(OpListAccounts, err)
	}

	accounts, err := ListAll(ctx, c.logger, OpListAccounts, client.NewListByResourceGroupPager(resourceGroup, nil),
		func(p armcognitiveservices.AccountsClientListByResourceGroupResponse) []*armcognitiveservices.Account {
			return p.Value
		},
		isOpenAIAccount,
	)

	out := make([]models.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, models.Account{
			SubscriptionID: subscriptionID,
			ResourceGroup:  resourceGroup,
			Name:           deref(a.Name),
			Kind:           deref(a.Kind),
			Location:       deref(a.Location),
		})
	}
	return out, err
}

// ListDeployments returns the account's ProvisionedManaged deployments.
func (c *Client) ListDeployments(ctx context.Context, subscriptionID, resourceGroup, account string) ([]models.Deployment, error) {
	client, err := armcognitiveservices.NewDeploymentsClient(subscriptionID, c.credential, c.clientOptions(c.versions.CognitiveServices))
	if err != nil {
		return nil, errors.NewTransportError(OpListDeployments, err)
	}

	deployments, err := ListAll(ctx, c.logger, OpListDeployments, client.NewListPager(resourceGroup, account, nil),
		func(p armcognitiveservices.DeploymentsClientListResponse) []*armcognitiveservices.Deployment {
			return p.Value
		},
		isProvisionedManaged,
	)

	out := make([]models.Deployment, 0, len(deployments))
	for _, d := range deployments {
		dep := models.Deployment{
			Name: deref(d.Name),
			SKU:  deref(d.SKU.Name),
		}
		if d.SKU.Capacity != nil {
			dep.Capacity = *d.SKU.Capacity
		}
		if d.Properties != nil && d.Properties.Model != nil {
			dep.Model = deref(d.Properties.Model.Name)
		}
		out = append(out, dep)
	}
	return out, err
}

// ListExpiredCommitmentPlans returns only the plans whose current period has
// ended and that will not renew. A plan missing its renewal flag or end date
// is a SCHEMA_ERROR.
func (c *Client) ListExpiredCommitmentPlans(ctx context.Context, subscriptionID, resourceGroup, account string) ([]models.CommitmentPlan, error) {
	client, err := armcognitiveservices.NewCommitmentPlansClient(subscriptionID, c.credential, c.clientOptions(c.versions.CognitiveServices))
	if err != nil {
		return nil, errors.NewTransportError(OpListCommitmentPlans, err)
	}

	now := c.clock.Now()
	plans, err := ListAll(ctx, c.logger, OpListCommitmentPlans, client.NewListPager(resourceGroup, account, nil),
		func(p armcognitiveservices.CommitmentPlansClientListResponse) []*armcognitiveservices.CommitmentPlan {
			return p.Value
		},
		func(p *armcognitiveservices.CommitmentPlan) (bool, error) {
			return expiredWithoutRenewal(p, now)
		},
	)

	out := make([]models.CommitmentPlan, 0, len(plans))
	for _, p := range plans {
		out = append(out, models.CommitmentPlan{
			Name:      deref(p.Name),
			AutoRenew: *p.Properties.AutoRenew,
			EndDate:   *p.Properties.Current.EndDate,
			Tier:      deref(p.Properties.Current.Tier),
		})
	}
	return out, err
}

func isOpenAIAccount(a *armcognitiveservices.Account) (bool, error) {
	if a == nil {
		return false, nil
	}
	if a.Kind == nil {
		return false, fmt.Errorf("account %q has no kind", deref(a.Name))
	}
	return *a.Kind == AccountKindOpenAI, nil
}

func isProvisionedManaged(d *armcognitiveservices.Deployment) (bool, error) {
	if d == nil {
		return false, nil
	}
	if d.SKU == nil || d.SKU.Name == nil {
		return false, fmt.Errorf("deployment %q has no sku.name", deref(d.Name))
	}
	return *d.SKU.Name == SKUProvisionedManaged, nil
}

func expiredWithoutRenewal(p *armcognitiveservices.CommitmentPlan, now time.Time) (bool, error) {
	if p == nil {
		return false, nil
	}
	name := deref(p.Name)
	if p.Properties == nil {
		return false, fmt.Errorf("commitment plan %q has no properties", name)
	}
	if p.Properties.Current == nil || p.Properties.Current.EndDate == nil {
		return false, fmt.Errorf("commitment plan %q has no properties.current.endDate", name)
	}
	expired, err := IsExpired(*p.Properties.Current.EndDate, now)
	if err != nil {
		return false, fmt.Errorf("commitment plan %q: %w", name, err)
	}
	if p.Properties.AutoRenew == nil {
		return false, fmt.Errorf("commitment plan %q has no properties.autoRenew", name)
	}
	return expired && !*p.Properties.AutoRenew, nil
}

func notNil[T any](item *T) (bool, error) {
	return item != nil, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
