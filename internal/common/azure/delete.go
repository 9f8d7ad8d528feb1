// internal/common/azure/delete.go
package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/cognitiveservices/armcognitiveservices"

	"commitment-reaper/internal/common/errors"
)

// DeleteDeployment removes one deployment and waits for the operation to finish.
func (c *Client) DeleteDeployment(ctx context.Context, subscriptionID, resourceGroup, account, deployment string) error {
	client, err := armcognitiveservices.NewDeploymentsClient(subscriptionID, c.credential, c.clientOptions(c.versions.CognitiveServices))
	if err != nil {
		return errors.NewDeleteFailedError(deployment, err)
	}

	poller, err := client.BeginDelete(ctx, resourceGroup, account, deployment, nil)
	if err != nil {
		return errors.NewDeleteFailedError(deployment, err)
	}

	if _, err := poller.PollUntilDone(ctx, &runtime.PollUntilDoneOptions{Frequency: c.pollFrequency}); err != nil {
		return errors.NewDeleteFailedError(deployment, err)
	}

	c.logger.Info("deployment deleted", map[string]interface{}{
		"subscriptionId": subscriptionID,
		"resourceGroup":  resourceGroup,
		"account":        account,
		"deployment":     deployment,
	})
	return nil
}
