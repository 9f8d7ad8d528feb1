// internal/models/resources.go
package models

type Subscription struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	State       string `json:"state"`
}

type ResourceGroup struct {
	SubscriptionID string `json:"subscriptionId"`
	Name           string `json:"name"`
	Location       string `json:"location"`
}

// Account is a Cognitive Services account addressed by its nested collections.
type Account struct {
	SubscriptionID string `json:"subscriptionId"`
	ResourceGroup  string `json:"resourceGroup"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Location       string `json:"location,omitempty"`
}

type Deployment struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Capacity int32  `json:"capacity,omitempty"`
	Model    string `json:"model,omitempty"`
}

// CommitmentPlan carries the fields the expiry decision reads.
type CommitmentPlan struct {
	Name      string `json:"name"`
	AutoRenew bool   `json:"autoRenew"`
	EndDate   string `json:"endDate"`
	Tier      string `json:"tier,omitempty"`
}
