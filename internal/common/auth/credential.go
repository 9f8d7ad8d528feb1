// internal/common/auth/credential.go
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"commitment-reaper/internal/common/config"
	"commitment-reaper/internal/common/errors"
)

// Provider obtains a bearer token for the management API.
type Provider interface {
	Acquire(ctx context.Context) (azcore.AccessToken, error)
}

type credentialFactory func(tenantID, clientID, secret string, opts *azidentity.ClientSecretCredentialOptions) (azcore.TokenCredential, error)

func newClientSecretCredential(tenantID, clientID, secret string, opts *azidentity.ClientSecretCredentialOptions) (azcore.TokenCredential, error) {
	return azidentity.NewClientSecretCredential(tenantID, clientID, secret, opts)
}

// ClientSecretProvider runs the client-credentials grant against Entra ID.
// Each Acquire builds a new credential, so nothing is cached between runs.
type ClientSecretProvider struct {
	tenantID     string
	clientID     string
	clientSecret string
	scope        string
	options      *azidentity.ClientSecretCredentialOptions

	newCredential credentialFactory
}

// NewClientSecretProvider builds a provider for cfg. transport may be nil.
func NewClientSecretProvider(cfg config.AzureConfig, transport policy.Transporter) *ClientSecretProvider {
	opts := &azidentity.ClientSecretCredentialOptions{
		ClientOptions: azcore.ClientOptions{
			Cloud: cloud.Configuration{
				ActiveDirectoryAuthorityHost: cfg.AuthorityHost,
				Services: map[cloud.ServiceName]cloud.ServiceConfiguration{
					cloud.ResourceManager: {
						Endpoint: cfg.ManagementEndpoint,
						Audience: strings.TrimSuffix(cfg.ManagementEndpoint, "/"),
					},
				},
			},
		},
	}
	if transport != nil {
		opts.ClientOptions.Transport = transport
	}

	return &ClientSecretProvider{
		tenantID:      cfg.TenantID,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		scope:         ManagementScope(cfg.ManagementEndpoint),
		options:       opts,
		newCredential: newClientSecretCredential,
	}
}

// ManagementScope returns the .default scope for a management endpoint.
func ManagementScope(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/") + "/.default"
}

// Acquire exchanges the client secret for a token. Every failure is an AUTH_FAILURE.
func (p *ClientSecretProvider) Acquire(ctx context.Context) (azcore.AccessToken, error) {
	var missing []string
	if p.tenantID == "" {
		missing = append(missing, "tenant id")
	}
	if p.clientID == "" {
		missing = append(missing, "client id")
	}
	if p.clientSecret == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return azcore.AccessToken{}, errors.NewAuthFailureError(
			fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}

	cred, err := p.newCredential(p.tenantID, p.clientID, p.clientSecret, p.options)
	if err != nil {
		return azcore.AccessToken{}, errors.NewAuthFailureError(fmt.Errorf("build credential: %w", err))
	}

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.scope}})
	if err != nil {
		return azcore.AccessToken{}, errors.NewAuthFailureError(err)
	}
	if token.Token == "" {
		return azcore.AccessToken{}, errors.NewAuthFailureError(fmt.Errorf("token response carried no access token"))
	}

	return token, nil
}

// StaticCredential hands the same token to every request in a run.
type StaticCredential struct {
	token azcore.AccessToken
}

func NewStaticCredential(token azcore.AccessToken) *StaticCredential {
	return &StaticCredential{token: token}
}

func (c *StaticCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return c.token, nil
}
