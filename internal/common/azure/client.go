// internal/common/azure/client.go
package azure

import (
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/benbjohnson/clock"

	"commitment-reaper/internal/common/config"
	"commitment-reaper/internal/common/logger"
)

const (
	AccountKindOpenAI     = "OpenAI"
	SKUProvisionedManaged = "ProvisionedManaged"

	defaultPollFrequency       = 10 * time.Second
	defaultResourcesAPIVersion = "2022-12-01"
	defaultCognitiveAPIVersion = "2023-05-01"
	defaultManagementEndpoint  = "https://management.azure.com/"
	telemetryApplicationID     = "commitment-reaper"
)

// APIVersions pins the api-version query parameter per resource provider.
type APIVersions struct {
	Resources         string
	CognitiveServices string
}

// Options configures a Client. Zero values take production defaults.
type Options struct {
	Endpoint      string
	Transport     policy.Transporter
	MaxRetries    int
	APIVersions   APIVersions
	PollFrequency time.Duration
	Clock         clock.Clock

	// AllowHTTP permits bearer tokens over plain http; only test servers need it.
	AllowHTTP bool
}

// OptionsFromConfig maps the azure config section onto Options.
func OptionsFromConfig(cfg config.AzureConfig, transport policy.Transporter) Options {
	return Options{
		Endpoint:   cfg.ManagementEndpoint,
		Transport:  transport,
		MaxRetries: cfg.MaxRetries,
		APIVersions: APIVersions{
			Resources:         cfg.APIVersions.Resources,
			CognitiveServices: cfg.APIVersions.CognitiveServices,
		},
	}
}

// Client issues the management-plane calls of one run with one credential.
type Client struct {
	credential    azcore.TokenCredential
	base          arm.ClientOptions
	versions      APIVersions
	pollFrequency time.Duration
	clock         clock.Clock
	logger        logger.Logger
}

func NewClient(cred azcore.TokenCredential, opts Options, log logger.Logger) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultManagementEndpoint
	}
	if opts.APIVersions.Resources == "" {
		opts.APIVersions.Resources = defaultResourcesAPIVersion
	}
	if opts.APIVersions.CognitiveServices == "" {
		opts.APIVersions.CognitiveServices = defaultCognitiveAPIVersion
	}
	if opts.PollFrequency == 0 {
		opts.PollFrequency = defaultPollFrequency
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	// azcore treats 0 as "use the default of 3"; negative disables retries.
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}

	base := arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Cloud: cloud.Configuration{
				Services: map[cloud.ServiceName]cloud.ServiceConfiguration{
					cloud.ResourceManager: {
						Endpoint: opts.Endpoint,
						Audience: strings.TrimSuffix(opts.Endpoint, "/"),
					},
				},
			},
			Retry:                           policy.RetryOptions{MaxRetries: int32(maxRetries)},
			Telemetry:                       policy.TelemetryOptions{ApplicationID: telemetryApplicationID},
			InsecureAllowCredentialWithHTTP: opts.AllowHTTP,
		},
		DisableRPRegistration: true,
	}
	if opts.Transport != nil {
		base.Transport = opts.Transport
	}

	return &Client{
		credential:    cred,
		base:          base,
		versions:      opts.APIVersions,
		pollFrequency: opts.PollFrequency,
		clock:         opts.Clock,
		logger:        log.WithFields(map[string]interface{}{"component": "azure"}),
	}
}

// clientOptions returns a copy of the base options pinned to apiVersion.
func (c *Client) clientOptions(apiVersion string) *arm.ClientOptions {
	opts := c.base
	opts.APIVersion = apiVersion
	return &opts
}

// Now is the client's notion of the current instant.
func (c *Client) Now() time.Time {
	return c.clock.Now()
}
