package reapexpiredcommitments

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"commitment-reaper/internal/common/auth"
	"commitment-reaper/internal/common/azure"
	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/models"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	testSub     = "00000000-0000-0000-0000-000000000001"
	testRG      = "rg-ai"
	testAccount = "aoai-east"
)

// ==========================
// Fakes
// ==========================

type fakeProvider struct {
	token azcore.AccessToken
	err   error
	calls int
}

func (p *fakeProvider) Acquire(context.Context) (azcore.AccessToken, error) {
	p.calls++
	return p.token, p.err
}

func validToken() *fakeProvider {
	return &fakeProvider{token: azcore.AccessToken{Token: "test-token", ExpiresOn: time.Now().Add(time.Hour)}}
}

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ListExpiredCommitmentPlans(ctx context.Context, sub, rg, account string) ([]models.CommitmentPlan, error) {
	args := m.Called(ctx, sub, rg, account)
	plans, _ := args.Get(0).([]models.CommitmentPlan)
	return plans, args.Error(1)
}

func (m *MockAPI) ListDeployments(ctx context.Context, sub, rg, account string) ([]models.Deployment, error) {
	args := m.Called(ctx, sub, rg, account)
	deployments, _ := args.Get(0).([]models.Deployment)
	return deployments, args.Error(1)
}

func (m *MockAPI) DeleteDeployment(ctx context.Context, sub, rg, account, deployment string) error {
	args := m.Called(ctx, sub, rg, account, deployment)
	return args.Error(0)
}

type recordingSink struct {
	reports []*models.RunReport
	err     error
}

func (s *recordingSink) Record(_ context.Context, report *models.RunReport) error {
	s.reports = append(s.reports, report)
	return s.err
}

type recordingNotifier struct {
	reports []*models.RunReport
}

func (n *recordingNotifier) Notify(_ context.Context, report *models.RunReport) error {
	n.reports = append(n.reports, report)
	return nil
}

type rejectingValidator struct{}

func (rejectingValidator) Validate(*models.RunReport) error {
	return errors.NewReportValidationFailedError("outcome: invalid")
}

// ==========================
// Test Helpers
// ==========================

func createValidConfig(dryRun bool) *Config {
	return &Config{
		DryRun:         dryRun,
		RunTimeout:     30 * time.Second,
		SubscriptionID: testSub,
		ResourceGroup:  testRG,
		AccountName:    testAccount,
	}
}

func mockClock() *clock.Mock {
	c := clock.NewMock()
	c.Set(testNow)
	return c
}

func staticFactory(api ManagementAPI, calls *int) ClientFactory {
	return func(azcore.AccessToken) ManagementAPI {
		if calls != nil {
			*calls++
		}
		return api
	}
}

func newTestHandler(t *testing.T, cfg *Config, deps Dependencies) (*Handler, *observer.ObservedLogs) {
	t.Helper()
	log, logs := logger.NewObserved(zapcore.DebugLevel)
	if deps.Clock == nil {
		deps.Clock = mockClock()
	}
	h, err := NewHandler(cfg, deps, log)
	require.NoError(t, err)
	return h, logs
}

func plans(names ...string) []models.CommitmentPlan {
	out := make([]models.CommitmentPlan, len(names))
	for i, n := range names {
		out[i] = models.CommitmentPlan{Name: n, AutoRenew: false, EndDate: "2024-05-01T00:00:00Z"}
	}
	return out
}

func ptuDeployments(names ...string) []models.Deployment {
	out := make([]models.Deployment, len(names))
	for i, n := range names {
		out[i] = models.Deployment{Name: n, SKU: azure.SKUProvisionedManaged, Capacity: 100, Model: "gpt-4o"}
	}
	return out
}

// armServer stands in for the management API: one page of commitment plans,
// one page of deployments, and DELETE on any deployment.
type armServer struct {
	server *httptest.Server

	mu      sync.Mutex
	lists   map[string]int
	deletes []string
}

func newARMServer(t *testing.T) *armServer {
	s := &armServer{lists: make(map[string]int)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.ToLower(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case r.Method == http.MethodDelete && strings.Contains(path, "/deployments/"):
			s.deletes = append(s.deletes, path[strings.LastIndex(path, "/")+1:])
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && strings.HasSuffix(path, "/commitmentplans"):
			s.lists["commitmentPlans"]++
			writeValue(w, []map[string]interface{}{
				armPlan("plan-lapsed", false, "2024-05-01T00:00:00Z"),
				armPlan("plan-renewing", true, "2024-05-01T00:00:00Z"),
				armPlan("plan-current", false, "2024-12-01T00:00:00Z"),
			})
		case r.Method == http.MethodGet && strings.HasSuffix(path, "/deployments"):
			s.lists["deployments"]++
			writeValue(w, []map[string]interface{}{
				armDeployment("gpt-4o-ptu", azure.SKUProvisionedManaged),
				armDeployment("gpt-4o-standard", "Standard"),
				armDeployment("gpt-4o-mini-ptu", azure.SKUProvisionedManaged),
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func writeValue(w http.ResponseWriter, items []map[string]interface{}) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": items})
}

func armPlan(name string, autoRenew bool, endDate string) map[string]interface{} {
	return map[string]interface{}{
		"name": name,
		"properties": map[string]interface{}{
			"autoRenew": autoRenew,
			"current":   map[string]interface{}{"endDate": endDate, "tier": "T1"},
		},
	}
}

func armDeployment(name, sku string) map[string]interface{} {
	return map[string]interface{}{
		"name": name,
		"sku":  map[string]interface{}{"name": sku, "capacity": 50},
		"properties": map[string]interface{}{
			"model": map[string]interface{}{"name": "gpt-4o", "format": "OpenAI"},
		},
	}
}

func (s *armServer) factory(t *testing.T) ClientFactory {
	return func(token azcore.AccessToken) ManagementAPI {
		return azure.NewClient(auth.NewStaticCredential(token), azure.Options{
			Endpoint:      s.server.URL + "/",
			Transport:     s.server.Client(),
			Clock:         mockClock(),
			PollFrequency: time.Millisecond,
			AllowHTTP:     true,
		}, logger.NewTestLogger(t))
	}
}

// ==========================
// Handler Creation Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	api := &MockAPI{}

	tests := []struct {
		name   string
		config *Config
		deps   Dependencies
		errMsg string
	}{
		{
			name:   "valid configuration",
			config: createValidConfig(true),
			deps:   Dependencies{Credentials: validToken(), NewClient: staticFactory(api, nil)},
		},
		{
			name:   "default config when nil",
			config: nil,
			deps:   Dependencies{Credentials: validToken(), NewClient: staticFactory(api, nil)},
		},
		{
			name:   "missing credential provider",
			config: createValidConfig(true),
			deps:   Dependencies{NewClient: staticFactory(api, nil)},
			errMsg: "credential provider is required",
		},
		{
			name:   "missing client factory",
			config: createValidConfig(true),
			deps:   Dependencies{Credentials: validToken()},
			errMsg: "client factory is required",
		},
		{
			name:   "invalid run timeout",
			config: &Config{DryRun: true, RunTimeout: 0},
			deps:   Dependencies{Credentials: validToken(), NewClient: staticFactory(api, nil)},
			errMsg: "run_timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, err := NewHandler(tt.config, tt.deps, logger.NewTestLogger(t))

			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, handler)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, handler.config)
			assert.NotNil(t, handler.executor)
			assert.NotNil(t, handler.clock)
		})
	}
}

// ==========================
// End-to-end Runs
// ==========================

func TestRun_DryRunSimulatesEveryProvisionedDeployment(t *testing.T) {
	arm := newARMServer(t)
	provider := validToken()
	h, logs := newTestHandler(t, createValidConfig(true), Dependencies{
		Credentials: provider,
		NewClient:   arm.factory(t),
	})

	report := h.Run(context.Background(), models.TriggerCLI)

	assert.Equal(t, models.OutcomeCompleted, report.Outcome)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, provider.calls)
	require.Len(t, report.ExpiredPlans, 1)
	assert.Equal(t, "plan-lapsed", report.ExpiredPlans[0].Name)

	assert.Equal(t, 2, logs.FilterMessage("simulated delete").Len())
	assert.Empty(t, arm.deletes, "dry run must not issue DELETE")

	require.Len(t, report.Actions, 2)
	assert.Equal(t, "gpt-4o-ptu", report.Actions[0].Deployment)
	assert.Equal(t, "gpt-4o-mini-ptu", report.Actions[1].Deployment)
	for _, a := range report.Actions {
		assert.Equal(t, models.ActionSimulated, a.Status)
		assert.Equal(t, "plan-lapsed", a.Plan)
		assert.Equal(t, testNow, a.At)
	}
	assert.Empty(t, report.Errors)
}

func TestRun_LiveModeDeletesProvisionedDeployments(t *testing.T) {
	arm := newARMServer(t)
	h, logs := newTestHandler(t, createValidConfig(false), Dependencies{
		Credentials: validToken(),
		NewClient:   arm.factory(t),
	})

	report := h.Run(context.Background(), models.TriggerSchedule)

	assert.Equal(t, models.OutcomeCompleted, report.Outcome)
	assert.Equal(t, []string{"gpt-4o-ptu", "gpt-4o-mini-ptu"}, arm.deletes)
	assert.Equal(t, 0, logs.FilterMessage("simulated delete").Len())
	_, deleted, failed := report.Counts()
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 0, failed)
}

func TestRun_ConfigGuardStopsBeforeAnyListing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		missing string
	}{
		{name: "empty resource group", mutate: func(c *Config) { c.ResourceGroup = "" }, missing: "AZURE_RESOURCE_GROUP_NAME"},
		{name: "empty subscription", mutate: func(c *Config) { c.SubscriptionID = "" }, missing: "AZURE_SUBSCRIPTION_ID"},
		{name: "empty account", mutate: func(c *Config) { c.AccountName = "" }, missing: "AZURE_OPENAI_SERVICE_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createValidConfig(true)
			tt.mutate(cfg)

			provider := validToken()
			api := &MockAPI{}
			factoryCalls := 0
			notifier := &recordingNotifier{}
			h, logs := newTestHandler(t, cfg, Dependencies{
				Credentials: provider,
				NewClient:   staticFactory(api, &factoryCalls),
				Notifiers:   []Notifier{notifier},
			})

			report := h.Run(context.Background(), models.TriggerSchedule)

			assert.Equal(t, models.OutcomeConfigMissing, report.Outcome)
			assert.Equal(t, 1, provider.calls, "token is acquired before validation")
			assert.Equal(t, 0, factoryCalls)
			api.AssertNotCalled(t, "ListExpiredCommitmentPlans", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

			entries := logs.FilterMessage("target account not configured, nothing to do").All()
			require.Len(t, entries, 1)
			assert.Contains(t, entries[0].ContextMap()["error"], tt.missing)
			assert.Empty(t, notifier.reports, "an unconfigured target is not worth a notification")
		})
	}
}

func TestRun_AuthFailureAbortsRun(t *testing.T) {
	provider := &fakeProvider{err: errors.NewAuthFailureError(stderrors.New("AADSTS7000215: invalid client secret"))}
	factoryCalls := 0
	notifier := &recordingNotifier{}
	h, logs := newTestHandler(t, createValidConfig(true), Dependencies{
		Credentials: provider,
		NewClient:   staticFactory(&MockAPI{}, &factoryCalls),
		Notifiers:   []Notifier{notifier},
	})

	report := h.Run(context.Background(), models.TriggerSchedule)

	assert.Equal(t, models.OutcomeAuthFailed, report.Outcome)
	assert.Equal(t, 0, factoryCalls)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, string(errors.ErrCodeAuthFailure), report.Errors[0].Code)
	assert.Equal(t, opAcquireToken, report.Errors[0].Operation)
	assert.Equal(t, 1, logs.FilterMessage("token acquisition failed, aborting run").Len())
	assert.Len(t, notifier.reports, 1)
}

// ==========================
// Orchestration with a mocked API
// ==========================

func TestRun_RefetchesDeploymentsPerPlan(t *testing.T) {
	api := &MockAPI{}
	api.On("ListExpiredCommitmentPlans", mock.Anything, testSub, testRG, testAccount).Return(plans("plan-a", "plan-b"), nil)
	api.On("ListDeployments", mock.Anything, testSub, testRG, testAccount).Return(ptuDeployments("ptu-1", "ptu-2"), nil)

	h, _ := newTestHandler(t, createValidConfig(true), Dependencies{
		Credentials: validToken(),
		NewClient:   staticFactory(api, nil),
	})

	report := h.Run(context.Background(), models.TriggerCLI)

	assert.Equal(t, models.OutcomeCompleted, report.Outcome)
	api.AssertNumberOfCalls(t, "ListDeployments", 2)
	api.AssertNotCalled(t, "DeleteDeployment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, report.Actions, 4)
	assert.Equal(t, "plan-a", report.Actions[0].Plan)
	assert.Equal(t, "plan-b", report.Actions[3].Plan)
}

func TestRun_NoExpiredPlans(t *testing.T) {
	api := &MockAPI{}
	api.On("ListExpiredCommitmentPlans", mock.Anything, testSub, testRG, testAccount).Return([]models.CommitmentPlan{}, nil)

	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	h, logs := newTestHandler(t, createValidConfig(true), Dependencies{
		Credentials: validToken(),
		NewClient:   staticFactory(api, nil),
		Sink:        sink,
		Notifiers:   []Notifier{notifier},
	})

	report := h.Run(context.Background(), models.TriggerSchedule)

	assert.Equal(t, models.OutcomeCompleted, report.Outcome)
	api.AssertNotCalled(t, "ListDeployments", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, logs.FilterMessage("no expired commitment plans without auto-renew").Len())
	assert.Len(t, sink.reports, 1, "every run is audited")
	assert.Empty(t, notifier.reports, "quiet runs are not notified")
}

func TestRun_LiveDeleteFailureIsNonFatal(t *testing.T) {
	api := &MockAPI{}
	api.On("ListExpiredCommitmentPlans", mock.Anything, testSub, testRG, testAccount).Return(plans("plan-a"), nil)
	api.On("ListDeployments", mock.Anything, testSub, testRG, testAccount).Return(ptuDeployments("ptu-1", "ptu-2"), nil)
	api.On("DeleteDeployment", mock.Anything, testSub, testRG, testAccount, "ptu-1").
		Return(errors.NewDeleteFailedError("ptu-1", stderrors.New("409 Conflict")))
	api.On("DeleteDeployment", mock.Anything, testSub, testRG, testAccount, "ptu-2").Return(nil)

	h, logs := newTestHandler(t, createValidConfig(false), Dependencies{
		Credentials: validToken(),
		NewClient:   staticFactory(api, nil),
	})

	report := h.Run(context.Background(), models.TriggerSchedule)

	api.AssertExpectations(t)
	assert.Equal(t, models.OutcomePartial, report.Outcome)
	require.Len(t, report.Actions, 2)
	assert.Equal(t, models.ActionFailed, report.Actions[0].Status)
	assert.Contains(t, report.Actions[0].Error, "409 Conflict")
	assert.Equal(t, models.ActionDeleted, report.Actions[1].Status)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, string(errors.ErrCodeDeleteFailed), report.Errors[0].Code)
	assert.Equal(t, 1, logs.FilterMessage("deployment delete failed").Len())
}

func TestRun_PartialListingsAreStillActedOn(t *testing.T) {
	api := &MockAPI{}
	api.On("ListExpiredCommitmentPlans", mock.Anything, testSub, testRG, testAccount).
		Return(plans("plan-a"), errors.NewTransportError("list commitment plans", stderrors.New("502 Bad Gateway")))
	api.On("ListDeployments", mock.Anything, testSub, testRG, testAccount).
		Return(ptuDeployments("ptu-1"), errors.NewSchemaError("list deployments", stderrors.New("missing sku")))

	h, logs := newTestHandler(t, createValidConfig(true), Dependencies{
		Credentials: validToken(),
		NewClient:   staticFactory(api, nil),
	})

	report := h.Run(context.Background(), models.TriggerSchedule)

	assert.Equal(t, models.OutcomePartial, report.Outcome)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, string(errors.ErrCodeTransportError), report.Errors[0].Code)
	assert.Equal(t, string(errors.ErrCodeSchemaError), report.Errors[1].Code)
	assert.Len(t, report.Actions, 1)
	assert.Equal(t, 1, logs.FilterMessage("simulated delete").Len())
}

// ==========================
// Publishing
// ==========================

func TestRun_PublishesNoteworthyReports(t *testing.T) {
	api := &MockAPI{}
	api.On("ListExpiredCommitmentPlans", mock.Anything, testSub, testRG, testAccount).Return(plans("plan-a"), nil)
	api.On("ListDeployments", mock.Anything, testSub, testRG, testAccount).Return(ptuDeployments("ptu-1"), nil)

	sink := &recordingSink{err: errors.NewAuditWriteFailedError("postgres", stderrors.New("connection reset"))}
	notifier := &recordingNotifier{}
	h, logs := newTestHandler(t, createValidConfig(true), Dependencies{
		Credentials: validToken(),
		NewClient:   staticFactory(api, nil),
		Sink:        sink,
		Notifiers:   []Notifier{notifier},
	})

	report := h.Run(context.Background(), models.TriggerSchedule)

	require.Len(t, sink.reports, 1)
	assert.Same(t, report, sink.reports[0])
	assert.Equal(t, 1, logs.FilterMessage("failed to record run report").Len())
	require.Len(t, notifier.reports, 1, "sink failures do not block notifications")
}

func TestRun_InvalidReportIsNotPublished(t *testing.T) {
	api := &MockAPI{}
	api.On("ListExpiredCommitmentPlans", mock.Anything, testSub, testRG, testAccount).Return(plans("plan-a"), nil)
	api.On("ListDeployments", mock.Anything, testSub, testRG, testAccount).Return(ptuDeployments("ptu-1"), nil)

	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	h, logs := newTestHandler(t, createValidConfig(true), Dependencies{
		Credentials: validToken(),
		NewClient:   staticFactory(api, nil),
		Sink:        sink,
		Notifiers:   []Notifier{notifier},
		Validator:   rejectingValidator{},
	})

	h.Run(context.Background(), models.TriggerSchedule)

	assert.Empty(t, sink.reports)
	assert.Empty(t, notifier.reports)
	assert.Equal(t, 1, logs.FilterMessage("run report rejected, not publishing").Len())
}

// ==========================
// Job Input Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	tests := []struct {
		name      string
		variables string
		wantErr   bool
		dryRun    *bool
	}{
		{name: "empty variables", variables: ""},
		{name: "no dry run flag", variables: `{"other":"value"}`},
		{name: "dry run forced", variables: `{"dryRun":true}`, dryRun: boolPtr(true)},
		{name: "dry run off", variables: `{"dryRun":false}`, dryRun: boolPtr(false)},
		{name: "malformed", variables: `{"dryRun":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := parseInput(tt.variables)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "parse input")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dryRun, input.DryRun)
		})
	}
}

func TestHandler_JobCanOnlyForceDryRun(t *testing.T) {
	tests := []struct {
		name     string
		liveMode bool
		input    *Input
		want     bool
	}{
		{name: "live config, no override", liveMode: true, input: &Input{}, want: false},
		{name: "live config, forced dry run", liveMode: true, input: &Input{DryRun: boolPtr(true)}, want: true},
		{name: "dry config, job asks for live", liveMode: false, input: &Input{DryRun: boolPtr(false)}, want: true},
		{name: "dry config, nil input", liveMode: false, input: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, createValidConfig(!tt.liveMode), Dependencies{
				Credentials: validToken(),
				NewClient:   staticFactory(&MockAPI{}, nil),
			})
			assert.Equal(t, tt.want, h.dryRunFor(tt.input))
		})
	}
}

func TestNewOutput(t *testing.T) {
	report := &models.RunReport{
		RunID:   "run-1",
		Outcome: models.OutcomePartial,
		Actions: []models.DeploymentAction{
			{Status: models.ActionDeleted},
			{Status: models.ActionFailed},
			{Status: models.ActionDeleted},
		},
	}

	out := newOutput(report)

	assert.Equal(t, "partial", out.Outcome)
	assert.Equal(t, 0, out.Simulated)
	assert.Equal(t, 2, out.Deleted)
	assert.Equal(t, 1, out.Failed)
	assert.Same(t, report, out.Report)
}

func boolPtr(b bool) *bool { return &b }
