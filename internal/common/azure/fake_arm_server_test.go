package azure

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"commitment-reaper/internal/common/auth"
	"commitment-reaper/internal/common/logger"
)

const (
	testSub     = "00000000-0000-0000-0000-000000000001"
	testRG      = "rg-ai"
	testAccount = "aoai-east"
	testToken   = "test-token"
)

func accountPath() string {
	return "/subscriptions/" + testSub + "/resourceGroups/" + testRG +
		"/providers/Microsoft.CognitiveServices/accounts/" + testAccount
}

type recordedRequest struct {
	Method     string
	Path       string
	APIVersion string
	Auth       string
}

// fakeARM serves canned pages keyed by "METHOD path?skiptoken". A page that
// sets next gets a nextLink pointing back at the server with that skiptoken.
type fakeARM struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	routes   map[string]fakeResponse
	requests []recordedRequest
}

type fakeResponse struct {
	status int
	body   interface{}
	raw    string
	next   string
}

func newFakeARM(t *testing.T) *fakeARM {
	f := &fakeARM{t: t, routes: make(map[string]fakeResponse)}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func routeKey(method, path, skiptoken string) string {
	return method + " " + strings.ToLower(path) + "?" + skiptoken
}

func (f *fakeARM) page(path, skiptoken string, items []map[string]interface{}, next string) {
	f.routes[routeKey(http.MethodGet, path, skiptoken)] = fakeResponse{
		status: http.StatusOK,
		body:   map[string]interface{}{"value": items},
		next:   next,
	}
}

func (f *fakeARM) fail(method, path, skiptoken string, status int) {
	f.routes[routeKey(method, path, skiptoken)] = fakeResponse{
		status: status,
		body: map[string]interface{}{
			"error": map[string]interface{}{"code": "ResourceNotFound", "message": "gone"},
		},
	}
}

func (f *fakeARM) rawBody(path, skiptoken, raw string) {
	f.routes[routeKey(http.MethodGet, path, skiptoken)] = fakeResponse{status: http.StatusOK, raw: raw}
}

func (f *fakeARM) respond(method, path string, status int) {
	f.routes[routeKey(method, path, "")] = fakeResponse{status: status}
}

func (f *fakeARM) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		APIVersion: r.URL.Query().Get("api-version"),
		Auth:       r.Header.Get("Authorization"),
	})
	resp, ok := f.routes[routeKey(r.Method, r.URL.Path, r.URL.Query().Get("$skiptoken"))]
	f.mu.Unlock()

	if !ok {
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	switch {
	case resp.raw != "":
		_, _ = w.Write([]byte(resp.raw))
	case resp.body != nil:
		body := resp.body
		if resp.next != "" {
			m := body.(map[string]interface{})
			copied := map[string]interface{}{"value": m["value"]}
			copied["nextLink"] = f.server.URL + r.URL.Path + "?api-version=" + r.URL.Query().Get("api-version") + "&$skiptoken=" + resp.next
			body = copied
		}
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (f *fakeARM) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeARM) count(method string) int {
	n := 0
	for _, r := range f.recorded() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeARM) client(t *testing.T, now time.Time) *Client {
	return f.clientWithLogger(now, logger.NewTestLogger(t))
}

func (f *fakeARM) clientWithLogger(now time.Time, log logger.Logger) *Client {
	mock := clock.NewMock()
	mock.Set(now)
	cred := auth.NewStaticCredential(azcore.AccessToken{Token: testToken, ExpiresOn: time.Now().Add(time.Hour)})
	return NewClient(cred, Options{
		Endpoint:  f.server.URL + "/",
		Transport: f.server.Client(),
		Clock:     mock,
		AllowHTTP: true,
	}, log)
}

func (f *fakeARM) assertAuthorized(t *testing.T) {
	for _, r := range f.recorded() {
		assert.Equal(t, "Bearer "+testToken, r.Auth, "%s %s", r.Method, r.Path)
	}
}

func plan(name string, autoRenew bool, endDate string) map[string]interface{} {
	return map[string]interface{}{
		"name": name,
		"properties": map[string]interface{}{
			"autoRenew": autoRenew,
			"current":   map[string]interface{}{"endDate": endDate, "tier": "T1"},
		},
	}
}

func deployment(name, sku string) map[string]interface{} {
	return map[string]interface{}{
		"name": name,
		"sku":  map[string]interface{}{"name": sku, "capacity": 100},
		"properties": map[string]interface{}{
			"model": map[string]interface{}{"name": "gpt-4o", "format": "OpenAI"},
		},
	}
}

func account(name, kind string) map[string]interface{} {
	return map[string]interface{}{"name": name, "kind": kind, "location": "eastus"}
}
