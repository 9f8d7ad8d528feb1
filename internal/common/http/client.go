// internal/common/http/client.go
package http

import (
	"net/http"
	"time"

	"commitment-reaper/internal/common/logger"
)

// Client is the transport handed to the Azure SDK pipelines. It satisfies
// policy.Transporter and logs every exchange at debug level.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(timeout time.Duration, log logger.Logger) *Client {
	return NewClientWithTransport(timeout, nil, log)
}

// NewClientWithTransport lets callers supply the round tripper, e.g. an httptest TLS client's.
func NewClientWithTransport(timeout time.Duration, rt http.RoundTripper, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: rt,
		},
		logger: log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)

	fields := map[string]interface{}{
		"method":   req.Method,
		"host":     req.URL.Host,
		"path":     req.URL.Path,
		"duration": time.Since(start).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Debug("request failed", fields)
		return nil, err
	}

	fields["status"] = resp.StatusCode
	c.logger.Debug("request completed", fields)
	return resp, nil
}
