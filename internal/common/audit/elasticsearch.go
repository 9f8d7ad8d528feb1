// internal/common/audit/elasticsearch.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/models"
)

// ElasticsearchSink indexes each run report as a document keyed by run id.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Record(ctx context.Context, report *models.RunReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(report.RunID),
	)
	if err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.NewAuditWriteFailedError(s.Name(), fmt.Errorf("index %s: %s: %s", s.index, res.Status(), detail))
	}
	return nil
}
