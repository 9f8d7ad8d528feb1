// internal/common/azure/pager.go
package azure

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/common/logger"
	"commitment-reaper/internal/common/metrics"
)

// ListAll drains pager, which follows nextLink until the service stops sending one.
// items extracts a page's value array; keep filters it (nil keeps everything).
//
// A failing page, or a keep error, stops the traversal. The items of every
// fully evaluated earlier page are returned together with the classified error.
func ListAll[P, T any](
	ctx context.Context,
	log logger.Logger,
	operation string,
	pager *runtime.Pager[P],
	items func(P) []T,
	keep func(T) (bool, error),
) ([]T, error) {
	var out []T
	pageNum := 0

	for pager.More() {
		pageNum++
		page, err := pager.NextPage(ctx)
		if err != nil {
			return out, abort(log, operation, pageNum, len(out), classify(operation, err))
		}
		metrics.AzurePagesFetched.WithLabelValues(operation).Inc()

		batch := items(page)
		accepted := make([]T, 0, len(batch))
		for _, item := range batch {
			if keep == nil {
				accepted = append(accepted, item)
				continue
			}
			ok, err := keep(item)
			if err != nil {
				return out, abort(log, operation, pageNum, len(out), errors.NewSchemaError(operation, err))
			}
			if ok {
				accepted = append(accepted, item)
			}
		}
		out = append(out, accepted...)
	}

	log.Debug("list completed", map[string]interface{}{
		"operation": operation,
		"pages":     pageNum,
		"items":     len(out),
	})
	return out, nil
}

func abort(log logger.Logger, operation string, pageNum, kept int, err *errors.StandardError) error {
	metrics.AzureListErrors.WithLabelValues(operation, string(err.Code)).Inc()
	log.Error("list aborted, returning partial result", map[string]interface{}{
		"operation": operation,
		"page":      pageNum,
		"kept":      kept,
		"errorCode": err.Code,
		"error":     err.Details,
	})
	return err
}

// classify maps SDK failures onto TRANSPORT_ERROR or SCHEMA_ERROR.
func classify(operation string, err error) *errors.StandardError {
	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) {
		return errors.NewTransportError(operation, err).
			WithMetadata("statusCode", respErr.StatusCode).
			WithMetadata("azureErrorCode", respErr.ErrorCode)
	}
	// Generated models report body decode failures as "unmarshalling type ...".
	if strings.Contains(err.Error(), "unmarshalling type") {
		return errors.NewSchemaError(operation, err)
	}
	return errors.NewTransportError(operation, err)
}
