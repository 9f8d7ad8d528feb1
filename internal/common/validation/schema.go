package validation

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/models"
)

//go:embed schemas/run_report.schema.json
var runReportSchema []byte

// ReportValidator checks run reports against the published contract before
// they leave the process.
type ReportValidator struct {
	schema *gojsonschema.Schema
}

func NewReportValidator() (*ReportValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(runReportSchema))
	if err != nil {
		return nil, fmt.Errorf("compile run report schema: %w", err)
	}
	return &ReportValidator{schema: schema}, nil
}

func (v *ReportValidator) Validate(report *models.RunReport) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(report))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return errors.NewReportValidationFailedError(strings.Join(errs, "; "))
	}
	return nil
}
