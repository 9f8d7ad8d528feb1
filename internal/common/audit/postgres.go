// internal/common/audit/postgres.go
package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/models"
)

const Schema = `
CREATE TABLE IF NOT EXISTS reaper_runs (
	run_id          UUID PRIMARY KEY,
	trigger         TEXT        NOT NULL,
	outcome         TEXT        NOT NULL,
	dry_run         BOOLEAN     NOT NULL,
	subscription_id TEXT        NOT NULL,
	resource_group  TEXT        NOT NULL,
	account_name    TEXT        NOT NULL,
	expired_plans   JSONB       NOT NULL,
	errors          JSONB       NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reaper_deployment_actions (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID        NOT NULL REFERENCES reaper_runs (run_id),
	plan_name   TEXT        NOT NULL,
	deployment  TEXT        NOT NULL,
	sku         TEXT        NOT NULL,
	model       TEXT        NOT NULL,
	dry_run     BOOLEAN     NOT NULL,
	status      TEXT        NOT NULL,
	error       TEXT        NOT NULL,
	acted_at    TIMESTAMPTZ NOT NULL
);
`

const (
	insertRunQuery = `INSERT INTO reaper_runs
	(run_id, trigger, outcome, dry_run, subscription_id, resource_group, account_name, expired_plans, errors, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	insertActionQuery = `INSERT INTO reaper_deployment_actions
	(run_id, plan_name, deployment, sku, model, dry_run, status, error, acted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

// PostgresSink keeps one row per run and one per deployment action.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the audit tables when they are missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}
	return nil
}

func (s *PostgresSink) Record(ctx context.Context, report *models.RunReport) error {
	plans, err := json.Marshal(report.ExpiredPlans)
	if err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}
	runErrors, err := json.Marshal(report.Errors)
	if err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertRunQuery,
		report.RunID,
		string(report.Trigger),
		string(report.Outcome),
		report.DryRun,
		report.SubscriptionID,
		report.ResourceGroup,
		report.AccountName,
		plans,
		runErrors,
		report.StartedAt,
		report.FinishedAt,
	); err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}

	for _, a := range report.Actions {
		if _, err := tx.ExecContext(ctx, insertActionQuery,
			report.RunID,
			a.Plan,
			a.Deployment,
			a.SKU,
			a.Model,
			a.DryRun,
			string(a.Status),
			a.Error,
			a.At,
		); err != nil {
			return errors.NewAuditWriteFailedError(s.Name(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewAuditWriteFailedError(s.Name(), err)
	}
	return nil
}
