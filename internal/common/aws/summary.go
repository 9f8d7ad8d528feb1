// internal/common/aws/summary.go
package aws

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"commitment-reaper/internal/models"
)

func subject(report *models.RunReport) string {
	mode := "live"
	if report.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf("commitment-reaper %s run %s: %s", mode, report.Outcome, report.AccountName)
}

// truncateSubject cuts s to at most limit bytes without splitting a rune.
func truncateSubject(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	end := 0
	for i, r := range s {
		if i+utf8.RuneLen(r) > limit {
			break
		}
		end = i + utf8.RuneLen(r)
	}
	return s[:end]
}

// summary renders the report as plain text for email bodies.
func summary(report *models.RunReport) string {
	var b strings.Builder
	simulated, deleted, failed := report.Counts()

	fmt.Fprintf(&b, "Run:      %s (%s)\n", report.RunID, report.Trigger)
	fmt.Fprintf(&b, "Outcome:  %s\n", report.Outcome)
	fmt.Fprintf(&b, "Account:  %s/%s/%s\n", report.SubscriptionID, report.ResourceGroup, report.AccountName)
	fmt.Fprintf(&b, "Started:  %s\n", report.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "Duration: %s\n", report.Duration())
	fmt.Fprintf(&b, "Dry run:  %t\n\n", report.DryRun)

	if len(report.ExpiredPlans) > 0 {
		b.WriteString("Expired commitment plans without auto-renew:\n")
		for _, p := range report.ExpiredPlans {
			fmt.Fprintf(&b, "  - %s (ended %s)\n", p.Name, p.EndDate)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Deployments: %d simulated, %d deleted, %d failed\n", simulated, deleted, failed)
	for _, a := range report.Actions {
		line := fmt.Sprintf("  - %s [%s] %s", a.Deployment, a.SKU, a.Status)
		if a.Error != "" {
			line += ": " + a.Error
		}
		b.WriteString(line + "\n")
	}

	if len(report.Errors) > 0 {
		b.WriteString("\nErrors:\n")
		for _, e := range report.Errors {
			fmt.Fprintf(&b, "  - %s %s: %s\n", e.Code, e.Operation, e.Message)
		}
	}
	return b.String()
}
