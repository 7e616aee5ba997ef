package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication and authorization outcomes.
type SecurityMetrics struct {
	authAttempts          metric.Int64Counter
	authFailures          metric.Int64Counter
	authSuccesses         metric.Int64Counter
	adminEndpointAccess   metric.Int64Counter
	forbiddenSpreadsheets metric.Int64Counter
	tokenValidationErrors metric.Int64Counter
}

// InitSecurityMetrics creates the security instruments.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter(MeterName + "/security")
	m := &SecurityMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.authAttempts, "security.auth.attempts.total", "Total number of authentication attempts"},
		{&m.authFailures, "security.auth.failures.total", "Total number of authentication failures"},
		{&m.authSuccesses, "security.auth.successes.total", "Total number of successful authentications"},
		{&m.adminEndpointAccess, "security.admin.access.total", "Total number of admin endpoint access attempts"},
		{&m.forbiddenSpreadsheets, "security.spreadsheet.forbidden.total", "Requests for spreadsheets outside the caller's grant"},
		{&m.tokenValidationErrors, "security.token.validation_errors.total", "Total number of token validation errors"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

func (m *SecurityMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	m.authSuccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("issuer", issuer),
	))
}

// RecordAdminEndpointAccess records a call to an admin endpoint.
func (m *SecurityMetrics) RecordAdminEndpointAccess(ctx context.Context, operation string, authenticated, success bool) {
	m.adminEndpointAccess.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("authenticated", authenticated),
		attribute.Bool("success", success),
	))
}

// RecordForbiddenSpreadsheet records an authenticated caller asking for a
// spreadsheet its token does not grant.
func (m *SecurityMetrics) RecordForbiddenSpreadsheet(ctx context.Context, spreadsheetID string) {
	m.forbiddenSpreadsheets.Add(ctx, 1, metric.WithAttributes(attribute.String("spreadsheet_id", spreadsheetID)))
}

func (m *SecurityMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	m.tokenValidationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errorType)))
}
