package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/cloth-shop/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{
		report: domain.HealthReport{
			Checks: map[string]domain.HealthCheck{
				"postgres": {Status: domain.HealthStatusOK},
				"pubsub":   {Status: domain.HealthStatusDegraded, Detail: "topic missing"},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "1.4.0", CommitSHA: "abc123", Environment: "staging", StartedAt: start},
	})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.HealthStatusDegraded, report.Status)
	assert.Equal(t, "1.4.0", report.Version)
	assert.Equal(t, "abc123", report.CommitSHA)
	assert.Equal(t, "staging", report.Environment)
	assert.Equal(t, 5*time.Minute, report.Uptime)
	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, 1, repo.calls)
}

func TestSystemServiceHealthReportKeepsRepositoryStatus(t *testing.T) {
	repo := &stubHealthRepository{report: domain.HealthReport{Status: domain.HealthStatusError}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	require.NoError(t, err)

	report, err := svc.HealthReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Status)
	assert.NotNil(t, report.Checks)
}

func TestSystemServiceHealthReportPropagatesErrors(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("boom")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	require.NoError(t, err)

	_, err = svc.HealthReport(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	_, err := NewSystemService(SystemServiceDeps{})
	assert.Error(t, err)
}
