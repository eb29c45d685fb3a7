package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/queue"
)

func TestWorkerProcessesQueuedReports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.patient(t, "alice")

	w := NewReportWorker(env.reports, env.queue, 2, zerolog.Nop())
	w.Start(ctx)
	defer func() { assert.NoError(t, w.Stop()) }()

	r, err := env.reports.Request(ctx, alice, ReportRequest{Type: models.ReportSummary})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := env.reports.Get(ctx, alice, r.ID)
		return err == nil && got.Status == models.ReportCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerRecoversReportsOnStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.patient(t, "alice")

	// Requested while no worker was around and the task got lost.
	r, err := env.reports.Request(ctx, alice, ReportRequest{})
	require.NoError(t, err)
	fresh := queue.NewMemory(8)
	env.reports.queue = fresh

	w := NewReportWorker(env.reports, fresh, 1, zerolog.Nop())
	w.Start(ctx)
	defer func() { assert.NoError(t, w.Stop()) }()

	require.Eventually(t, func() bool {
		got, err := env.reports.Get(ctx, alice, r.ID)
		return err == nil && got.Status.Done()
	}, 5*time.Second, 20*time.Millisecond)
}
