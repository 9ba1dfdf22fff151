package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/config"
)

func TestChecker_Check_SendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:             ts.URL,
		LookbackWindowHours:    24,
		ReviewBacklogThreshold: 1,
	}
	checker := NewChecker(newTestCollector(sampleSource()), NewAlerter(cfg), cfg, "b-1")

	report, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b-1", report.Snapshot.BatchID)
	assert.Equal(t, 4, report.Snapshot.ProductsTotal)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, AlertReviewBacklog, report.Alerts[0].Type)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_Check_CollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	src := &fakeSource{listErr: errors.New("db down")}
	checker := NewChecker(newTestCollector(src), NewAlerter(cfg), cfg, "")

	_, err := checker.Check(context.Background())
	require.Error(t, err)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(newTestCollector(&fakeSource{}), NewAlerter(cfg), cfg, "")

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(newTestCollector(&fakeSource{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{}, "")
	assert.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
