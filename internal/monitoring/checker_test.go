package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/config"
	"github.com/sells-group/panel-cli/internal/model"
)

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	now := time.Now().UTC()
	var runs []model.Run
	for i := 0; i < 6; i++ {
		status := model.RunStatusFailed
		if i == 0 {
			status = model.RunStatusComplete
		}
		runs = append(runs, model.Run{Status: status, CreatedAt: now.Add(-time.Hour)})
	}

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.5,
		LookbackWindowHours:  24,
	}
	c := NewChecker(NewCollector(&mockStore{runs: runs}), NewAlerter(cfg), cfg)

	c.check(context.Background(), zap.NewNop())
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckNoAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.5,
		LookbackWindowHours:  24,
	}
	c := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg)

	c.check(context.Background(), zap.NewNop())
	assert.Equal(t, int32(0), received.Load())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24}
	c := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after cancel")
	}
}
