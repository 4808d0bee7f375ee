package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrecovery/internal/config"
	"payrecovery/internal/payment"
)

func testConfig(driver, path string) config.Config {
	var c config.Config
	c.Env = "dev"
	c.HTTP.Addr = "127.0.0.1:0"
	c.Retry.PollInterval = 10 * time.Millisecond
	c.Retry.Location = time.UTC
	c.Retry.OptimalHours = []int{10, 14, 19}
	c.Retention.Period = 720 * time.Hour
	c.Retention.Schedule = "@hourly"
	c.Archive.Driver = driver
	c.Archive.Path = path
	c.Gateway.SuccessRate = 1
	c.Gateway.RetryAttempts = 1
	return c
}

func newTestApp(t *testing.T, cfg config.Config) (*App, *components) {
	t.Helper()
	a := &App{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now: func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) },
	}
	c, err := a.build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, a.shutdown(ctx, c, nil))
	})
	return a, c
}

func TestBuild_ReportFailureThroughRouter(t *testing.T) {
	_, c := newTestApp(t, testConfig("none", ""))

	body := `{"payment_id":"pay_1","customer_id":"cus_1","email":"a@example.com","amount_cents":4900,"failure_code":"insufficient_funds"}`
	req := httptest.NewRequest(http.MethodPost, "/api/failures", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p payment.Payment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, payment.StatusScheduled, p.Status)
	assert.Equal(t, 1, c.retries.Pending())

	w = httptest.NewRecorder()
	c.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `payrecovery_retries_scheduled_total{policy="insufficient_funds"} 1`)
}

func TestBuild_SQLiteArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	_, c := newTestApp(t, testConfig("sqlite", path))

	n, err := c.archive.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuild_BadRetentionSchedule(t *testing.T) {
	cfg := testConfig("none", "")
	cfg.Retention.Schedule = "every now and then"
	a := &App{cfg: cfg, log: slog.New(slog.NewTextHandler(io.Discard, nil)), now: time.Now}

	_, err := a.build(context.Background())
	require.Error(t, err)
}
