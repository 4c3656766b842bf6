package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/dto"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/joshu-sajeev/queuectl/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	t.Setenv("QUEUECTL_DB_DRIVER", "sqlite")
	t.Setenv("QUEUECTL_DB_PATH", filepath.Join(t.TempDir(), "queue.db"))
	t.Setenv("QUEUECTL_LOG_LEVEL", "panic")
	t.Setenv("QUEUECTL_POLL_INTERVAL", "10ms")

	a, err := Bootstrap(context.Background())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestBootstrapAppliesPersistedSettings(t *testing.T) {
	a := setupApp(t)
	require.NoError(t, a.Service.SetConfig(context.Background(), config.KeyMaxRetries, "6"))
	a.Close()

	b, err := Bootstrap(context.Background())
	require.NoError(t, err)
	defer b.Close()

	got, _ := b.Config.Get(config.KeyMaxRetries)
	assert.Equal(t, "6", got)
}

func TestRouter(t *testing.T) {
	a := setupApp(t)
	r := a.Router()

	t.Run("healthz", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("enqueue then list", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"id":"job1","command":"true"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs?state=pending", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var jobs []dto.JobResponseDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, "job1", jobs[0].ID)
		assert.Equal(t, 3, jobs[0].MaxRetries)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{"id":"job1","command":"true"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("retry unknown dlq id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/dlq/ghost/retry", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "queuectl_jobs_claimed_total")
	})
}

func TestRunWorkersDrainsOnCancel(t *testing.T) {
	a := setupApp(t)
	ctx := context.Background()

	_, err := a.Service.Enqueue(ctx, &dto.EnqueueDTO{ID: "quick", Command: "true"})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.RunWorkers(runCtx, 2) }()

	require.Eventually(t, func() bool {
		job, err := a.Service.GetJob(ctx, "quick")
		return err == nil && job.State == config.JobStateCompleted
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("RunWorkers did not return")
	}
}

func TestRunWorkersRecoversStrandedJobs(t *testing.T) {
	a := setupApp(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, a.DB.Create(&models.Job{
		ID: "left-dead", Command: "false", State: config.JobStateDead,
		Attempts: 1, MaxRetries: 0, CreatedAt: now, UpdatedAt: now,
	}).Error)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.RunWorkers(runCtx, 1) }()

	require.Eventually(t, func() bool {
		_, err := a.Repo.FindInDLQ(ctx, "left-dead")
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	_, err := a.Repo.FindByID(ctx, "left-dead")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	cancel()
	require.NoError(t, <-done)
}
