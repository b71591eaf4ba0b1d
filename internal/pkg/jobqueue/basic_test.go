package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicJobStatus(t *testing.T) {
	assert.Equal(t, "webhook_replay", string(JobTypeWebhookReplay))
	assert.Equal(t, "pending", string(JobStatusPending))
	assert.Equal(t, "processing", string(JobStatusProcessing))
	assert.Equal(t, "completed", string(JobStatusCompleted))
	assert.Equal(t, "failed", string(JobStatusFailed))
	assert.Equal(t, "retrying", string(JobStatusRetrying))
}

func TestJob_BasicMethods(t *testing.T) {
	job := &Job{
		Status:     JobStatusFailed,
		RetryCount: 1,
		MaxRetries: 3,
	}

	assert.True(t, job.IsRetryable())

	job.RetryCount = 3
	assert.False(t, job.IsRetryable())

	beforeTime := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(beforeTime))

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)

	job.MarkAsFailed("test error")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "test error", job.ErrorMsg)
	assert.Equal(t, 4, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)
}

func TestWebhookReplayJobPayloadFromMap(t *testing.T) {
	// Payloads come back from Redis as decoded JSON, so numbers are float64.
	payload, err := WebhookReplayJobPayloadFromMap(map[string]interface{}{
		"delivery_row_id": float64(42),
		"reason":          "admin replay",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(42), payload.DeliveryRowID)
	assert.Equal(t, "admin replay", payload.Reason)

	_, err = WebhookReplayJobPayloadFromMap(map[string]interface{}{"delivery_row_id": "x"})
	assert.Error(t, err)
}

func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, nil, tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
		})
	}
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager(NewQueue(nil, nil, 1), nil, 0)
	assert.Equal(t, 15*time.Minute, m.stuckAge)
	assert.Equal(t, 5*time.Minute, m.sweepInterval)
	assert.False(t, m.IsRunning())

	// Stop without starting should be safe
	m.Stop()
	assert.False(t, m.IsRunning())

	short := NewManager(NewQueue(nil, nil, 1), nil, 90*time.Second)
	assert.Equal(t, time.Minute, short.sweepInterval)

	SetManager(m)
	assert.Same(t, m, GetManager())
	SetManager(nil)
}
