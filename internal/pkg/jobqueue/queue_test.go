package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ledgersync/app/models"
)

type fakeReplayer struct {
	mu    sync.Mutex
	calls []uint
	err   error
}

func (r *fakeReplayer) Reprocess(_ context.Context, rowID uint) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, rowID)
	return rowID + 1000, r.err
}

func (r *fakeReplayer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestQueue_ReplayJobCompletes(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	replayer := &fakeReplayer{}
	q := NewQueue(client, replayer, 1)
	ctx := context.Background()

	job, err := q.EnqueueWebhookReplay(ctx, 7, "test")
	require.NoError(t, err)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	q.Start()
	defer q.Stop()

	require.True(t, WaitForCondition(func() bool { return replayer.callCount() == 1 }, 5*time.Second))
	require.True(t, WaitForCondition(func() bool {
		_, err := q.GetJob(ctx, job.ID)
		return err != nil
	}, 5*time.Second), "completed jobs are removed")

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])
	assert.Equal(t, []uint{7}, replayer.calls)
}

func TestQueue_PermanentFailureIsNotRetried(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	replayer := &fakeReplayer{err: gorm.ErrRecordNotFound}
	q := NewQueue(client, replayer, 1)
	ctx := context.Background()

	job, err := q.EnqueueWebhookReplay(ctx, 8, "test")
	require.NoError(t, err)

	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, dequeued)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, processing)
}

func TestQueue_TransientFailureIsRetried(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	replayer := &fakeReplayer{err: errors.New("database is down")}
	q := NewQueue(client, replayer, 1)
	q.retryDelay = 10 * time.Millisecond
	ctx := context.Background()

	job, err := q.EnqueueWebhookReplay(ctx, 9, "test")
	require.NoError(t, err)

	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, dequeued)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)

	require.True(t, WaitForCondition(func() bool {
		n, _ := q.GetQueueSize(ctx)
		return n == 1
	}, 2*time.Second))
}

func TestQueue_RecoverStuckJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, &fakeReplayer{}, 1)
	ctx := context.Background()

	job, err := q.EnqueueWebhookReplay(ctx, 10, "test")
	require.NoError(t, err)
	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	dequeued.Status = JobStatusProcessing
	dequeued.ProcessedAt = &old
	q.updateJob(ctx, dequeued)

	n, err := q.RecoverStuckJobs(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	size, _ := q.GetQueueSize(ctx)
	assert.Equal(t, int64(1), size)
}

type fakeStuckLister struct {
	rows []models.WebhookDelivery
}

func (l fakeStuckLister) ListStuck(context.Context, time.Duration, int) ([]models.WebhookDelivery, error) {
	return l.rows, nil
}

func TestManager_SweepStuckDeliveriesEnqueuesOnce(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, &fakeReplayer{}, 1)
	lister := fakeStuckLister{rows: []models.WebhookDelivery{{ID: 1}, {ID: 2}}}
	m := NewManager(q, lister, 15*time.Minute)
	ctx := context.Background()

	n, err := m.SweepStuckDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.SweepStuckDeliveries(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}
