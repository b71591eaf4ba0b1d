package webhook

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ledgersync/app/models"
	"github.com/ManuelReschke/ledgersync/app/repository"
	"github.com/ManuelReschke/ledgersync/internal/pkg/testutil"
)

type memoryArchiver struct {
	objects map[string][]byte
	err     error
}

func (a *memoryArchiver) ArchivePayload(_ context.Context, key string, body []byte) error {
	if a.err != nil {
		return a.err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[key] = append([]byte(nil), body...)
	return nil
}

func (a *memoryArchiver) FetchPayload(_ context.Context, key string) ([]byte, error) {
	body, ok := a.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return body, nil
}

func TestEventLog_OversizedPayloadIsArchived(t *testing.T) {
	repo := repository.NewDeliveryRepository(testutil.OpenTestDB(t))
	archiver := &memoryArchiver{}
	events := NewEventLog(repo, archiver)
	ctx := context.Background()

	body := []byte(strings.Repeat("x", models.MaxStoredPayloadBytes+100))
	id, err := events.RecordReceived(ctx, DeliveryInput{
		DeliveryID: "big",
		RequestID:  "req-1",
		Source:     "quickbooks",
		RawPayload: body,
		ReceivedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	})
	require.NoError(t, err)

	row, err := events.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, row.PayloadTruncated)
	assert.Len(t, row.RawPayload, models.MaxStoredPayloadBytes)
	assert.Equal(t, "webhooks/quickbooks/2026/03/04/req-1.json", row.PayloadArchiveKey)
	assert.Equal(t, body, archiver.objects[row.PayloadArchiveKey])

	full, err := events.Payload(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, body, full)
}

func TestEventLog_ArchiveFailureDoesNotBlockLogging(t *testing.T) {
	repo := repository.NewDeliveryRepository(testutil.OpenTestDB(t))
	events := NewEventLog(repo, &memoryArchiver{err: errors.New("bucket gone")})

	id, err := events.RecordReceived(context.Background(), DeliveryInput{
		DeliveryID: "big",
		RawPayload: []byte(strings.Repeat("y", models.MaxStoredPayloadBytes+1)),
	})
	require.NoError(t, err)

	row, err := events.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, row.PayloadTruncated)
	assert.Empty(t, row.PayloadArchiveKey)

	_, err = events.Payload(context.Background(), row)
	assert.ErrorIs(t, err, ErrNotReprocessable)
}

func TestEventLog_OutcomeAndFailureRows(t *testing.T) {
	repo := repository.NewDeliveryRepository(testutil.OpenTestDB(t))
	events := NewEventLog(repo, nil)
	ctx := context.Background()

	id, err := events.RecordReceived(ctx, DeliveryInput{DeliveryID: "d", RawPayload: []byte("{}")})
	require.NoError(t, err)

	out := Outcome{
		Status:    models.DeliveryStatusCompleted,
		Summary:   Summary{Topic: "dataChangeEvent", EntityType: "Invoice", Action: "update"},
		Processed: []string{"Invoice:1"},
		Duration:  42 * time.Millisecond,
	}
	require.NoError(t, events.UpdateOutcome(ctx, id, out))
	assert.ErrorIs(t, events.UpdateOutcome(ctx, id, out), repository.ErrDeliveryFinalized)

	row, err := events.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Invoice", row.EntityType)
	assert.Equal(t, "update", row.Action)
	assert.Equal(t, int64(42), row.ProcessingTimeMs)

	failedID, err := events.RecordTerminal(ctx, DeliveryInput{DeliveryID: "d", RawPayload: []byte("oops")}, Outcome{
		Status: models.DeliveryStatusFailed,
		Errors: []string{"internal error: boom"},
	})
	require.NoError(t, err)
	failed, err := events.Get(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, failed.Status)
	assert.Equal(t, []string{"internal error: boom"}, []string(failed.Errors))
	assert.NotNil(t, failed.ProcessedAt)

	counts, err := events.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.DeliveryStatusCompleted])
	assert.Equal(t, int64(1), counts[models.DeliveryStatusFailed])
}

func TestEventLog_BoundsSenderIdentifiers(t *testing.T) {
	repo := repository.NewDeliveryRepository(testutil.OpenTestDB(t))
	events := NewEventLog(repo, nil)
	ctx := context.Background()

	in := DeliveryInput{
		DeliveryID: strings.Repeat("d", 400),
		RequestID:  strings.Repeat("r", 300),
		RawPayload: []byte("{}"),
	}
	id, err := events.RecordReceived(ctx, in)
	require.NoError(t, err)
	row, err := events.Get(ctx, id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(row.DeliveryID), models.MaxDeliveryIDLength)
	assert.LessOrEqual(t, len(row.RequestID), models.MaxRequestIDLength)

	// The fallback row gets the same bounded values.
	termID, err := events.RecordTerminal(ctx, in, Outcome{Status: models.DeliveryStatusFailed})
	require.NoError(t, err)
	term, err := events.Get(ctx, termID)
	require.NoError(t, err)
	assert.Equal(t, row.DeliveryID, term.DeliveryID)
	assert.Equal(t, row.RequestID, term.RequestID)
}

func TestEventLog_NonUTF8PayloadRoundTrips(t *testing.T) {
	repo := repository.NewDeliveryRepository(testutil.OpenTestDB(t))
	events := NewEventLog(repo, nil)
	ctx := context.Background()

	body := []byte("{\"eventNotifications\":[]}\xff\xfe")
	id, err := events.RecordReceived(ctx, DeliveryInput{DeliveryID: "bin", RawPayload: body})
	require.NoError(t, err)

	row, err := events.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PayloadEncodingBase64, row.PayloadEncoding)
	assert.False(t, row.PayloadTruncated)

	full, err := events.Payload(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, body, full)
}
