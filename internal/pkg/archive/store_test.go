package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
)

// fakeS3 answers path-style bucket and object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func newFakeS3(t *testing.T, buckets ...string) (*fakeS3, *httptest.Server) {
	f := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	for _, b := range buckets {
		f.buckets[b] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = body
		w.Header().Set("ETag", `"etag"`)
	case r.Method == http.MethodGet:
		body, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func archiveConfig(endpoint string) config.Archive {
	return config.Archive{
		Enabled:         true,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		BucketName:      "payloads",
		EndpointURL:     endpoint,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	fake, srv := newFakeS3(t, "payloads")
	store, err := NewStore(context.Background(), archiveConfig(srv.URL), false)
	require.NoError(t, err)

	body := []byte(`{"eventNotifications":[]}`)
	require.NoError(t, store.ArchivePayload(context.Background(), "webhooks/quickbooks/a.json", body))
	assert.Equal(t, body, fake.objects["payloads/webhooks/quickbooks/a.json"])

	got, err := store.FetchPayload(context.Background(), "webhooks/quickbooks/a.json")
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = store.FetchPayload(context.Background(), "missing.json")
	assert.Error(t, err)
}

func TestStore_MissingBucket(t *testing.T) {
	_, srv := newFakeS3(t)

	_, err := NewStore(context.Background(), archiveConfig(srv.URL), false)
	assert.Error(t, err)

	store, err := NewStore(context.Background(), archiveConfig(srv.URL), true)
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestStore_Disabled(t *testing.T) {
	_, err := NewStore(context.Background(), config.Archive{}, true)
	assert.ErrorIs(t, err, ErrDisabled)
}
