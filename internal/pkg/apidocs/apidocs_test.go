package apidocs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ShippedDocument(t *testing.T) {
	root, err := FindRoot("../../..", ".")
	require.NoError(t, err)

	doc, err := Load(context.Background(), filepath.Join(root, RelativePath))
	require.NoError(t, err)

	for _, path := range []string{"/webhooks/quickbooks", "/healthz", "/admin/api/deliveries", "/admin/api/deliveries/{id}", "/admin/api/deliveries/{id}/replay", "/admin/api/stats"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	post := doc.Paths.Find("/webhooks/quickbooks").Post
	require.NotNil(t, post)
	assert.NotNil(t, post.Responses.Status(200))
	assert.NotNil(t, post.Responses.Status(401))
}

func TestLoad_RejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.0.3\ninfo:\n  title: x\npaths: {}\n"), 0o600))

	_, err := Load(context.Background(), path)
	assert.Error(t, err)
}

func TestFindRoot_Missing(t *testing.T) {
	_, err := FindRoot(t.TempDir())
	assert.Error(t, err)
}
