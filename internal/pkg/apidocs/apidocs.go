// Package apidocs loads and checks the OpenAPI document served by the swagger
// UI.
package apidocs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/getkin/kin-openapi/openapi3"
)

// RelativePath is the document location below the project root.
const RelativePath = "public/docs/v1/openapi.yml"

// Load reads the document and validates it against the OpenAPI 3 schema.
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return doc, nil
}

// FindRoot returns the first candidate directory that contains the document.
func FindRoot(candidates ...string) (string, error) {
	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, RelativePath)); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%s not found in %v", RelativePath, candidates)
}
