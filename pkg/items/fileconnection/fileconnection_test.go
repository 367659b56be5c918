package fileconnection

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/models"
)

func TestFileConnectionFactory(t *testing.T) {
	factory := NewFileConnectionFactory()
	assert.Equal(t, "file_connection", factory.ID())

	item, err := factory.Create("Files", map[string]any{"files": []any{"/data/a.csv"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Files", item.Name())

	_, err = factory.Create("Files", map[string]any{}, nil)
	require.Error(t, err)
}

func TestFileConnectionOutputResources(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "present.csv")
	require.NoError(t, os.WriteFile(existing, []byte("a,b\n"), 0o644))

	connection := NewFileConnection("Files", []string{existing, "/nonexistent/missing.csv"}, nil)

	assert.Empty(t, connection.OutputResources(engine.Backward))

	resources := connection.OutputResources(engine.Forward)
	require.Len(t, resources, 2)
	assert.Equal(t, models.ResourceTypeFile, resources[0].Type)
	assert.Equal(t, models.ResourceTypeTransientFile, resources[1].Type)
	assert.Equal(t, "/nonexistent/missing.csv", resources[1].Label())
}

func TestFileConnectionExecute(t *testing.T) {
	connection := NewFileConnection("Files", []string{"/nonexistent/missing.csv"}, nil)
	assert.Equal(t, engine.StateSuccess, connection.Execute(context.Background(), nil, nil, &sync.Mutex{}))
}
