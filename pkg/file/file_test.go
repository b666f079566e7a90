package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webOS-ports/qtlocation-luneos-plugin/pkg/file"
)

// TestFileService_JsonRoundTrip tests the atomic JSON write followed by a read.
func TestFileService_JsonRoundTrip(t *testing.T) {
	fs := file.NewFileService()
	path := filepath.Join(t.TempDir(), "state", "last.json")

	require.NoError(t, fs.WriteJsonFile(path, map[string]float64{"latitude": 1.5}))

	var got map[string]float64
	require.NoError(t, fs.ReadJsonFile(path, &got))
	assert.Equal(t, 1.5, got["latitude"])

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

// TestFileService_IsFileExists tests existence checks.
func TestFileService_IsFileExists(t *testing.T) {
	fs := file.NewFileService()
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	ok, err := fs.IsFileExists(path)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.IsFileExists(filepath.Join(dir, "absent"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

// TestFileService_ReadYamlFile_UnknownField tests that unknown keys are rejected.
func TestFileService_ReadYamlFile_UnknownField(t *testing.T) {
	fs := file.NewFileService()
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\nextra: b\n"), 0o600))

	var v struct {
		Name string `yaml:"name"`
	}
	err := fs.ReadYamlFile(path, &v)

	assert.Error(t, err)
}
