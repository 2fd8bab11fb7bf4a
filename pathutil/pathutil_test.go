package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendComponents(t *testing.T) {
	result, err := AppendComponents("/sdcard/dst", filepath.Join("a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/sdcard/dst/a/b.txt", result)
}

func TestAppendComponentsEmptyTail(t *testing.T) {
	result, err := AppendComponents("/sdcard/dst", "")
	require.NoError(t, err)
	assert.Equal(t, "/sdcard/dst", result)
}

func TestAppendComponentsSingleSegment(t *testing.T) {
	result, err := AppendComponents("/data/local/tmp", "foo.txt")
	require.NoError(t, err)
	assert.Equal(t, "/data/local/tmp/foo.txt", result)
}

func TestAppendComponentsRejectsAbsoluteTail(t *testing.T) {
	_, err := AppendComponents("/sdcard", string(filepath.Separator)+"etc")
	assert.Error(t, err)
}

func TestAppendComponentsRejectsParentSegments(t *testing.T) {
	sep := string(filepath.Separator)

	_, err := AppendComponents("/sdcard", ".."+sep+"escape")
	assert.Error(t, err)

	_, err = AppendComponents("/sdcard", "ok"+sep+".."+sep+"escape")
	assert.Error(t, err)
}

func TestAppendComponentsRejectsCurrentDirSegments(t *testing.T) {
	_, err := AppendComponents("/sdcard", "."+string(filepath.Separator)+"x")
	assert.Error(t, err)
}

func TestAppendComponentsRejectsInvalidUTF8(t *testing.T) {
	_, err := AppendComponents("/sdcard", "bad\xff name")
	assert.Error(t, err)
}
