package learning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureWritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	c.CaptureText("update", []byte(`{"fop":"A"}`))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	name := entries[0].Name()
	assert.True(t, strings.HasSuffix(name, "-update.json"), name)
	assert.NotContains(t, name, ":")

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.JSONEq(t, `{"fop":"A"}`, string(data))
}

func TestCaptureSanitizesLabel(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	c.CaptureText("../weird/type", []byte(`{}`))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")
}

func TestRapidCapturesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	for i := 0; i < 5; i++ {
		c.CaptureText("timer", []byte(`{}`))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}
