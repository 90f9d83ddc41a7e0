package assets

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barpath/tracker/internal/codec"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/model"
)

type fakeHub struct {
	assets       map[string]bool
	translations map[string]map[string]string
	checksum     string
	databases    []*model.Database
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		assets:       make(map[string]bool),
		translations: make(map[string]map[string]string),
	}
}

func (f *fakeHub) SetAssetLoaded(category string) { f.assets[category] = true }
func (f *fakeHub) SetTranslations(locale string, m map[string]string) {
	f.translations[locale] = m
}
func (f *fakeHub) SetTranslationsChecksum(sum string) { f.checksum = sum }
func (f *fakeHub) TranslationsChecksum() string       { return f.checksum }
func (f *fakeHub) IngestDatabase(db *model.Database) (*hub.IngestResult, error) {
	f.databases = append(f.databases, db)
	return &hub.IngestResult{Accepted: true}, nil
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestHandle_FlagsArchive(t *testing.T) {
	root := t.TempDir()
	fh := newFakeHub()
	e := New(root, fh)

	payload := buildZip(t, map[string]string{
		"USA.svg": "<svg/>",
		"CAN.png": "png-bytes",
	})
	err := e.Handle(&codec.BinaryFrame{Type: "flags_zip", Payload: payload})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(root, "flags", "USA.svg"))
	assert.FileExists(t, filepath.Join(root, "flags", "CAN.png"))
	assert.True(t, fh.assets["flags"])
}

func TestHandle_LegacyFlagsType(t *testing.T) {
	root := t.TempDir()
	fh := newFakeHub()
	e := New(root, fh)

	payload := buildZip(t, map[string]string{"GER.svg": "x"})
	err := e.Handle(&codec.BinaryFrame{Type: "flags", Payload: payload})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "flags", "GER.svg"))
}

func TestHandle_StylesNestedTree(t *testing.T) {
	root := t.TempDir()
	fh := newFakeHub()
	e := New(root, fh)

	payload := buildZip(t, map[string]string{
		"board/main.css":       "body{}",
		"board/fonts/mono.css": "@font-face{}",
	})
	err := e.Handle(&codec.BinaryFrame{Type: "styles", Payload: payload})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "styles", "board", "fonts", "mono.css"))
	assert.True(t, fh.assets["styles"])
}

func TestHandle_UnknownType(t *testing.T) {
	e := New(t.TempDir(), newFakeHub())
	err := e.Handle(&codec.BinaryFrame{Type: "mystery", Payload: nil})
	require.Error(t, err)
	assert.Equal(t, codec.ErrUnknownBinaryType, codec.KindOf(err))
}

func TestHandle_CorruptZipExtractsNothing(t *testing.T) {
	root := t.TempDir()
	e := New(root, newFakeHub())
	err := e.Handle(&codec.BinaryFrame{Type: "flags_zip", Payload: []byte("not a zip")})
	assert.Error(t, err)
	// The payload fails to open as a zip before any entry is written,
	// so the flags directory is never created.
	_, statErr := os.Stat(filepath.Join(root, "flags"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestHandle_DatabaseZip(t *testing.T) {
	fh := newFakeHub()
	e := New(t.TempDir(), fh)

	payload := buildZip(t, map[string]string{
		"database.json": `{"checksum":"C9","competition":{"competitionName":"Worlds"},"athletes":[{"key":"k1","fullName":"DOE, Jane"}]}`,
	})
	err := e.Handle(&codec.BinaryFrame{Type: "database_zip", Payload: payload})
	require.NoError(t, err)
	require.Len(t, fh.databases, 1)
	assert.Equal(t, "C9", fh.databases[0].Checksum)
	assert.Equal(t, "Worlds", fh.databases[0].Competition.Name)
}

func TestZipSlipRejected(t *testing.T) {
	root := t.TempDir()
	e := New(root, newFakeHub())
	payload := buildZip(t, map[string]string{"../escape.txt": "nope"})
	err := e.Handle(&codec.BinaryFrame{Type: "flags_zip", Payload: payload})
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(root), "escape.txt"))
}
