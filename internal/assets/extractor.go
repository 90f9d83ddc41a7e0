package assets

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barpath/tracker/internal/codec"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/model"
)

// Hub is the narrow surface the extractor needs. Extraction never
// reads competition state, it only reports results.
type Hub interface {
	SetAssetLoaded(category string)
	SetTranslations(locale string, m map[string]string)
	SetTranslationsChecksum(sum string)
	TranslationsChecksum() string
	IngestDatabase(db *model.Database) (*hub.IngestResult, error)
}

// Extractor materializes zip payloads from the source under a managed
// directory tree: <root>/flags, <root>/pictures, <root>/styles.
type Extractor struct {
	root string
	hub  Hub
}

// subdirs maps canonical binary frame types to their target directory.
var subdirs = map[string]string{
	codec.BinaryFlagsZip: "flags",
	codec.BinaryPictures: "pictures",
	codec.BinaryStyles:   "styles",
}

// New creates an extractor rooted at dir.
func New(root string, h Hub) *Extractor {
	return &Extractor{root: root, hub: h}
}

// Root returns the managed directory root.
func (e *Extractor) Root() string { return e.root }

// Dir returns the directory one asset category extracts into.
func (e *Extractor) Dir(frameType string) string {
	return filepath.Join(e.root, subdirs[frameType])
}

// Handle routes one binary frame to its extraction path. The returned
// error is reported to the sender as a 500; partial extractions are
// left in place.
func (e *Extractor) Handle(frame *codec.BinaryFrame) error {
	canonical, ok := codec.CanonicalBinaryType(frame.Type)
	if !ok {
		return &codec.FrameError{Kind: codec.ErrUnknownBinaryType, Detail: frame.Type}
	}

	start := time.Now()
	var err error
	switch canonical {
	case codec.BinaryTranslationsZip:
		err = e.extractTranslations(frame.Payload)
	case codec.BinaryDatabaseZip:
		err = e.extractDatabase(frame.Payload)
	default:
		var n int
		n, err = e.extractTree(frame.Payload, e.Dir(canonical))
		if err == nil {
			e.hub.SetAssetLoaded(subdirs[canonical])
			log.Info().Str("type", canonical).Int("entries", n).
				Dur("took", time.Since(start)).Msg("Asset archive extracted")
		}
	}
	if err != nil {
		log.Error().Err(err).Str("type", canonical).Msg("Asset extraction failed")
	}
	return err
}

// extractTree unpacks every file entry of a zip under dest, creating
// parent directories as needed. Directory entries are skipped. Writes
// are atomic per entry only; there is no rollback on failure.
func (e *Extractor) extractTree(payload []byte, dest string) (int, error) {
	r, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("open zip: %w", err)
	}

	count := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return count, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return count, fmt.Errorf("mkdir for %s: %w", f.Name, err)
		}
		if err := writeEntry(f, target); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// safeJoin rejects entries that would escape the destination tree.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("zip entry %q escapes destination", name)
	}
	return target, nil
}

// extractDatabase reads the single JSON entry of a database_zip and
// feeds it through the hub's normal ingest path.
func (e *Extractor) extractDatabase(payload []byte) error {
	data, err := singleEntry(payload)
	if err != nil {
		return err
	}
	db, err := model.ParseDatabase(data)
	if err != nil {
		return err
	}
	if _, err := e.hub.IngestDatabase(db); err != nil {
		return err
	}
	return nil
}

// singleEntry returns the contents of the first (and only expected)
// file entry of a zip payload.
func singleEntry(payload []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("zip has no file entries")
}
