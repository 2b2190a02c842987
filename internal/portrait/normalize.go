package portrait

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrUndecodable is returned by Normalize for files that are not a readable image.
var ErrUndecodable = errors.New("portrait is not a decodable image")

// DefaultMaxSide bounds the longest side of stored portraits.
const DefaultMaxSide = 768

// passthrough formats are kept as written; imaging cannot encode them.
var passthrough = map[string]bool{".webp": true}

// Normalize checks that the image at path decodes and shrinks it in place so
// its longest side is at most maxSide. The file is re-encoded in the format it
// was decoded from, whatever its name says. It reports whether the file was
// rewritten.
func Normalize(path string, maxSide int) (bool, error) {
	if maxSide <= 0 || passthrough[strings.ToLower(filepath.Ext(path))] {
		return false, nil
	}

	img, format, err := decode(path)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrUndecodable, filepath.Base(path), err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxSide && bounds.Dy() <= maxSide {
		return false, nil
	}

	resized := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	if err := replace(path, resized, format); err != nil {
		return false, err
	}
	return true, nil
}

// decode reads the image at path and the format its content is encoded in.
// Formats imaging cannot write fall back to JPEG.
func decode(path string) (image.Image, imaging.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	_, name, err := image.DecodeConfig(f)
	if err != nil {
		return nil, 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, err
	}

	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		format = imaging.JPEG
	}
	return img, format, nil
}

// replace writes img to a temporary file next to path and renames it over path.
func replace(path string, img image.Image, format imaging.Format) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".portrait-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary portrait: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := imaging.Encode(tmp, img, format, imaging.JPEGQuality(85)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode resized portrait %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write resized portrait %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace portrait %s: %w", path, err)
	}
	return nil
}
