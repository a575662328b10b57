package integrations

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	DefaultCoverWidth  = 600
	DefaultCoverHeight = 900
)

// CoverStore keeps user supplied covers as JPEG files named after the entry id.
type CoverStore struct {
	dir       string
	maxWidth  int
	maxHeight int
}

func NewCoverStore(dir string) *CoverStore {
	return &CoverStore{dir: dir, maxWidth: DefaultCoverWidth, maxHeight: DefaultCoverHeight}
}

func (s *CoverStore) Path(entryID string) string {
	return filepath.Join(s.dir, sanitizeFilename(entryID)+".jpg")
}

// Save decodes an image, shrinks it to fit the store bounds and writes it as
// the custom cover of entryID.
func (s *CoverStore) Save(entryID string, r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), s.maxWidth, s.maxHeight)
	if w != bounds.Dx() || h != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create covers directory: %w", err)
	}
	path := s.Path(entryID)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create cover: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Copy duplicates the cover of one entry for another.
func (s *CoverStore) Copy(fromPath, toEntryID string) (string, error) {
	src, err := os.Open(fromPath)
	if err != nil {
		return "", fmt.Errorf("failed to open cover: %w", err)
	}
	defer src.Close()
	return s.Save(toEntryID, src)
}

func (s *CoverStore) Remove(entryID string) error {
	err := os.Remove(s.Path(entryID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// fitWithin scales w x h down to fit maxW x maxH, keeping the aspect ratio.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return max(int(float64(w)*ratio), 1), max(int(float64(h)*ratio), 1)
}
