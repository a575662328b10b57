package integrations

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngReader(t *testing.T, w, h int) io.Reader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func decodeJPEG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	return img
}

func TestCoverStoreSaveKeepsSmallImages(t *testing.T) {
	store := NewCoverStore(t.TempDir())
	path, err := store.Save("e1", pngReader(t, 100, 150))
	require.NoError(t, err)

	assert.Equal(t, store.Path("e1"), path)
	b := decodeJPEG(t, path).Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 150, b.Dy())
}

func TestCoverStoreSaveResizes(t *testing.T) {
	store := NewCoverStore(t.TempDir())
	store.maxWidth, store.maxHeight = 50, 50

	path, err := store.Save("e1", pngReader(t, 200, 100))
	require.NoError(t, err)

	b := decodeJPEG(t, path).Bounds()
	assert.Equal(t, 50, b.Dx())
	assert.Equal(t, 25, b.Dy())
}

func TestCoverStoreRejectsGarbage(t *testing.T) {
	store := NewCoverStore(t.TempDir())
	_, err := store.Save("e1", strings.NewReader("not an image"))
	assert.Error(t, err)
}

func TestCoverStoreCopyAndRemove(t *testing.T) {
	store := NewCoverStore(t.TempDir())
	from, err := store.Save("e1", pngReader(t, 10, 10))
	require.NoError(t, err)

	to, err := store.Copy(from, "e2")
	require.NoError(t, err)
	assert.FileExists(t, to)
	assert.NotEqual(t, from, to)

	require.NoError(t, store.Remove("e2"))
	assert.NoFileExists(t, to)
	assert.NoError(t, store.Remove("e2"))
}

func TestFitWithin(t *testing.T) {
	w, h := fitWithin(1200, 1800, 600, 900)
	assert.Equal(t, 600, w)
	assert.Equal(t, 900, h)

	w, h = fitWithin(300, 300, 600, 900)
	assert.Equal(t, 300, w)
	assert.Equal(t, 300, h)

	w, h = fitWithin(5000, 1, 600, 900)
	assert.Equal(t, 600, w)
	assert.Equal(t, 1, h)
}
