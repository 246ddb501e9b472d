package imageio

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clblur/internal/assets"
	"github.com/cwbudde/clblur/internal/compute"
)

func TestLoadEmbedded(t *testing.T) {
	l, err := Load(assets.DefaultImage, assets.FS)
	require.NoError(t, err)
	assert.Equal(t, SourceEmbedded, l.Source)
	assert.Equal(t, "png", l.Type)

	h := ToHost(l.Image)
	assert.Equal(t, compute.FormatRGBA, h.Format)
	assert.NoError(t, h.Validate())
}

func TestLoadFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gray.png")
	g := image.NewGray(image.Rect(0, 0, 3, 2))
	g.Pix = []byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, imgio.Save(path, g, imgio.PNGEncoder()))

	l, err := Load(path, assets.FS)
	require.NoError(t, err)
	assert.Equal(t, SourceFile, l.Source)

	h := ToHost(l.Image)
	assert.Equal(t, compute.FormatGray, h.Format)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, h.Pix)
}

func TestLoadFailures(t *testing.T) {
	_, err := Load("does-not-exist.png", fstest.MapFS{})
	assert.True(t, errors.Is(err, compute.ErrImageDecode))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, []string{"embedded:does-not-exist.png", "does-not-exist.png"}, nf.Tried)

	res := fstest.MapFS{
		"notes.txt": {Data: []byte("just some text")},
		"trunc.png": {Data: []byte("\x89PNG\r\n\x1a\n\x00\x00")},
	}
	_, err = Load("notes.txt", res)
	assert.True(t, errors.Is(err, compute.ErrImageDecode), "got %v", err)
	_, err = Load("trunc.png", res)
	assert.True(t, errors.Is(err, compute.ErrImageDecode), "got %v", err)
}

func TestHostRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	h := ToHost(src)
	require.Equal(t, compute.FormatRGBA, h.Format)
	assert.Equal(t, byte(10), h.Pix[4])

	img, err := FromHost(h)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, img.At(1, 0))

	// Sub-images keep their own origin.
	g := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range g.Pix {
		g.Pix[i] = byte(i)
	}
	sub := g.SubImage(image.Rect(1, 1, 3, 3))
	assert.Equal(t, []byte{5, 6, 9, 10}, ToHost(sub).Pix)

	_, err = FromHost(compute.HostImage{Format: compute.FormatGray, Width: 1, Height: 1})
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "sampleimage1_convolved.png", OutputPath("sampleimage1.png", ""))
	assert.Equal(t, filepath.Join("a", "b", "photo_convolved.jpg"), OutputPath(filepath.Join("a", "b", "photo.tiff"), "jpg"))
	assert.Equal(t, "noext_convolved.png", OutputPath("noext", ""))
	assert.Equal(t, "scan_convolved.png", OutputPath("scan.TIFF", ""))
	assert.Equal(t, "Photo_convolved.jpg", OutputPath("Photo.JPG", ""))
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for _, name := range []string{"out.png", "out.jpg", "out.bmp"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(img, path), name)
		l, err := Load(path, nil)
		require.NoError(t, err, name)
		assert.Equal(t, 4, l.Image.Bounds().Dx())
	}
	err := Save(img, filepath.Join(dir, "out.gif"))
	assert.True(t, errors.Is(err, compute.ErrInvalidArgument))
	_, statErr := os.Stat(filepath.Join(dir, "out.gif"))
	assert.True(t, os.IsNotExist(statErr))
}
