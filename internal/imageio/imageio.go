// Package imageio loads source images and writes blurred results.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cwbudde/clblur/internal/compute"
)

// Source tells where an image was found.
type Source int

const (
	SourceEmbedded Source = iota
	SourceFile
)

func (s Source) String() string {
	if s == SourceEmbedded {
		return "embedded"
	}
	return "file"
}

// Loaded is a decoded image and its origin.
type Loaded struct {
	Name   string
	Source Source
	Type   string // detected file type, e.g. "png"
	Image  image.Image
}

// NotFoundError lists every location that was searched.
type NotFoundError struct {
	Name  string
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %q not found (tried %s)", e.Name, strings.Join(e.Tried, ", "))
}

// Load looks name up in resources first, then on the filesystem.
// Failures are ImageDecodeError.
func Load(name string, resources fs.FS) (*Loaded, error) {
	data, src, tried, err := read(name, resources)
	if err != nil {
		return nil, compute.Wrap(compute.KindImageDecode, "load image", err)
	}
	if data == nil {
		return nil, compute.Wrap(compute.KindImageDecode, "load image", &NotFoundError{Name: name, Tried: tried})
	}

	kind, err := filetype.Match(data)
	if err != nil {
		return nil, compute.Wrap(compute.KindImageDecode, "load image", fmt.Errorf("%s: %w", name, err))
	}
	if !filetype.IsImage(data) {
		return nil, compute.Errorf(compute.KindImageDecode, "load image", "%s: not an image (detected %q)", name, kind.Extension)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, compute.Wrap(compute.KindImageDecode, "decode image", fmt.Errorf("%s (%s): %w", name, kind.Extension, err))
	}
	b := img.Bounds()
	slog.Debug("image loaded", "name", name, "source", src, "type", kind.Extension, "width", b.Dx(), "height", b.Dy())
	return &Loaded{Name: name, Source: src, Type: kind.Extension, Image: img}, nil
}

// read returns nil data without error when name exists nowhere.
func read(name string, resources fs.FS) ([]byte, Source, []string, error) {
	var tried []string
	if resources != nil && fs.ValidPath(name) {
		tried = append(tried, "embedded:"+name)
		data, err := fs.ReadFile(resources, name)
		if err == nil {
			return data, SourceEmbedded, tried, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, SourceEmbedded, tried, err
		}
	}
	tried = append(tried, name)
	data, err := os.ReadFile(name)
	if err == nil {
		return data, SourceFile, tried, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, SourceFile, tried, nil
	}
	return nil, SourceFile, tried, err
}

// ToHost converts img to tightly packed device pixels. Grayscale images map
// to a single channel, everything else to RGBA.
func ToHost(img image.Image) compute.HostImage {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		out := compute.NewHostImage(compute.FormatGray, b.Dx(), b.Dy())
		for y := 0; y < b.Dy(); y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*out.Stride():], src.Pix[off:off+b.Dx()])
		}
		return out
	default:
		rgba := clone.AsRGBA(img)
		out := compute.NewHostImage(compute.FormatRGBA, b.Dx(), b.Dy())
		for y := 0; y < b.Dy(); y++ {
			off := y * rgba.Stride
			copy(out.Pix[y*out.Stride():], rgba.Pix[off:off+out.Stride()])
		}
		return out
	}
}

// FromHost wraps host pixels in an image.Image.
func FromHost(h compute.HostImage) (image.Image, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	r := image.Rect(0, 0, h.Width, h.Height)
	switch h.Format.Order {
	case compute.ChannelOrderR:
		img := image.NewGray(r)
		copy(img.Pix, h.Pix)
		return img, nil
	default:
		img := image.NewRGBA(r)
		copy(img.Pix, h.Pix)
		return img, nil
	}
}

// OutputPath returns <dir>/<base>_convolved.<ext> for input. An empty ext
// keeps the input extension when it can be written, png otherwise.
func OutputPath(input, ext string) string {
	dir, file := filepath.Split(input)
	base := strings.TrimSuffix(file, filepath.Ext(file))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(file), "."))
		switch ext {
		case "png", "jpg", "jpeg", "bmp":
		default:
			ext = "png"
		}
	}
	return filepath.Join(dir, base+"_convolved."+strings.TrimPrefix(ext, "."))
}

// Save encodes img by the extension of path: png, jpg/jpeg or bmp.
func Save(img image.Image, path string) error {
	var enc imgio.Encoder
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		enc = imgio.PNGEncoder()
	case "jpg", "jpeg":
		enc = imgio.JPEGEncoder(jpeg.DefaultQuality)
		img = opaque(img)
	case "bmp":
		enc = imgio.BMPEncoder()
	default:
		return compute.Errorf(compute.KindInvalidArgument, "save image", "unsupported output format %q", filepath.Ext(path))
	}
	if err := imgio.Save(path, img, enc); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	slog.Debug("image saved", "path", path)
	return nil
}

// opaque flattens img onto white.
func opaque(img image.Image) image.Image {
	if _, ok := img.(*image.Gray); ok {
		return img
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}
