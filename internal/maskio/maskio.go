// Package maskio reads and writes label masks as PNG or TIFF images.
//
// 8- and 16-bit grayscale images map pixel values straight to label ids.
// Ids that do not fit in 16 bits are stored in 8-bit RGBA images with the
// id packed big-endian into the R, G, B and A channels.
package maskio

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/colm-brandon-ul/cellmaps/internal/labels"
)

// ErrNotLabelImage is returned for images whose colour model cannot hold
// integer label ids.
var ErrNotLabelImage = errors.New("maskio: image is not a label mask")

// Format is an on-disk image encoding.
type Format int

const (
	PNG Format = iota
	TIFF
)

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case TIFF:
		return "tiff"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// FormatFromPath picks a Format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".tif", ".tiff":
		return TIFF, nil
	default:
		return 0, fmt.Errorf("maskio: unsupported mask extension %q", filepath.Ext(path))
	}
}

// Decode reads a PNG or TIFF label mask.
func Decode(r io.Reader) (labels.Array, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return labels.Array{}, fmt.Errorf("failed to decode mask: %w", err)
	}
	return FromImage(img)
}

// FromImage converts a decoded image into a label array.
func FromImage(img image.Image) (labels.Array, error) {
	b := img.Bounds()
	out := labels.New(b.Dy(), b.Dx())

	switch m := img.(type) {
	case *image.Gray:
		for r := 0; r < out.Rows; r++ {
			i := m.PixOffset(b.Min.X, b.Min.Y+r)
			src := m.Pix[i : i+out.Cols]
			dst := out.Row(r)
			for c, v := range src {
				dst[c] = uint32(v)
			}
		}
	case *image.Gray16:
		for r := 0; r < out.Rows; r++ {
			i := m.PixOffset(b.Min.X, b.Min.Y+r)
			src := m.Pix[i : i+2*out.Cols]
			dst := out.Row(r)
			for c := range dst {
				dst[c] = uint32(src[2*c])<<8 | uint32(src[2*c+1])
			}
		}
	case *image.NRGBA:
		unpack(out, m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride)
	case *image.RGBA:
		// An opaque packed mask may round-trip through an encoder that drops
		// the alpha channel; premultiplication is a no-op at alpha 255.
		unpack(out, m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride)
	default:
		return labels.Array{}, fmt.Errorf("%w: colour model %T", ErrNotLabelImage, img)
	}
	return out, nil
}

func unpack(out labels.Array, pix []uint8, stride int) {
	for r := 0; r < out.Rows; r++ {
		src := pix[r*stride : r*stride+4*out.Cols]
		dst := out.Row(r)
		for c := range dst {
			p := src[4*c : 4*c+4]
			dst[c] = uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
		}
	}
}

// ToImage converts a label array into a Gray16 image when every id fits in
// 16 bits and a packed NRGBA image otherwise.
func ToImage(a labels.Array) image.Image {
	rect := image.Rect(0, 0, a.Cols, a.Rows)
	if a.Max() <= 0xFFFF {
		img := image.NewGray16(rect)
		for r := 0; r < a.Rows; r++ {
			dst := img.Pix[r*img.Stride:]
			for c, v := range a.Row(r) {
				dst[2*c] = uint8(v >> 8)
				dst[2*c+1] = uint8(v)
			}
		}
		return img
	}
	img := image.NewNRGBA(rect)
	for r := 0; r < a.Rows; r++ {
		dst := img.Pix[r*img.Stride:]
		for c, v := range a.Row(r) {
			dst[4*c] = uint8(v >> 24)
			dst[4*c+1] = uint8(v >> 16)
			dst[4*c+2] = uint8(v >> 8)
			dst[4*c+3] = uint8(v)
		}
	}
	return img
}

// Encode writes a in the given format.
func Encode(w io.Writer, a labels.Array, f Format) error {
	img := ToImage(a)
	switch f {
	case PNG:
		return png.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("maskio: unsupported format %v", f)
	}
}

// ReadFile decodes the mask stored at path.
func ReadFile(path string) (labels.Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return labels.Array{}, fmt.Errorf("failed to open mask: %w", err)
	}
	defer f.Close()

	a, err := Decode(f)
	if err != nil {
		return labels.Array{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// WriteFile encodes a to path, choosing the format from its extension.
func WriteFile(path string, a labels.Array) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create mask file: %w", err)
	}
	if err := Encode(f, a, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode mask: %w", err)
	}
	return f.Close()
}
