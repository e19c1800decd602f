// Package imageio converts decoded images into the float planes used by the
// image-aware resolution strategies, and exports validity masks.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	// Decoders beyond the stdlib set.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/fsutil"
	"github.com/banshee-data/inverseflow/internal/monitoring"
)

// MaxFileSize caps the encoded size Load accepts.
const MaxFileSize = 256 << 20

// Load decodes the image at path, applying any EXIF orientation, and returns
// it with intensities in [0,1]. gray selects a single luma channel instead
// of RGB.
func Load(fsys fsutil.FileSystem, path string, gray bool) (*flow.Image, error) {
	data, err := fsutil.ReadLimited(fsys, path, MaxFileSize)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	out := FromImage(img, gray)
	monitoring.Debugf("[imageio] loaded %s: %dx%d channels=%d", path, out.Width, out.Height, out.Channels)
	return out, nil
}

// FromImage converts img to a float image. Alpha is ignored.
func FromImage(img image.Image, gray bool) *flow.Image {
	b := img.Bounds()
	channels := 3
	if gray {
		channels = 1
	}
	out := flow.NewImage(b.Dx(), b.Dy(), channels)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := out.At(x, y)
			if gray {
				// Rec. 601 luma, as color.GrayModel.
				px[0] = float32((0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 0xffff)
				continue
			}
			px[0] = float32(r) / 0xffff
			px[1] = float32(g) / 0xffff
			px[2] = float32(bl) / 0xffff
		}
	}
	return out
}

// MaskImage renders mask as 8-bit gray: 255 for valid cells, 0 otherwise.
func MaskImage(mask *flow.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, mask.Width, mask.Height))
	for i, ok := range mask.Valid {
		if ok {
			img.Pix[(i/mask.Width)*img.Stride+i%mask.Width] = 0xff
		}
	}
	return img
}

// WriteMask exports mask as a grayscale PNG.
func WriteMask(fsys fsutil.FileSystem, path string, mask *flow.Mask) error {
	if mask == nil || mask.Width <= 0 || mask.Height <= 0 {
		return fmt.Errorf("%w: empty mask", flow.ErrConfiguration)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, MaskImage(mask)); err != nil {
		return fmt.Errorf("failed to encode mask: %w", err)
	}
	return fsutil.WriteAtomic(fsys, path, buf.Bytes())
}

// ReadMask loads a mask PNG written by WriteMask. Any non-zero pixel is
// valid.
func ReadMask(fsys fsutil.FileSystem, path string) (*flow.Mask, error) {
	data, err := fsutil.ReadLimited(fsys, path, MaxFileSize)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	b := img.Bounds()
	mask := flow.NewMask(b.Dx(), b.Dy())
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y != 0 {
				mask.Valid[y*mask.Width+x] = true
			}
		}
	}
	return mask, nil
}
