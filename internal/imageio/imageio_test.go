package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/fsutil"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testPattern() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, A: 255})
	img.Set(2, 0, color.NRGBA{B: 255, A: 255})
	img.Set(0, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 1, color.NRGBA{A: 255})
	img.Set(2, 1, color.NRGBA{R: 51, G: 102, B: 153, A: 255})
	return img
}

func TestFromImage_RGB(t *testing.T) {
	t.Parallel()

	out := FromImage(testPattern(), false)
	require.Equal(t, 3, out.Channels)
	require.Equal(t, 3, out.Width)
	require.Equal(t, 2, out.Height)

	assert.Equal(t, []float32{1, 0, 0}, out.At(0, 0))
	assert.Equal(t, []float32{0, 1, 0}, out.At(1, 0))
	assert.Equal(t, []float32{0, 0, 1}, out.At(2, 0))
	assert.Equal(t, []float32{1, 1, 1}, out.At(0, 1))
	assert.Equal(t, []float32{0, 0, 0}, out.At(1, 1))
	assert.InDeltaSlice(t, []float32{0.2, 0.4, 0.6}, out.At(2, 1), 1e-6)
}

func TestFromImage_Gray(t *testing.T) {
	t.Parallel()

	out := FromImage(testPattern(), true)
	require.Equal(t, 1, out.Channels)
	assert.InDelta(t, 0.299, out.At(0, 0)[0], 1e-6)
	assert.InDelta(t, 0.587, out.At(1, 0)[0], 1e-6)
	assert.InDelta(t, 0.114, out.At(2, 0)[0], 1e-6)
	assert.InDelta(t, 1.0, out.At(0, 1)[0], 1e-6)
}

func TestFromImage_OffsetBounds(t *testing.T) {
	t.Parallel()

	src := image.NewGray(image.Rect(0, 0, 4, 4))
	src.SetGray(2, 3, color.Gray{Y: 255})
	sub := src.SubImage(image.Rect(1, 2, 4, 4))

	out := FromImage(sub, true)
	assert.Equal(t, 3, out.Width)
	assert.Equal(t, 2, out.Height)
	assert.InDelta(t, 1.0, out.At(1, 1)[0], 1e-6)
	assert.InDelta(t, 0.0, out.At(0, 0)[0], 1e-6)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/frames/a.png", encodePNG(t, testPattern()), 0644))

	img, err := Load(mfs, "/frames/a.png", false)
	require.NoError(t, err)
	assert.Equal(t, FromImage(testPattern(), false), img)

	var jbuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jbuf, image.NewGray(image.Rect(0, 0, 8, 5)), nil))
	require.NoError(t, mfs.WriteFile("/frames/b.jpg", jbuf.Bytes(), 0644))
	img, err = Load(mfs, "/frames/b.jpg", true)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 5, img.Height)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/junk.png", []byte("definitely not an image"), 0644))

	_, err := Load(mfs, "/junk.png", false)
	assert.ErrorContains(t, err, "failed to decode")

	_, err = Load(mfs, "/missing.png", false)
	assert.Error(t, err)
}

func TestMaskRoundTrip(t *testing.T) {
	t.Parallel()

	mask := flow.NewMask(4, 3)
	for _, i := range []int{0, 5, 6, 11} {
		mask.Valid[i] = true
	}

	img := MaskImage(mask)
	assert.Equal(t, uint8(255), img.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), img.GrayAt(1, 0).Y)

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteMask(mfs, "/out/mask.png", mask))
	got, err := ReadMask(mfs, "/out/mask.png")
	require.NoError(t, err)
	assert.True(t, mask.Equal(got))

	assert.ErrorIs(t, WriteMask(mfs, "/out/empty.png", flow.NewMask(0, 0)), flow.ErrConfiguration)
}
