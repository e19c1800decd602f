package floio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/fsutil"
	"github.com/banshee-data/inverseflow/internal/testutil"
)

func header(w, h int32) []byte {
	b := []byte(Magic)
	b = binary.LittleEndian.AppendUint32(b, uint32(w))
	b = binary.LittleEndian.AppendUint32(b, uint32(h))
	return b
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	f := testutil.RandomField(13, 7, 5, 20)
	f.Vecs[3] = flow.Vec{U: float32(math.Inf(1)), V: -0}
	f.Vecs[4] = flow.Vec{U: 1e9, V: 1e10}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))
	assert.Equal(t, headerSize+8*f.Len(), buf.Len())
	assert.Equal(t, Magic, buf.String()[:4])

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.True(t, f.Equal(got))
}

func TestRead_Layout(t *testing.T) {
	t.Parallel()

	// 2x1 field: (1.5, -2), (0.25, 4)
	b := header(2, 1)
	for _, c := range []float32{1.5, -2, 0.25, 4} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(c))
	}

	f, err := Read(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Width)
	assert.Equal(t, 1, f.Height)
	assert.Equal(t, []flow.Vec{{U: 1.5, V: -2}, {U: 0.25, V: 4}}, f.Vecs)
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	valid := header(2, 2)
	valid = append(valid, make([]byte, 32)...)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte("PIEH\x02\x00")},
		{"bad magic", append([]byte("HEIP"), valid[4:]...)},
		{"zero width", append(header(0, 2), make([]byte, 32)...)},
		{"negative height", header(2, -1)},
		{"too wide", header(MaxDimension+1, 1)},
		{"truncated payload", valid[:len(valid)-3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Read(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, flow.ErrFormat)
		})
	}

	_, err := Read(bytes.NewReader(valid))
	assert.NoError(t, err)
}

func TestWrite_Errors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.ErrorIs(t, Write(&buf, nil), flow.ErrFormat)
	assert.ErrorIs(t, Write(&buf, &flow.Field{}), flow.ErrFormat)
	assert.ErrorIs(t, Write(&buf, &flow.Field{Width: 2, Height: 2, Vecs: make([]flow.Vec, 3)}), flow.ErrDimensionMismatch)
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	mfs := fsutil.NewMemoryFileSystem()
	f := testutil.TranslationField(4, 3, -1.25, 0.5)

	require.NoError(t, WriteFile(mfs, "/out/backward.flo", f))
	got, err := ReadFile(mfs, "/out/backward.flo")
	require.NoError(t, err)
	assert.True(t, f.Equal(got))

	_, err = ReadFile(mfs, "/out/missing.flo")
	assert.Error(t, err)

	require.NoError(t, mfs.WriteFile("/bad.flo", []byte("not a flow file"), 0644))
	_, err = ReadFile(mfs, "/bad.flo")
	assert.ErrorIs(t, err, flow.ErrFormat)
	assert.Contains(t, err.Error(), "/bad.flo")
}
