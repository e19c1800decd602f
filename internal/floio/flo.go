// Package floio reads and writes the Middlebury .flo optical-flow container.
//
// Layout, all little-endian:
//
//	[0:4]   magic "PIEH" (float32 202021.25)
//	[4:8]   width  int32
//	[8:12]  height int32
//	[12:]   width*height pairs of float32 (u, v), row-major
package floio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/fsutil"
	"github.com/banshee-data/inverseflow/internal/monitoring"
)

// Magic is the tag that opens every .flo file.
const Magic = "PIEH"

// MaxDimension bounds width and height; larger headers are treated as
// corrupt rather than allocated.
const MaxDimension = 1 << 15

const headerSize = 12

// Read decodes one .flo stream.
func Read(r io.Reader) (*flow.Field, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", flow.ErrFormat, err)
	}
	if string(hdr[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", flow.ErrFormat, hdr[:4])
	}
	w := int32(binary.LittleEndian.Uint32(hdr[4:8]))
	h := int32(binary.LittleEndian.Uint32(hdr[8:12]))
	if w <= 0 || h <= 0 || w > MaxDimension || h > MaxDimension {
		return nil, fmt.Errorf("%w: implausible dimensions %dx%d", flow.ErrFormat, w, h)
	}

	f := flow.NewField(int(w), int(h))
	br := bufio.NewReader(r)
	var pair [8]byte
	for i := range f.Vecs {
		if _, err := io.ReadFull(br, pair[:]); err != nil {
			return nil, fmt.Errorf("%w: truncated payload at vector %d of %d", flow.ErrFormat, i, len(f.Vecs))
		}
		f.Vecs[i] = flow.Vec{
			U: math.Float32frombits(binary.LittleEndian.Uint32(pair[0:4])),
			V: math.Float32frombits(binary.LittleEndian.Uint32(pair[4:8])),
		}
	}
	return f, nil
}

// Write encodes f as a .flo stream.
func Write(w io.Writer, f *flow.Field) error {
	if f == nil || f.Width <= 0 || f.Height <= 0 || f.Width > MaxDimension || f.Height > MaxDimension {
		return fmt.Errorf("%w: cannot encode field of this size", flow.ErrFormat)
	}
	if len(f.Vecs) != f.Len() {
		return fmt.Errorf("%w: field has %d vectors, want %d", flow.ErrDimensionMismatch, len(f.Vecs), f.Len())
	}

	bw := bufio.NewWriter(w)
	var hdr [headerSize]byte
	copy(hdr[:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(f.Width))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(f.Height))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	var pair [8]byte
	for _, v := range f.Vecs {
		binary.LittleEndian.PutUint32(pair[0:4], math.Float32bits(v.U))
		binary.LittleEndian.PutUint32(pair[4:8], math.Float32bits(v.V))
		if _, err := bw.Write(pair[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFile loads a .flo file from fsys.
func ReadFile(fsys fsutil.FileSystem, path string) (*flow.Field, error) {
	data, err := fsutil.ReadLimited(fsys, path, headerSize+8*int64(MaxDimension)*MaxDimension)
	if err != nil {
		return nil, err
	}
	f, err := Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Debugf("[floio] read %s: %dx%d", path, f.Width, f.Height)
	return f, nil
}

// WriteFile stores f at path, replacing any existing file.
func WriteFile(fsys fsutil.FileSystem, path string, f *flow.Field) error {
	var buf bytes.Buffer
	if err := Write(&buf, f); err != nil {
		return err
	}
	if err := fsutil.WriteAtomic(fsys, path, buf.Bytes()); err != nil {
		return err
	}
	monitoring.Debugf("[floio] wrote %s: %dx%d", path, f.Width, f.Height)
	return nil
}
