package db

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/inverseflow/internal/flow"
)

// Blob layout before compression, little-endian:
//
//	width uint32, height uint32, then
//	field: width*height float32 pairs (u, v)
//	mask:  width*height bytes, 1 = valid

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	blobEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	blobDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

const blobHeader = 8

func putDims(dst []byte, width, height int) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(width))
	return binary.LittleEndian.AppendUint32(dst, uint32(height))
}

func decodeDims(raw []byte, cellSize int) (width, height int, payload []byte, err error) {
	if len(raw) < blobHeader {
		return 0, 0, nil, fmt.Errorf("%w: blob header truncated", flow.ErrFormat)
	}
	w := binary.LittleEndian.Uint32(raw[0:4])
	h := binary.LittleEndian.Uint32(raw[4:8])
	if uint64(len(raw)-blobHeader) != uint64(w)*uint64(h)*uint64(cellSize) {
		return 0, 0, nil, fmt.Errorf("%w: blob holds %d bytes for %dx%d", flow.ErrFormat, len(raw)-blobHeader, w, h)
	}
	return int(w), int(h), raw[blobHeader:], nil
}

// EncodeField serialises and compresses f.
func EncodeField(f *flow.Field) []byte {
	raw := make([]byte, 0, blobHeader+8*len(f.Vecs))
	raw = putDims(raw, f.Width, f.Height)
	for _, v := range f.Vecs {
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v.U))
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v.V))
	}
	return blobEncoder.EncodeAll(raw, nil)
}

// DecodeField reverses EncodeField.
func DecodeField(blob []byte) (*flow.Field, error) {
	raw, err := blobDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decode: %v", flow.ErrFormat, err)
	}
	w, h, payload, err := decodeDims(raw, 8)
	if err != nil {
		return nil, err
	}
	f := flow.NewField(w, h)
	for i := range f.Vecs {
		p := payload[8*i:]
		f.Vecs[i] = flow.Vec{
			U: math.Float32frombits(binary.LittleEndian.Uint32(p[0:4])),
			V: math.Float32frombits(binary.LittleEndian.Uint32(p[4:8])),
		}
	}
	return f, nil
}

// EncodeMask serialises and compresses m.
func EncodeMask(m *flow.Mask) []byte {
	raw := make([]byte, 0, blobHeader+len(m.Valid))
	raw = putDims(raw, m.Width, m.Height)
	for _, ok := range m.Valid {
		var b byte
		if ok {
			b = 1
		}
		raw = append(raw, b)
	}
	return blobEncoder.EncodeAll(raw, nil)
}

// DecodeMask reverses EncodeMask.
func DecodeMask(blob []byte) (*flow.Mask, error) {
	raw, err := blobDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decode: %v", flow.ErrFormat, err)
	}
	w, h, payload, err := decodeDims(raw, 1)
	if err != nil {
		return nil, err
	}
	m := flow.NewMask(w, h)
	for i, b := range payload {
		m.Valid[i] = b != 0
	}
	return m, nil
}
