package flow

// Mask marks cells whose backward vector was observed directly (true) as
// opposed to synthesised by hole filling (false).
type Mask struct {
	Width  int
	Height int
	Valid  []bool
}

// NewMask returns an all-invalid mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Valid: make([]bool, width*height)}
}

// At reports whether (x, y) is valid.
func (m *Mask) At(x, y int) bool { return m.Valid[y*m.Width+x] }

// ValidCount returns the number of valid cells.
func (m *Mask) ValidCount() int {
	n := 0
	for _, ok := range m.Valid {
		if ok {
			n++
		}
	}
	return n
}

// ValidFraction returns ValidCount divided by the cell count, or 0 for an
// empty mask.
func (m *Mask) ValidFraction() float64 {
	if len(m.Valid) == 0 {
		return 0
	}
	return float64(m.ValidCount()) / float64(len(m.Valid))
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := &Mask{Width: m.Width, Height: m.Height, Valid: make([]bool, len(m.Valid))}
	copy(out.Valid, m.Valid)
	return out
}

// Equal reports exact equality.
func (m *Mask) Equal(o *Mask) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Width != o.Width || m.Height != o.Height {
		return false
	}
	for i, ok := range m.Valid {
		if ok != o.Valid[i] {
			return false
		}
	}
	return true
}
