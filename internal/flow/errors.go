package flow

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; the returned errors wrap
// them with the detail of what was wrong.
var (
	// ErrConfiguration reports an incompatible strategy/input combination
	// or an invalid option value.
	ErrConfiguration = errors.New("configuration error")

	// ErrFormat reports a malformed input container.
	ErrFormat = errors.New("format error")

	// ErrFill reports that a filling strategy has no valid seed cell.
	ErrFill = errors.New("fill error")

	// ErrDimensionMismatch reports grids that disagree in size.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// CheckDims verifies that every non-nil image matches the field size and
// that the images agree on their channel count.
func CheckDims(f *Field, images ...*Image) error {
	if f == nil {
		return fmt.Errorf("%w: forward flow is nil", ErrConfiguration)
	}
	channels := 0
	for i, img := range images {
		if img == nil {
			continue
		}
		if img.Width != f.Width || img.Height != f.Height {
			return fmt.Errorf("%w: image %d is %dx%d, flow is %dx%d",
				ErrDimensionMismatch, i+1, img.Width, img.Height, f.Width, f.Height)
		}
		if len(img.Pix) != img.Width*img.Height*img.Channels {
			return fmt.Errorf("%w: image %d has %d samples, want %d",
				ErrDimensionMismatch, i+1, len(img.Pix), img.Width*img.Height*img.Channels)
		}
		if channels != 0 && img.Channels != channels {
			return fmt.Errorf("%w: image %d has %d channels, want %d",
				ErrDimensionMismatch, i+1, img.Channels, channels)
		}
		channels = img.Channels
	}
	if len(f.Vecs) != f.Width*f.Height {
		return fmt.Errorf("%w: flow has %d vectors, want %d",
			ErrDimensionMismatch, len(f.Vecs), f.Width*f.Height)
	}
	return nil
}
