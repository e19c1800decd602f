package sweep

import (
	"fmt"

	"github.com/banshee-data/inverseflow/internal/floio"
	"github.com/banshee-data/inverseflow/internal/flow"
	"github.com/banshee-data/inverseflow/internal/fsutil"
	"github.com/banshee-data/inverseflow/internal/imageio"
)

// Paths names the files of one input. Only Flow is required.
type Paths struct {
	Flow      string
	Img1      string
	Img2      string
	Reference string
	// Gray loads images as a single luma channel.
	Gray bool
}

// LoadInput reads the files named by p and checks that they agree in size.
func LoadInput(fsys fsutil.FileSystem, p Paths) (Input, error) {
	if p.Flow == "" {
		return Input{}, fmt.Errorf("%w: no forward flow file given", flow.ErrConfiguration)
	}
	if (p.Img1 == "") != (p.Img2 == "") {
		return Input{}, fmt.Errorf("%w: give both images or neither", flow.ErrConfiguration)
	}

	in := Input{SourcePath: p.Flow}
	var err error
	if in.Forward, err = floio.ReadFile(fsys, p.Flow); err != nil {
		return Input{}, err
	}
	if p.Img1 != "" {
		if in.Img1, err = imageio.Load(fsys, p.Img1, p.Gray); err != nil {
			return Input{}, err
		}
		if in.Img2, err = imageio.Load(fsys, p.Img2, p.Gray); err != nil {
			return Input{}, err
		}
	}
	if p.Reference != "" {
		if in.Reference, err = floio.ReadFile(fsys, p.Reference); err != nil {
			return Input{}, err
		}
		if !in.Reference.SameSize(in.Forward.Width, in.Forward.Height) {
			return Input{}, fmt.Errorf("%w: reference %s is %dx%d, flow is %dx%d", flow.ErrDimensionMismatch,
				p.Reference, in.Reference.Width, in.Reference.Height, in.Forward.Width, in.Forward.Height)
		}
	}
	if err := flow.CheckDims(in.Forward, in.Img1, in.Img2); err != nil {
		return Input{}, err
	}
	return in, nil
}
