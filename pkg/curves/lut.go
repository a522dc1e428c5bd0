// Package curves holds the tonal operators at the bottom of the
// pipeline: per-channel LUTs, the film-like tone curve, and the
// vibrance/saturation/monochrome finishing pass.
package curves

import(
	"github.com/abworrall/filmdev/pkg/fmat"
)

// A LUT is a full 16-bit lookup table.
type LUT []uint16

func NewLUT() LUT {
	l := make(LUT, 65536)
	l.SetUnity()
	return l
}

func (l LUT)SetUnity() {
	for i := range l {
		l[i] = uint16(i)
	}
}

func (l LUT)Fill(fn func(uint16) uint16) {
	for i := range l {
		l[i] = fn(uint16(i))
	}
}

// ColorCurves applies the three per-channel LUTs to an interleaved
// float image, producing the pipeline's first uint16 artifact.
func ColorCurves(src *fmat.Mat[float32], dst *fmat.Mat[uint16], lutR, lutG, lutB LUT) {
	nr, nc := src.NR(), src.NC()
	dst.SetSize(nr, nc)
	luts := [3]LUT{lutR, lutG, lutB}
	fmat.Rows(nr, func(row int) {
		for col := 0; col < nc; col++ {
			v := src.At(row, col)
			if v < 0 {
				v = 0
			}
			if v > 65535 {
				v = 65535
			}
			dst.Set(row, col, luts[col%3][uint16(v+0.5)])
		}
	})
}

// FilmLikeCurve applies one LUT to all channels.
func FilmLikeCurve(src *fmat.Mat[uint16], dst *fmat.Mat[uint16], lut LUT) {
	nr, nc := src.NR(), src.NC()
	dst.SetSize(nr, nc)
	fmat.Rows(nr, func(row int) {
		for col := 0; col < nc; col++ {
			dst.Set(row, col, lut[src.At(row, col)])
		}
	})
}
