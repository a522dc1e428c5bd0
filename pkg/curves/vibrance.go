package curves

import(
	"github.com/lucasb-eyer/go-colorful"

	"github.com/abworrall/filmdev/pkg/fmat"
)

// VibranceSaturation boosts (or cuts) color intensity: saturation
// uniformly, vibrance weighted toward pixels that aren't saturated
// yet. Both at 0 is the identity. src and dst may be the same matrix.
func VibranceSaturation(src *fmat.Mat[uint16], dst *fmat.Mat[uint16], vibrance, saturation float64) {
	nr, nc := src.NR(), src.NC()
	if dst != src {
		dst.SetSize(nr, nc)
	}
	width := nc / 3

	if vibrance == 0 && saturation == 0 {
		if dst != src {
			for row := 0; row < nr; row++ {
				copy(dst.Row(row), src.Row(row))
			}
		}
		return
	}

	fmat.Rows(nr, func(row int) {
		for col := 0; col < width; col++ {
			c := colorful.Color{
				R: float64(src.At(row, col*3)) / 65535.0,
				G: float64(src.At(row, col*3+1)) / 65535.0,
				B: float64(src.At(row, col*3+2)) / 65535.0,
			}
			h, s, v := c.Hsv()

			s *= (1 + saturation) * (1 + vibrance*(1-s))
			if s < 0 {
				s = 0
			}
			if s > 1 {
				s = 1
			}

			out := colorful.Hsv(h, s, v).Clamped()
			dst.Set(row, col*3, toU16(out.R))
			dst.Set(row, col*3+1, toU16(out.G))
			dst.Set(row, col*3+2, toU16(out.B))
		}
	})
}

// MonochromeConvert collapses the image to grey using the supplied
// channel weights, writing the grey to all three channels.
func MonochromeConvert(src *fmat.Mat[uint16], dst *fmat.Mat[uint16], rmult, gmult, bmult float64) {
	nr, nc := src.NR(), src.NC()
	if dst != src {
		dst.SetSize(nr, nc)
	}
	width := nc / 3

	fmat.Rows(nr, func(row int) {
		for col := 0; col < width; col++ {
			grey := rmult*float64(src.At(row, col*3)) +
				gmult*float64(src.At(row, col*3+1)) +
				bmult*float64(src.At(row, col*3+2))
			g := toU16(grey / 65535.0)
			dst.Set(row, col*3, g)
			dst.Set(row, col*3+1, g)
			dst.Set(row, col*3+2, g)
		}
	})
}

func toU16(f float64) uint16 {
	v := f*65535.0 + 0.5
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
