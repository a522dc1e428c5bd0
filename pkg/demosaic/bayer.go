// Package demosaic reconstructs full RGB from mosaiced sensor
// images: an edge-directed interpolation for Bayer sensors, a
// three-pass interpolation for X-Trans, and a chromatic aberration
// auto-correct that runs before the Bayer path.
package demosaic

import(
	"math"

	"github.com/abworrall/filmdev/pkg/fmat"
)

// Bayer demosaics a premultiplied Bayer mosaic into three planes,
// scaling from sensor units to the 0..65535 working range. The green
// plane is filled by edge-directed interpolation; red and blue follow
// by color-difference interpolation against the green estimate.
// cfa values must be in {0,1,2} (second green already folded to 1).
func Bayer(premul *fmat.Mat[float32], cfa [2][2]uint32,
	inputScale, outputScale float64,
	red, green, blue *fmat.Mat[float32]) {

	h := premul.NR()
	w := premul.NC()
	red.SetSize(h, w)
	green.SetSize(h, w)
	blue.SetSize(h, w)

	at := func(r, c int) float32 {
		return premul.At(clampi(r, 0, h-1), clampi(c, 0, w-1))
	}
	colorAt := func(r, c int) uint32 {
		return cfa[r&1][c&1]
	}

	// Pass 1: the green plane. At green sensels, copy. At red/blue
	// sensels, pick the interpolation direction with the smaller
	// gradient.
	fmat.Rows(h, func(row int) {
		for col := 0; col < w; col++ {
			if colorAt(row, col) == 1 {
				green.Set(row, col, at(row, col))
				continue
			}
			gW, gE := at(row, col-1), at(row, col+1)
			gN, gS := at(row-1, col), at(row+1, col)
			dH := math.Abs(float64(gW - gE))
			dV := math.Abs(float64(gN - gS))
			switch {
			case dH < dV:
				green.Set(row, col, (gW+gE)/2)
			case dV < dH:
				green.Set(row, col, (gN+gS)/2)
			default:
				green.Set(row, col, (gW+gE+gN+gS)/4)
			}
		}
	})

	// Pass 2: red and blue ride on color differences against the
	// green estimate, which keeps edges from fringing.
	fmat.Rows(h, func(row int) {
		for col := 0; col < w; col++ {
			c := colorAt(row, col)
			v := at(row, col)
			g := green.At(row, col)

			for _, target := range [2]uint32{0, 2} {
				plane := red
				if target == 2 {
					plane = blue
				}
				if c == target {
					plane.Set(row, col, v)
					continue
				}
				plane.Set(row, col, g+diffFrom(premul, green, cfa, row, col, target, h, w))
			}
		}
	})

	// Scale to the working range. Interpolation differences can swing
	// slightly negative; floor them.
	scale := float32(outputScale / inputScale)
	fmat.Rows(h, func(row int) {
		for col := 0; col < w; col++ {
			red.Set(row, col, floor0(red.At(row, col)*scale))
			green.Set(row, col, floor0(green.At(row, col)*scale))
			blue.Set(row, col, floor0(blue.At(row, col)*scale))
		}
	})
}

// diffFrom averages (target - green) over the target-colored sensels
// adjacent to (row,col): the diagonal four when the target sits
// diagonally, the orthogonal pairs otherwise.
func diffFrom(premul, green *fmat.Mat[float32], cfa [2][2]uint32, row, col int, target uint32, h, w int) float32 {
	var sum float32
	n := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r := clampi(row+dr, 0, h-1)
			c := clampi(col+dc, 0, w-1)
			if cfa[r&1][c&1] != target {
				continue
			}
			sum += premul.At(r, c) - green.At(r, c)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}

func floor0(v float32) float32 {
	if v < 0 {
		return 0
	}
	return v
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
