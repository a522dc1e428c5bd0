package demosaic

import(
	"github.com/abworrall/filmdev/pkg/fmat"
)

// XTrans demosaics a premultiplied X-Trans mosaic in three passes:
// scatter the known sensels, interpolate green everywhere (the 6x6
// pattern guarantees green neighbors within the 3x3 ring), then
// rebuild red and blue from color differences. The caller applies
// range scaling afterwards. camToRGB4 folds the four-channel result
// (R, G, B, second G) down to RGB.
func XTrans(premul *fmat.Mat[float32], xtrans [6][6]uint32, camToRGB4 [3][4]float64,
	red, green, blue *fmat.Mat[float32]) {

	h := premul.NR()
	w := premul.NC()

	colorAt := func(r, c int) uint32 {
		return xtrans[r%6][c%6]
	}

	var chanR, chanG, chanB fmat.Mat[float32]
	chanR.SetSize(h, w)
	chanG.SetSize(h, w)
	chanB.SetSize(h, w)

	// Pass 1: scatter, and fill green at non-green sites from the
	// 3x3 ring.
	fmat.Rows(h, func(row int) {
		for col := 0; col < w; col++ {
			v := premul.At(row, col)
			switch colorAt(row, col) {
			case 0:
				chanR.Set(row, col, v)
			case 2:
				chanB.Set(row, col, v)
			default:
				chanG.Set(row, col, v)
				continue
			}

			var sum float32
			n := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					r := clampi(row+dr, 0, h-1)
					c := clampi(col+dc, 0, w-1)
					if colorAt(r, c) == 1 {
						sum += premul.At(r, c)
						n++
					}
				}
			}
			if n > 0 {
				chanG.Set(row, col, sum/float32(n))
			}
		}
	})

	// Pass 2 and 3: red and blue by color difference, searching the
	// 5x5 window the X-Trans layout needs to always find a native
	// sensel of each color.
	fmat.Rows(h, func(row int) {
		for col := 0; col < w; col++ {
			g := chanG.At(row, col)
			if colorAt(row, col) != 0 {
				chanR.Set(row, col, g+xtransDiff(premul, &chanG, xtrans, row, col, 0, h, w))
			}
			if colorAt(row, col) != 2 {
				chanB.Set(row, col, g+xtransDiff(premul, &chanG, xtrans, row, col, 2, h, w))
			}
		}
	})

	red.SetSize(h, w)
	green.SetSize(h, w)
	blue.SetSize(h, w)
	fmat.Rows(h, func(row int) {
		for col := 0; col < w; col++ {
			ch := [4]float64{
				float64(floor0(chanR.At(row, col))),
				float64(floor0(chanG.At(row, col))),
				float64(floor0(chanB.At(row, col))),
				0, // second green is already folded into channel 1
			}
			for i, plane := range [3]*fmat.Mat[float32]{red, green, blue} {
				var acc float64
				for j := 0; j < 4; j++ {
					acc += camToRGB4[i][j] * ch[j]
				}
				plane.Set(row, col, floor0(float32(acc)))
			}
		}
	})
}

func xtransDiff(premul, green *fmat.Mat[float32], xtrans [6][6]uint32, row, col int, target uint32, h, w int) float32 {
	var sum float32
	n := 0
	for radius := 1; radius <= 2 && n == 0; radius++ {
		for dr := -radius; dr <= radius; dr++ {
			for dc := -radius; dc <= radius; dc++ {
				if dr == 0 && dc == 0 {
					continue
				}
				r := clampi(row+dr, 0, h-1)
				c := clampi(col+dc, 0, w-1)
				if xtrans[r%6][c%6] != target {
					continue
				}
				sum += premul.At(r, c) - green.At(r, c)
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}
