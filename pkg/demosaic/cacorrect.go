package demosaic

import(
	"math"

	"github.com/abworrall/filmdev/pkg/fmat"
)

// CACorrect reduces lateral chromatic aberration on a premultiplied
// Bayer mosaic, in place. For red and blue it fits a single radial
// scale against the green channel (the fit is per-run, never cached),
// then resamples that color's sensel lattice through the inverse
// scale. White balance must already be applied or the channel
// brightness mismatch swamps the fit.
func CACorrect(premul *fmat.Mat[float32], cfa [2][2]uint32) {
	h := premul.NR()
	w := premul.NC()
	if h < 16 || w < 16 {
		return
	}

	for _, target := range [2]uint32{0, 2} {
		plane, pw, ph := halfPlane(premul, cfa, target)
		gref, _, _ := greenAt(premul, cfa, target)

		scale := fitRadialScale(plane, gref, pw, ph)
		if scale == 0 {
			continue
		}
		applyRadialScale(premul, plane, cfa, target, scale, pw, ph)
	}
}

// halfPlane gathers the sensels of one CFA color into a half
// resolution plane (the color's lattice is 2-strided both ways).
func halfPlane(premul *fmat.Mat[float32], cfa [2][2]uint32, target uint32) (*fmat.Mat[float32], int, int) {
	h := premul.NR()
	w := premul.NC()

	// Locate the lattice phase.
	pr, pc := 0, 0
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if cfa[i][j] == target {
				pr, pc = i, j
			}
		}
	}

	ph := (h - pr + 1) / 2
	pw := (w - pc + 1) / 2
	plane := fmat.New[float32](ph, pw)
	for r := 0; r < ph; r++ {
		for c := 0; c < pw; c++ {
			plane.Set(r, c, premul.At(pr+2*r, pc+2*c))
		}
	}
	return &plane, pw, ph
}

// greenAt builds the green estimate on the same lattice, averaging
// the orthogonal green neighbors of each target sensel.
func greenAt(premul *fmat.Mat[float32], cfa [2][2]uint32, target uint32) (*fmat.Mat[float32], int, int) {
	h := premul.NR()
	w := premul.NC()

	pr, pc := 0, 0
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if cfa[i][j] == target {
				pr, pc = i, j
			}
		}
	}
	ph := (h - pr + 1) / 2
	pw := (w - pc + 1) / 2
	gref := fmat.New[float32](ph, pw)
	for r := 0; r < ph; r++ {
		for c := 0; c < pw; c++ {
			rr, cc := pr+2*r, pc+2*c
			sum := premul.At(clampi(rr-1, 0, h-1), cc) +
				premul.At(clampi(rr+1, 0, h-1), cc) +
				premul.At(rr, clampi(cc-1, 0, w-1)) +
				premul.At(rr, clampi(cc+1, 0, w-1))
			gref.Set(r, c, sum/4)
		}
	}
	return &gref, pw, ph
}

// fitRadialScale scans a small range of radial magnifications and
// keeps the one that best aligns the color plane with the green
// estimate. Returns 0 when no scale beats unity.
func fitRadialScale(plane, gref *fmat.Mat[float32], pw, ph int) float64 {
	cx, cy := float64(pw-1)/2, float64(ph-1)/2

	cost := func(s float64) float64 {
		var sum float64
		n := 0
		for r := 2; r < ph-2; r += 3 {
			for c := 2; c < pw-2; c += 3 {
				x := cx + (float64(c)-cx)*(1+s)
				y := cy + (float64(r)-cy)*(1+s)
				if x < 0 || y < 0 || x > float64(pw-1) || y > float64(ph-1) {
					continue
				}
				v := bilinearPlane(plane, x, y, pw, ph)
				sum += math.Abs(float64(v - gref.At(r, c)))
				n++
			}
		}
		if n == 0 {
			return math.Inf(1)
		}
		return sum / float64(n)
	}

	best, bestCost := 0.0, cost(0)
	for s := -0.002; s <= 0.002; s += 0.0002 {
		if c := cost(s); c < bestCost {
			best, bestCost = s, c
		}
	}
	return best
}

func applyRadialScale(premul, plane *fmat.Mat[float32], cfa [2][2]uint32, target uint32, scale float64, pw, ph int) {
	h := premul.NR()
	w := premul.NC()
	cx, cy := float64(pw-1)/2, float64(ph-1)/2

	fmat.Rows(h, func(row int) {
		for col := 0; col < w; col++ {
			if cfa[row&1][col&1] != target {
				continue
			}
			r, c := row/2, col/2
			if r >= ph || c >= pw {
				continue
			}
			x := cx + (float64(c)-cx)*(1+scale)
			y := cy + (float64(r)-cy)*(1+scale)
			x = math.Max(0, math.Min(float64(pw-1), x))
			y = math.Max(0, math.Min(float64(ph-1), y))
			premul.Set(row, col, bilinearPlane(plane, x, y, pw, ph))
		}
	})
}

func bilinearPlane(plane *fmat.Mat[float32], x, y float64, pw, ph int) float32 {
	sX := clampi(int(math.Floor(x)), 0, pw-1)
	eX := clampi(int(math.Ceil(x)), 0, pw-1)
	sY := clampi(int(math.Floor(y)), 0, ph-1)
	eY := clampi(int(math.Ceil(y)), 0, ph-1)
	eWX := float32(x - math.Floor(x))
	eWY := float32(y - math.Floor(y))
	return plane.At(sY, sX)*(1-eWY)*(1-eWX) +
		plane.At(eY, sX)*eWY*(1-eWX) +
		plane.At(sY, eX)*(1-eWY)*eWX +
		plane.At(eY, eX)*eWY*eWX
}
