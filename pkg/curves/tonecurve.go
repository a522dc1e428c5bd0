package curves

// ShadowsHighlights evaluates the shadows/highlights control curve at
// x in [0,1]: a monotone cubic through (0,0), (shadowsX,shadowsY),
// (highlightsX,highlightsY), (1,1). The (0,0,1,1) configuration is
// exactly the identity.
func ShadowsHighlights(x, shadowsX, shadowsY, highlightsX, highlightsY float32) float32 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	if shadowsX >= highlightsX {
		return x
	}

	xs := []float64{0, float64(shadowsX), float64(highlightsX), 1}
	ys := []float64{0, float64(shadowsY), float64(highlightsY), 1}
	return float32(monotoneCubic(xs, ys, float64(x)))
}

// monotoneCubic is a Fritsch-Carlson style piecewise Hermite through
// the given points; zero-width segments are skipped. Input xs must be
// non-decreasing.
func monotoneCubic(xs, ys []float64, x float64) float64 {
	// Compact away zero-width segments.
	px := xs[:1]
	py := ys[:1]
	for i := 1; i < len(xs); i++ {
		if xs[i] > px[len(px)-1] {
			px = append(px, xs[i])
			py = append(py, ys[i])
		}
	}
	n := len(px)
	if n < 2 {
		return x
	}

	// Secant slopes, then tangents limited to keep monotonicity.
	d := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		d[i] = (py[i+1] - py[i]) / (px[i+1] - px[i])
	}
	m := make([]float64, n)
	m[0] = d[0]
	m[n-1] = d[n-2]
	for i := 1; i < n-1; i++ {
		if d[i-1]*d[i] <= 0 {
			m[i] = 0
		} else {
			m[i] = (d[i-1] + d[i]) / 2
		}
	}
	for i := 0; i < n-1; i++ {
		if d[i] == 0 {
			m[i], m[i+1] = 0, 0
			continue
		}
		a := m[i] / d[i]
		b := m[i+1] / d[i]
		if a > 3 {
			m[i] = 3 * d[i]
		}
		if b > 3 {
			m[i+1] = 3 * d[i]
		}
	}

	// Locate the segment and evaluate.
	seg := n - 2
	for i := 0; i < n-1; i++ {
		if x <= px[i+1] {
			seg = i
			break
		}
	}
	hSeg := px[seg+1] - px[seg]
	t := (x - px[seg]) / hSeg
	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	y := h00*py[seg] + h10*hSeg*m[seg] + h01*py[seg+1] + h11*hSeg*m[seg+1]
	if y < 0 {
		y = 0
	}
	if y > 1 {
		y = 1
	}
	return y
}

// DefaultToneCurve is the house print curve: a gentle S that leaves
// black, middle grey and white where they are.
func DefaultToneCurve(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return x + 1.2*x*(1-x)*(x-0.5)
}
