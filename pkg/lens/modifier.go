package lens

import(
	"math"
)

// A Modifier holds the enabled corrections for one frame geometry.
// Radii are normalized so the frame half-diagonal is 1.
type Modifier struct {
	width  int
	height int
	cx, cy float64
	rNorm  float64 // 1 / half-diagonal
	scale  float64

	vignetting bool
	vigK       [3]float64

	tca  bool
	tcaR float64
	tcaB float64

	distortion bool
	distK1     float64
	distK2     float64
}

// Modifier flag bits, reported by the Enable calls.
const (
	ModVignetting = 1 << iota
	ModTCA
	ModDistortion
	ModScaling
)

func NewModifier(cropFactor float64, width, height int) *Modifier {
	m := &Modifier{
		width:  width,
		height: height,
		cx:     float64(width-1) / 2,
		cy:     float64(height-1) / 2,
		scale:  1,
	}
	halfDiag := math.Hypot(m.cx, m.cy)
	if halfDiag > 0 {
		m.rNorm = 1 / halfDiag
	}
	// Crop factor shrinks the part of the image circle we see, and
	// with it the effective strength radius.
	if cropFactor > 1 {
		m.rNorm /= cropFactor
	}
	return m
}

// EnableVignettingCorrection arms the vignetting model. Falloff
// fades as the lens stops down, so the calibration coefficients are
// attenuated by the square of the aperture ratio.
func (m *Modifier)EnableVignettingCorrection(lens *Lens, focalLength, fnumber, distance float64) int {
	if lens == nil {
		return 0
	}
	atten := 1.0
	if lens.MinFNumber > 0 && fnumber > lens.MinFNumber {
		atten = (lens.MinFNumber / fnumber) * (lens.MinFNumber / fnumber)
	}
	m.vigK = [3]float64{lens.Vignetting.K1 * atten, lens.Vignetting.K2 * atten, lens.Vignetting.K3 * atten}
	m.vignetting = true
	return ModVignetting
}

func (m *Modifier)EnableTCACorrection(lens *Lens, focalLength float64) int {
	if lens == nil {
		return 0
	}
	m.tcaR = lens.TCA.R
	m.tcaB = lens.TCA.B
	m.tca = true
	return ModTCA
}

func (m *Modifier)EnableDistortionCorrection(lens *Lens, focalLength float64) int {
	if lens == nil {
		return 0
	}
	m.distK1 = lens.Distortion.K1
	m.distK2 = lens.Distortion.K2
	m.distortion = true
	return ModDistortion
}

// distortionFactor is the radial multiplier mapping corrected
// coordinates back into the distorted source.
func (m *Modifier)distortionFactor(r2 float64) float64 {
	return 1 + m.distK1*r2 + m.distK2*r2*r2
}

// GetAutoScale returns the scale that keeps every remapped
// coordinate inside the source frame.
func (m *Modifier)GetAutoScale() float64 {
	if !m.distortion {
		return 1
	}
	maxR := 0.0
	for _, r := range []float64{0.25, 0.5, 0.75, 1.0} {
		rr := r * m.distortionFactor(r*r)
		if rr > maxR {
			maxR = rr
		}
	}
	if maxR <= 1 {
		return 1
	}
	return 1 / maxR
}

func (m *Modifier)EnableScaling(scale float64) int {
	if scale <= 0 || scale == 1 {
		return 0
	}
	m.scale = scale
	return ModScaling
}

// ApplyColorModification corrects vignetting on one interleaved row,
// in place. Returns false when vignetting is not enabled.
func (m *Modifier)ApplyColorModification(row []float32, y int) bool {
	if !m.vignetting {
		return false
	}
	for col := 0; col < len(row)/3; col++ {
		dx := (float64(col) - m.cx) * m.rNorm
		dy := (float64(y) - m.cy) * m.rNorm
		r2 := dx*dx + dy*dy
		gain := 1 + m.vigK[0]*r2 + m.vigK[1]*r2*r2 + m.vigK[2]*r2*r2*r2
		if gain <= 0.05 {
			gain = 0.05
		}
		for c := 0; c < 3; c++ {
			row[col*3+c] = float32(float64(row[col*3+c]) / gain)
		}
	}
	return true
}

// source maps an output pixel back to its source coordinate for one
// channel's radial multiplier.
func (m *Modifier)source(x, y int, radialMul float64) (float64, float64) {
	dx := float64(x) - m.cx
	dy := float64(y) - m.cy
	return m.cx + dx*radialMul*m.scale, m.cy + dy*radialMul*m.scale
}

func (m *Modifier)channelMul(c int, r2 float64) float64 {
	mul := 1.0
	if m.distortion {
		mul *= m.distortionFactor(r2)
	}
	if m.tca {
		switch c {
		case 0:
			mul *= 1 + m.tcaR
		case 2:
			mul *= 1 + m.tcaB
		}
	}
	return mul
}

// ApplySubpixelGeometryDistortion fills positions with an (x,y)
// source coordinate per channel per pixel (6 floats per pixel) for
// one row, composing TCA and geometric distortion.
func (m *Modifier)ApplySubpixelGeometryDistortion(y, width int, positions []float32) bool {
	if !m.tca && !m.distortion {
		return false
	}
	for col := 0; col < width; col++ {
		dx := (float64(col) - m.cx) * m.rNorm
		dy := (float64(y) - m.cy) * m.rNorm
		r2 := dx*dx + dy*dy
		for c := 0; c < 3; c++ {
			sx, sy := m.source(col, y, m.channelMul(c, r2))
			positions[col*6+2*c] = float32(sx)
			positions[col*6+2*c+1] = float32(sy)
		}
	}
	return true
}

// ApplySubpixelDistortion is the TCA-only variant: same layout as
// ApplySubpixelGeometryDistortion, distortion ignored.
func (m *Modifier)ApplySubpixelDistortion(y, width int, positions []float32) bool {
	if !m.tca {
		return false
	}
	for col := 0; col < width; col++ {
		for c := 0; c < 3; c++ {
			mul := 1.0
			switch c {
			case 0:
				mul = 1 + m.tcaR
			case 2:
				mul = 1 + m.tcaB
			}
			sx, sy := m.source(col, y, mul)
			positions[col*6+2*c] = float32(sx)
			positions[col*6+2*c+1] = float32(sy)
		}
	}
	return true
}

// ApplyGeometryDistortion fills one (x,y) per pixel (2 floats per
// pixel), applied identically to all channels.
func (m *Modifier)ApplyGeometryDistortion(y, width int, positions []float32) bool {
	if !m.distortion {
		return false
	}
	for col := 0; col < width; col++ {
		dx := (float64(col) - m.cx) * m.rNorm
		dy := (float64(y) - m.cy) * m.rNorm
		r2 := dx*dx + dy*dy
		sx, sy := m.source(col, y, m.distortionFactor(r2))
		positions[col*2] = float32(sx)
		positions[col*2+1] = float32(sy)
	}
	return true
}
