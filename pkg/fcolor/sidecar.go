package fcolor

// FullColorCFA is the sentinel CFA value found in Iridient
// X-Transformer "fullcolor" files (and Leica monochrome files): the
// whole 2x2 pattern reads 6.
const FullColorCFA = 6

// A Sidecar collects the camera color state a decoder learns about a
// frame: color matrices, white balance multipliers, the CFA layout,
// and the format flags the demosaic dispatch keys on. It is produced
// once by the load stage and treated as immutable by everything
// downstream.
type Sidecar struct {
	CamToRGB  Mat3       // camera native -> linear RGB
	CamToRGB4 [3][4]float64 // identity-plus-second-green form, for X-Trans

	CamMul Vec3 // as-shot white balance multipliers, min normalized to 1
	PreMul Vec3 // daylight multipliers, min normalized to 1

	MaxValue float64 // white saturation, black-subtracted

	CFA       [2][2]uint32 // Bayer pattern; values in {0,1,2}, or all FullColorCFA
	XTrans    [6][6]uint32
	MaxXTrans int // > 0 means the frame is X-Trans mosaiced

	IsSraw       bool // full RGB per photosite, skip demosaic
	IsNikonSraw  bool // sraw that must not get camera multipliers
	IsMonochrome bool

	RawWidth  int
	RawHeight int
}

// NewSidecar returns the sidecar for an already-RGB source (TIFF,
// JPEG): identity matrix, unity multipliers, full 16-bit range.
func NewSidecar(width, height int) Sidecar {
	s := Sidecar{
		CamToRGB:  Identity3(),
		CamMul:    Vec3{1, 1, 1},
		PreMul:    Vec3{1, 1, 1},
		MaxValue:  65535,
		RawWidth:  width,
		RawHeight: height,
		IsSraw:    true, // full color per pixel; demosaic is a no-op scale
	}
	s.CamToRGB4 = IdentityCamToRGB4()
	return s
}

// IdentityCamToRGB4 builds the 3x4 matrix the X-Trans demosaic
// consumes: identity over RGB with column 3 repeating column 1 (green),
// folding the second green back into the first.
func IdentityCamToRGB4() [3][4]float64 {
	var m [3][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if i == j {
				m[i][j] = 1
			}
			if j == 3 {
				m[i][j] = m[i][1]
			}
		}
	}
	return m
}

// NormalizeMuls rescales multipliers so the smallest is exactly 1.
func NormalizeMuls(v Vec3) Vec3 {
	min := v.Min()
	if min <= 0 {
		return Vec3{1, 1, 1}
	}
	return Vec3{v[0] / min, v[1] / min, v[2] / min}
}

// MulForColor returns the camera multiplier for a CFA color index.
// Index 3 (second green) is treated as green; decoders are expected
// to have remapped it already, but the demosaic premultiply calls
// this on raw CFA values too.
func (s Sidecar)MulForColor(color uint32) float64 {
	switch color {
	case 0:
		return s.CamMul[0]
	case 2:
		return s.CamMul[2]
	default:
		return s.CamMul[1]
	}
}

// IsFullColor reports the all-6 CFA sentinel.
func (s Sidecar)IsFullColor() bool {
	return s.CFA[0][0] == FullColorCFA && s.CFA[0][1] == FullColorCFA &&
		s.CFA[1][0] == FullColorCFA && s.CFA[1][1] == FullColorCFA
}
