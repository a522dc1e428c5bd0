package fcolor

import(
	"math"

	"github.com/abworrall/filmdev/pkg/fmat"
)

// ReferenceTemperature is the illuminant at which the white balance
// factors come out neutral; tint 1.0 is likewise neutral.
const ReferenceTemperature = 5200.0

// illuminantRGB approximates the linear sRGB color of a blackbody at
// the given temperature in Kelvin, normalized to max 1.
func illuminantRGB(kelvin float64) Vec3 {
	t := kelvin / 100.0

	var r, g, b float64
	if t <= 66 {
		r = 255
		g = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}
	if t >= 66 {
		b = 255
	} else if t <= 19 {
		b = 0
	} else {
		b = 138.5177312231*math.Log(t-10) - 305.0447927307
	}

	v := Vec3{clamp01(r / 255), clamp01(g / 255), clamp01(b / 255)}
	max := v[0]
	if v[1] > max { max = v[1] }
	if v[2] > max { max = v[2] }
	if max <= 0 {
		return Vec3{1, 1, 1}
	}
	return Vec3{v[0] / max, v[1] / max, v[2] / max}
}

func clamp01(f float64) float64 {
	if f < 0 { return 0 }
	if f > 1 { return 1 }
	return f
}

// WBFactors derives the per-channel camera-space factors that move
// the frame's as-shot neutral to the requested temperature and tint.
// The target illuminant is mapped into camera space through the
// inverse color matrix; the pre multipliers stand in for the camera's
// daylight response. At the reference temperature with tint 1 and
// PreMul == CamMul the factors are exactly {1,1,1}.
func WBFactors(temperature, tint float64, side Sidecar) Vec3 {
	rgbToCam := side.CamToRGB.Inverse()

	target := rgbToCam.Apply(illuminantRGB(temperature))
	ref := rgbToCam.Apply(illuminantRGB(ReferenceTemperature))

	f := Vec3{1, 1, 1}
	for c := 0; c < 3; c++ {
		if target[c] > 0 {
			f[c] = ref[c] / target[c]
		}
		f[c] *= side.PreMul[c] / side.CamMul[c]
	}
	if tint > 0 {
		f[1] /= tint
	}
	return NormalizeMuls(f)
}

// WhiteBalance applies white balance, the camera color matrix, and
// exposure compensation in one pass: out = clip(exposureFactor *
// camToRGB * diag(factors) * in, 0, outputScale). src and dst are
// interleaved RGB.
func WhiteBalance(src *fmat.Mat[float32], dst *fmat.Mat[float32],
	temperature, tint float64, side Sidecar,
	outputScale, exposureFactor float64) {

	factors := WBFactors(temperature, tint, side)
	m := side.CamToRGB

	nr := src.NR()
	width := src.NC() / 3
	dst.SetSize(nr, width*3)

	fmat.Rows(nr, func(row int) {
		for col := 0; col < width; col++ {
			v := Vec3{
				float64(src.At(row, col*3)) * factors[0],
				float64(src.At(row, col*3+1)) * factors[1],
				float64(src.At(row, col*3+2)) * factors[2],
			}
			out := m.Apply(v)
			for c := 0; c < 3; c++ {
				x := out[c] * exposureFactor
				if x < 0 { x = 0 }
				if x > outputScale { x = outputScale }
				dst.Set(row, col*3+c, float32(x))
			}
		}
	})
}
