package fcolor

import(
	"math"
	"testing"

	"github.com/abworrall/filmdev/pkg/fmat"
)

func TestNormalizeMuls(t *testing.T) {
	tests := []struct {
		name string
		in   Vec3
	}{
		{"typical", Vec3{2.1, 1.0, 1.6}},
		{"already normalized", Vec3{1, 1.2, 1.9}},
		{"scaled up", Vec3{400, 256, 312}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := NormalizeMuls(tc.in)
			if math.Abs(out.Min()-1.0) > 1e-12 {
				t.Errorf("min component = %v, want 1", out.Min())
			}
			// Ratios preserved.
			if math.Abs(out[0]/out[1]-tc.in[0]/tc.in[1]) > 1e-9 {
				t.Errorf("normalization changed the channel ratios")
			}
		})
	}
}

func TestNormalizeMulsDegenerate(t *testing.T) {
	out := NormalizeMuls(Vec3{0, 0, 0})
	if out != (Vec3{1, 1, 1}) {
		t.Errorf("degenerate multipliers should fall back to unity, got %v", out)
	}
}

func TestWBFactorsNeutralAtReference(t *testing.T) {
	side := NewSidecar(4, 4)
	f := WBFactors(ReferenceTemperature, 1.0, side)
	for c := 0; c < 3; c++ {
		if math.Abs(f[c]-1.0) > 1e-9 {
			t.Errorf("factor[%d] = %v at the reference illuminant, want 1", c, f[c])
		}
	}
}

func TestWBFactorsHigherTempWarmsRendering(t *testing.T) {
	side := NewSidecar(4, 4)
	// Raising the temperature declares the scene light bluer than
	// the reference, so the red channel gets the compensating boost.
	f := WBFactors(8000, 1.0, side)
	if f[0] <= f[2] {
		t.Errorf("expected red factor above blue at 8000K, got r=%v b=%v", f[0], f[2])
	}
	if math.Abs(f.Min()-1.0) > 1e-9 {
		t.Errorf("factors should stay normalized, min = %v", f.Min())
	}
}

func TestWhiteBalanceIdentity(t *testing.T) {
	side := NewSidecar(2, 2)
	src := fmat.New[float32](2, 6)
	for row := 0; row < 2; row++ {
		for col := 0; col < 6; col++ {
			src.Set(row, col, 32896)
		}
	}

	var dst fmat.Mat[float32]
	WhiteBalance(&src, &dst, ReferenceTemperature, 1.0, side, 65535, 1.0)

	for row := 0; row < 2; row++ {
		for col := 0; col < 6; col++ {
			if math.Abs(float64(dst.At(row, col))-32896) > 0.01 {
				t.Fatalf("identity white balance moved %f -> %f", 32896.0, dst.At(row, col))
			}
		}
	}
}

func TestWhiteBalanceExposureComp(t *testing.T) {
	side := NewSidecar(1, 1)
	src := fmat.New[float32](1, 3)
	src.Set(0, 0, 1000)
	src.Set(0, 1, 1000)
	src.Set(0, 2, 60000)

	var dst fmat.Mat[float32]
	WhiteBalance(&src, &dst, ReferenceTemperature, 1.0, side, 65535, 2.0)

	if got := dst.At(0, 0); math.Abs(float64(got)-2000) > 0.01 {
		t.Errorf("one stop up moved 1000 to %f, want 2000", got)
	}
	// Clipped at the output scale.
	if got := dst.At(0, 2); got != 65535 {
		t.Errorf("expected clip at 65535, got %f", got)
	}
}

func TestSidecarFullColorSentinel(t *testing.T) {
	var s Sidecar
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			s.CFA[i][j] = FullColorCFA
		}
	}
	if !s.IsFullColor() {
		t.Errorf("all-6 CFA should read as fullcolor")
	}
	s.CFA[1][1] = 2
	if s.IsFullColor() {
		t.Errorf("mixed CFA should not read as fullcolor")
	}
}

func TestMat3Inverse(t *testing.T) {
	m := Mat3{2, 0, 0, 0, 4, 0, 0, 0, 8}
	inv := m.Inverse()
	v := inv.Apply(Vec3{2, 4, 8})
	for c := 0; c < 3; c++ {
		if math.Abs(v[c]-1.0) > 1e-12 {
			t.Errorf("inverse apply gave %v, want ones", v)
		}
	}
}
