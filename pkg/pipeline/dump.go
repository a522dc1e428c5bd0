package pipeline

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/filmdev/pkg/fmat"
)

// Diagnostics: labelled PNG dumps of the float artifacts, and a
// Radiance HDR export of the filmulated linear image.

// hdrImage adapts an interleaved float matrix to hdr.Image.
type hdrImage struct {
	m     *fmat.Mat[float32]
	scale float64
}

func (h hdrImage)ColorModel() color.Model { return hdrcolor.RGBModel }
func (h hdrImage)Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{h.m.NC() / 3, h.m.NR()}}
}
func (h hdrImage)At(x, y int) color.Color { return h.HDRAt(x, y) }
func (h hdrImage)Size() int               { return (h.m.NC() / 3) * h.m.NR() }

func (h hdrImage)HDRAt(x, y int) hdrcolor.Color {
	return hdrcolor.RGB{
		R: float64(h.m.At(y, x*3)) * h.scale,
		G: float64(h.m.At(y, x*3+1)) * h.scale,
		B: float64(h.m.At(y, x*3+2)) * h.scale,
	}
}

// WriteFilmulatedHDR exports the filmulated artifact as a Radiance
// RGBE file, for poking at the linear image in external HDR tools.
// Only meaningful on a Cache pipeline that has run at least through
// filmulation.
func (p *Pipeline)WriteFilmulatedHDR(filename string) error {
	if p.filmulatedImage.Empty() {
		return fmt.Errorf("WriteFilmulatedHDR: no filmulated image cached")
	}

	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("WriteFilmulatedHDR, open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	return rgbe.Encode(writer, hdrImage{m: &p.filmulatedImage, scale: 1.0 / 65535.0})
}

// DumpArtifacts writes each live float artifact as a labelled
// grayscale PNG under the prefix. Handy when a stage goes wrong and
// you want to see where.
func (p *Pipeline)DumpArtifacts(prefix string) {
	dumps := []struct {
		name string
		m    *fmat.Mat[float32]
	}{
		{"raw", &p.rawImage},
		{"input", &p.inputImage},
		{"recovered", &p.recoveredImage},
		{"prefilm", &p.preFilmImage},
		{"filmulated", &p.filmulatedImage},
		{"contrast", &p.contrastImage},
	}
	for _, d := range dumps {
		if d.m.Empty() {
			continue
		}
		dumpGray(d.m, d.name, fmt.Sprintf("%s-%s.png", prefix, d.name))
	}
}

// dumpGray renders the matrix's luminance range to a grayscale PNG,
// gamma scaled so it looks normal to human vision, with the artifact
// name drawn in the corner.
func dumpGray(m *fmat.Mat[float32], title, filename string) {
	min, max := float64(m.Min()), float64(m.Max())
	if max <= min {
		max = min + 1
	}

	img := image.NewRGBA64(image.Rectangle{Max: image.Point{m.NC(), m.NR()}})
	for y := 0; y < m.NR(); y++ {
		for x := 0; x < m.NC(); x++ {
			lum := float64(m.At(y, x))
			gray := gammaExpand((lum - min) / (max - min))
			g16 := uint16(gray * 65535.0)
			img.Set(x, y, color.RGBA64{g16, g16, g16, 0xFFFF})
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 20, 20)
	dc.SavePNG(filename)
}

// linear to sRGB
func gammaExpand(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055*math.Pow(f, 1.0/2.4) - 0.055
}
