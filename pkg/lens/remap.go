package lens

import(
	"math"

	"github.com/abworrall/filmdev/pkg/fmat"
)

// The remap loops. Each reads the modifier's per-row position lists
// and resamples the interleaved image bilinearly: source coordinates
// bracketed by floor/ceil into the frame, fractional parts as
// weights.

// ApplyVignetting corrects vignetting row by row, in place.
func ApplyVignetting(img *fmat.Mat[float32], mod *Modifier) {
	height := img.NR()
	fmat.Rows(height, func(row int) {
		mod.ApplyColorModification(img.Row(row), row)
	})
}

// RemapSubpixel resamples each channel through its own source
// coordinates (TCA, optionally composed with distortion when
// geometry is set), then moves the result into img.
func RemapSubpixel(img *fmat.Mat[float32], mod *Modifier, geometry bool) {
	height := img.NR()
	width := img.NC() / 3

	var newImage fmat.Mat[float32]
	newImage.SetSize(height, width*3)

	fmat.Rows(height, func(row int) {
		positions := make([]float32, width*2*3)
		var ok bool
		if geometry {
			ok = mod.ApplySubpixelGeometryDistortion(row, width, positions)
		} else {
			ok = mod.ApplySubpixelDistortion(row, width, positions)
		}
		if !ok {
			copy(newImage.Row(row), img.Row(row))
			return
		}
		for col := 0; col < width; col++ {
			listIndex := col * 2 * 3
			for c := 0; c < 3; c++ {
				coordX := float64(positions[listIndex+2*c])
				coordY := float64(positions[listIndex+2*c+1])
				newImage.Set(row, col*3+c, sampleChannel(img, coordX, coordY, c, width, height))
			}
		}
	})

	img.Take(&newImage)
}

// RemapGeometry resamples with a single source coordinate per pixel,
// applied to all three channels.
func RemapGeometry(img *fmat.Mat[float32], mod *Modifier) {
	height := img.NR()
	width := img.NC() / 3

	var newImage fmat.Mat[float32]
	newImage.SetSize(height, width*3)

	fmat.Rows(height, func(row int) {
		positions := make([]float32, width*2)
		if !mod.ApplyGeometryDistortion(row, width, positions) {
			copy(newImage.Row(row), img.Row(row))
			return
		}
		for col := 0; col < width; col++ {
			coordX := float64(positions[col*2])
			coordY := float64(positions[col*2+1])
			for c := 0; c < 3; c++ {
				newImage.Set(row, col*3+c, sampleChannel(img, coordX, coordY, c, width, height))
			}
		}
	})

	img.Take(&newImage)
}

func sampleChannel(img *fmat.Mat[float32], coordX, coordY float64, c, width, height int) float32 {
	sX := clampi(int(math.Floor(coordX)), 0, width-1)*3 + c
	eX := clampi(int(math.Ceil(coordX)), 0, width-1)*3 + c
	sY := clampi(int(math.Floor(coordY)), 0, height-1)
	eY := clampi(int(math.Ceil(coordY)), 0, height-1)
	eWX := float32(coordX - math.Floor(coordX))
	eWY := float32(coordY - math.Floor(coordY))
	sWX := 1 - eWX
	sWY := 1 - eWY
	return img.At(sY, sX)*sWY*sWX +
		img.At(eY, sX)*eWY*sWX +
		img.At(sY, eX)*sWY*eWX +
		img.At(eY, eX)*eWY*eWX
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
