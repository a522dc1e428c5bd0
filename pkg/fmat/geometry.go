package fmat

import(
	"math"
)

// Geometry operators for interleaved-RGB float matrices (rows x 3W).

// Rotate rotates src by angleDeg (counterclockwise, free angle) about
// its center into dst, expanding the canvas to the rotated bounding
// box. Sampling is bilinear; samples falling outside src are 0.
func Rotate(src *Mat[float32], dst *Mat[float32], angleDeg float64) {
	if angleDeg == 0 {
		*dst = src.Copy()
		return
	}

	w := src.NC() / 3
	h := src.NR()
	rad := angleDeg * math.Pi / 180.0
	sin, cos := math.Sincos(rad)

	ow := int(math.Round(math.Abs(float64(w)*cos) + math.Abs(float64(h)*sin)))
	oh := int(math.Round(math.Abs(float64(w)*sin) + math.Abs(float64(h)*cos)))
	dst.SetSize(oh, ow*3)

	cx, cy := float64(w-1)/2, float64(h-1)/2
	ocx, ocy := float64(ow-1)/2, float64(oh-1)/2

	Rows(oh, func(row int) {
		for col := 0; col < ow; col++ {
			// Inverse-map the output pixel back into source coords.
			dx := float64(col) - ocx
			dy := float64(row) - ocy
			sx := cos*dx - sin*dy + cx
			sy := sin*dx + cos*dy + cy

			if sx < 0 || sy < 0 || sx > float64(w-1) || sy > float64(h-1) {
				continue
			}
			for c := 0; c < 3; c++ {
				dst.Set(row, col*3+c, bilinear(src, sx, sy, c, w, h))
			}
		}
	})
}

// bilinear samples channel c of an interleaved matrix at (x,y), with
// floor/ceil source coords bracketed to the image and the fractional
// parts as weights.
func bilinear(m *Mat[float32], x, y float64, c, w, h int) float32 {
	sX := clampi(int(math.Floor(x)), 0, w-1)*3 + c
	eX := clampi(int(math.Ceil(x)), 0, w-1)*3 + c
	sY := clampi(int(math.Floor(y)), 0, h-1)
	eY := clampi(int(math.Ceil(y)), 0, h-1)
	eWX := float32(x - math.Floor(x))
	eWY := float32(y - math.Floor(y))
	sWX := 1 - eWX
	sWY := 1 - eWY
	return m.At(sY, sX)*sWY*sWX +
		m.At(eY, sX)*eWY*sWX +
		m.At(sY, eX)*sWY*eWX +
		m.At(eY, eX)*eWY*eWX
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

// DownscaleAndCrop cuts the (startX,startY)-(endX,endY) region out of
// src (coords in pixels, inclusive) and box-averages it down to fit
// within maxW x maxH. It never upscales; if the crop already fits, it
// is copied through at 1:1.
func DownscaleAndCrop(src *Mat[float32], dst *Mat[float32], startX, startY, endX, endY, maxW, maxH int) {
	cw := endX - startX + 1
	ch := endY - startY + 1

	scale := 1.0
	if s := float64(maxW) / float64(cw); s < scale {
		scale = s
	}
	if s := float64(maxH) / float64(ch); s < scale {
		scale = s
	}

	if scale >= 1.0 {
		dst.SetSize(ch, cw*3)
		Rows(ch, func(row int) {
			for col := 0; col < cw*3; col++ {
				dst.Set(row, col, src.At(row+startY, (startX*3)+col))
			}
		})
		return
	}

	ow := int(math.Round(float64(cw) * scale))
	oh := int(math.Round(float64(ch) * scale))
	dst.SetSize(oh, ow*3)

	Rows(oh, func(row int) {
		sy0 := startY + row*ch/oh
		sy1 := startY + (row+1)*ch/oh
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for col := 0; col < ow; col++ {
			sx0 := startX + col*cw/ow
			sx1 := startX + (col+1)*cw/ow
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}
			var sum [3]float64
			for y := sy0; y < sy1; y++ {
				for x := sx0; x < sx1; x++ {
					sum[0] += float64(src.At(y, x*3))
					sum[1] += float64(src.At(y, x*3+1))
					sum[2] += float64(src.At(y, x*3+2))
				}
			}
			n := float64((sy1 - sy0) * (sx1 - sx0))
			dst.Set(row, col*3, float32(sum[0]/n))
			dst.Set(row, col*3+1, float32(sum[1]/n))
			dst.Set(row, col*3+2, float32(sum[2]/n))
		}
	})
}
