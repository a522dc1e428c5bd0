// Package highlight reconstructs clipped sensor highlights.
package highlight

import(
	"github.com/abworrall/filmdev/pkg/fmat"
)

// Clip hard-limits every channel of an interleaved image to limit.
// This is highlights mode 0: no recovery, just a ceiling.
func Clip(src *fmat.Mat[float32], dst *fmat.Mat[float32], limit float32) {
	nr, nc := src.NR(), src.NC()
	dst.SetSize(nr, nc)
	fmat.Rows(nr, func(row int) {
		for col := 0; col < nc; col++ {
			v := src.At(row, col)
			if v > limit {
				v = limit
			}
			dst.Set(row, col, v)
		}
	})
}

// Inpaint recovers clipped pixels across three separated channel
// planes, in place. chmax carries the observed per-channel maxima,
// clmax the per-channel raw clip levels (65535 times the camera
// multiplier). A channel at or above its clip level is considered
// blown; its value is rebuilt from the surviving channels, scaled by
// the ratios a neighborhood of unclipped pixels exhibits, and
// bounded by the channel's observed maximum.
func Inpaint(width, height int, r, g, b *fmat.Mat[float32], chmax, clmax [3]float64) {
	planes := [3]*fmat.Mat[float32]{r, g, b}

	// Threshold a little under the clip level; clipped values
	// wobble below the theoretical ceiling.
	var thresh [3]float32
	for c := 0; c < 3; c++ {
		thresh[c] = float32(clmax[c] * 0.995)
	}

	fmat.Rows(height, func(row int) {
		for col := 0; col < width; col++ {
			var clipped [3]bool
			nClipped := 0
			for c := 0; c < 3; c++ {
				if planes[c].At(row, col) >= thresh[c] {
					clipped[c] = true
					nClipped++
				}
			}
			if nClipped == 0 {
				continue
			}
			if nClipped == 3 {
				// Nothing survived; peg to the observed maxima.
				for c := 0; c < 3; c++ {
					planes[c].Set(row, col, float32(chmax[c]))
				}
				continue
			}

			// Rebuild each blown channel from the unclipped ones,
			// using the channel ratios of the nearest unclipped
			// neighborhood.
			for c := 0; c < 3; c++ {
				if !clipped[c] {
					continue
				}
				est := estimateFromRatios(planes, clipped, thresh, row, col, c, width, height)
				if est > float32(chmax[c]) {
					est = float32(chmax[c])
				}
				if est > planes[c].At(row, col) {
					planes[c].Set(row, col, est)
				}
			}
		}
	})
}

// estimateFromRatios looks outward for pixels where channel c is not
// clipped, and carries their c-to-survivor ratios back to this pixel.
func estimateFromRatios(planes [3]*fmat.Mat[float32], clipped [3]bool, thresh [3]float32, row, col, c, width, height int) float32 {
	for radius := 1; radius <= 4; radius++ {
		var sum float64
		n := 0
		for dr := -radius; dr <= radius; dr++ {
			for dc := -radius; dc <= radius; dc++ {
				rr := row + dr
				cc := col + dc
				if rr < 0 || cc < 0 || rr >= height || cc >= width {
					continue
				}
				if planes[c].At(rr, cc) >= thresh[c] {
					continue
				}
				// Ratio against each surviving channel at both sites.
				for s := 0; s < 3; s++ {
					if s == c || clipped[s] {
						continue
					}
					ref := planes[s].At(rr, cc)
					here := planes[s].At(row, col)
					if ref > 1 && here > 0 {
						sum += float64(planes[c].At(rr, cc)) / float64(ref) * float64(here)
						n++
					}
				}
			}
		}
		if n > 0 {
			return float32(sum / float64(n))
		}
	}

	// No usable neighborhood: average the surviving channels.
	var sum float32
	n := 0
	for s := 0; s < 3; s++ {
		if s != c && !clipped[s] {
			sum += planes[s].At(row, col)
			n++
		}
	}
	if n == 0 {
		return planes[c].At(row, col)
	}
	return sum / float32(n)
}
