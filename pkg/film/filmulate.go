// Package film holds the filmulation operator: a simulation of
// silver-halide development that trades global dynamic range for
// local contrast. The inner model is deliberately self-contained;
// the pipeline only sees an operator with a cancellation hook.
package film

import(
	"github.com/abworrall/filmdev/pkg/fmat"
)

// Params drives one development. The zero develtime/develsteps
// configuration is a straight print: the image passes through
// unchanged.
type Params struct {
	DevelTime       float64 // total development time, seconds
	DevelSteps      int     // simulation time steps
	AgitateCount    int     // reservoir agitations over the development
	FilmArea        float64 // square mm of simulated film
	LayerMixConst   float64 // developer diffusion between neighbor sites per step
	RolloffBoundary float64 // sensor value where the highlight rolloff engages
}

// Aborter is the slice of the parameter manager that filmulation
// consults: an atomic claim of the film parameters, and a per-step
// abort poll.
type Aborter interface {
	ClaimFilmParams() (Params, bool) // params, restart
	ClaimFilmAbort() bool
}

// Filmulate develops preFilm into filmulated. Returns true when the
// parameter manager canceled the run; the caller must then treat the
// pipeline as aborted. progress, if non-nil, receives the step
// fraction in [0,1].
func Filmulate(preFilm *fmat.Mat[float32], filmulated *fmat.Mat[float32], pm Aborter, progress func(float64)) bool {
	params, restart := pm.ClaimFilmParams()
	if restart {
		return true
	}

	nr := preFilm.NR()
	nc := preFilm.NC()
	filmulated.SetSize(nr, nc)

	if params.DevelTime <= 0 || params.DevelSteps <= 0 {
		// Straight print.
		for row := 0; row < nr; row++ {
			copy(filmulated.Row(row), preFilm.Row(row))
		}
		return false
	}

	n := nr * nc

	// Exposure: how much light each crystal site saw, with a soft
	// rolloff above the boundary so highlights develop slowly
	// instead of clipping.
	exposure := make([]float64, n)
	rolloff := params.RolloffBoundary
	if rolloff <= 0 {
		rolloff = 51275
	}
	for row := 0; row < nr; row++ {
		for col := 0; col < nc; col++ {
			v := float64(preFilm.At(row, col))
			if v > rolloff {
				v = rolloff + (v-rolloff)/(1+(v-rolloff)/rolloff)
			}
			exposure[row*nc+col] = v / 65535.0
		}
	}

	// Developer concentration per site, plus the shared reservoir.
	// Crystal growth consumes developer where the exposure is high;
	// diffusion and agitation replenish it. That coupling is what
	// compresses highlights and opens shadows locally.
	dev := make([]float64, n)
	for i := range dev {
		dev[i] = 1.0
	}
	area := make([]float64, n) // developed crystal area, the output density

	stepTime := params.DevelTime / float64(params.DevelSteps)
	agitateEvery := params.DevelSteps + 1
	if params.AgitateCount > 0 {
		agitateEvery = params.DevelSteps / (params.AgitateCount + 1)
		if agitateEvery < 1 {
			agitateEvery = 1
		}
	}
	// Sites per unit film area scale consumption: a big sheet of
	// film depletes its developer more slowly.
	const growthConst = 0.15
	consumption := 0.3
	if params.FilmArea > 0 {
		consumption *= 864.0 / params.FilmArea
	}

	for step := 0; step < params.DevelSteps; step++ {
		if pm.ClaimFilmAbort() {
			return true
		}
		if progress != nil {
			progress(float64(step) / float64(params.DevelSteps))
		}

		fmat.Rows(nr, func(row int) {
			base := row * nc
			for col := 0; col < nc; col++ {
				i := base + col
				growth := dev[i] * exposure[i] * stepTime * growthConst
				area[i] += growth
				dev[i] -= growth * consumption
				if dev[i] < 0 {
					dev[i] = 0
				}
			}
		})

		// Developer diffuses laterally between neighboring sites of
		// the same channel.
		if params.LayerMixConst > 0 {
			mix := params.LayerMixConst
			if mix > 1 {
				mix = 1
			}
			next := make([]float64, n)
			fmat.Rows(nr, func(row int) {
				for col := 0; col < nc; col++ {
					i := row*nc + col
					sum, cnt := 0.0, 0.0
					for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -3}, {0, 3}} {
						r2 := row + d[0]
						c2 := col + d[1]
						if r2 < 0 || r2 >= nr || c2 < 0 || c2 >= nc {
							continue
						}
						sum += dev[r2*nc+c2]
						cnt++
					}
					if cnt > 0 {
						next[i] = dev[i]*(1-mix) + (sum/cnt)*mix
					} else {
						next[i] = dev[i]
					}
				}
			})
			dev = next
		}

		// Agitation stirs the reservoir back to uniform.
		if (step+1)%agitateEvery == 0 {
			mean := 0.0
			for _, d := range dev {
				mean += d
			}
			mean /= float64(n)
			for i := range dev {
				dev[i] = 0.5*dev[i] + 0.5*mean
			}
		}
	}

	// The developed density is the output; renormalize to the
	// working range so downstream white/black point has a stable
	// domain.
	maxArea := 0.0
	for _, a := range area {
		if a > maxArea {
			maxArea = a
		}
	}
	scale := 0.0
	if maxArea > 0 {
		scale = 65535.0 / maxArea
	}
	for row := 0; row < nr; row++ {
		for col := 0; col < nc; col++ {
			filmulated.Set(row, col, float32(area[row*nc+col]*scale))
		}
	}

	if progress != nil {
		progress(1)
	}
	return false
}
