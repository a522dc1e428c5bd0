package pipeline

import(
	"sync"

	"github.com/abworrall/filmdev/pkg/film"
)

// ParamManager is the single source of truth for parameters and
// validity, shared between pipeline instances and whatever edits the
// parameters. Every access goes through the claim/mark calls under
// one lock, which is what makes a claim atomic: "read the current
// parameters and ask permission to proceed in one step".
//
// Editing a stage's parameters drops validity to just before that
// stage; an executor mid-run discovers this at its next claim (or
// abort poll) and restarts.
type ParamManager struct {
	mu    sync.Mutex
	valid Valid

	load       LoadParams
	demosaic   DemosaicParams
	prefilm    PrefilmParams
	filmP      film.Params
	blackWhite BlackWhiteParams
	filmlike   FilmlikeCurvesParams
}

func NewParamManager() *ParamManager {
	return &ParamManager{
		prefilm: PrefilmParams{Temperature: 5200, Tint: 1},
		filmP: film.Params{
			DevelTime:       100,
			DevelSteps:      12,
			AgitateCount:    1,
			FilmArea:        864,
			LayerMixConst:   0.2,
			RolloffBoundary: 51275,
		},
		blackWhite: BlackWhiteParams{
			CropAspect: 1,
			Whitepoint: 65535,
		},
		filmlike: FilmlikeCurvesParams{
			ShadowsX:    0.25,
			ShadowsY:    0.25,
			HighlightsX: 0.75,
			HighlightsY: 0.75,
			BwRmult:     0.21,
			BwGmult:     0.72,
			BwBmult:     0.07,
		},
	}
}

func (pm *ParamManager)GetValid() Valid {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.valid
}

// claim is the shared protocol: completes is the level the claiming
// stage would reach. If an edit has dropped validity below the
// stage's prerequisite, the claimer must restart; otherwise validity
// moves to the stage's part level, marking it in progress.
func (pm *ParamManager)claim(completes Valid) AbortStatus {
	prereq := completes - 2
	if prereq < ValidNone {
		prereq = ValidNone
	}
	if pm.valid < prereq {
		return Restart
	}
	if pm.valid < completes-1 {
		pm.valid = completes - 1
	}
	return Proceed
}

// mark advances validity only if this stage is still the one in
// flight; a concurrent edit leaves validity where the edit put it.
func (pm *ParamManager)mark(completes Valid) Valid {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.valid == completes-1 {
		pm.valid = completes
	}
	return pm.valid
}

func (pm *ParamManager)ClaimLoadParams() (Valid, AbortStatus, LoadParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	abort := pm.claim(ValidLoad)
	return pm.valid, abort, pm.load
}

func (pm *ParamManager)ClaimDemosaicParams() (Valid, AbortStatus, LoadParams, DemosaicParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	abort := pm.claim(ValidDemosaic)
	return pm.valid, abort, pm.load, pm.demosaic
}

func (pm *ParamManager)ClaimPrefilmParams() (Valid, AbortStatus, PrefilmParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	abort := pm.claim(ValidPrefilmulation)
	return pm.valid, abort, pm.prefilm
}

func (pm *ParamManager)ClaimBlackWhiteParams() (Valid, AbortStatus, BlackWhiteParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	abort := pm.claim(ValidBlackWhite)
	return pm.valid, abort, pm.blackWhite
}

func (pm *ParamManager)ClaimFilmlikeCurvesParams() (Valid, AbortStatus, FilmlikeCurvesParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	abort := pm.claim(ValidFilmLikeCurve)
	return pm.valid, abort, pm.filmlike
}

// ClaimDemosaicAbort is polled by the raw decoder's row loop, which
// runs while the load stage is in flight: anything that invalidates
// the load (validity below partload) cancels the decode.
func (pm *ParamManager)ClaimDemosaicAbort() AbortStatus {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.valid < ValidPartLoad {
		return Restart
	}
	return Proceed
}

// ClaimFilmParams and ClaimFilmAbort implement film.Aborter.
func (pm *ParamManager)ClaimFilmParams() (film.Params, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.claim(ValidFilmulation) == Restart {
		return pm.filmP, true
	}
	return pm.filmP, false
}

func (pm *ParamManager)ClaimFilmAbort() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.valid < ValidPartFilmulation
}

func (pm *ParamManager)MarkLoadComplete() Valid       { return pm.mark(ValidLoad) }
func (pm *ParamManager)MarkDemosaicComplete() Valid   { return pm.mark(ValidDemosaic) }
func (pm *ParamManager)MarkPrefilmComplete() Valid    { return pm.mark(ValidPrefilmulation) }
func (pm *ParamManager)MarkFilmComplete() Valid       { return pm.mark(ValidFilmulation) }
func (pm *ParamManager)MarkBlackWhiteComplete() Valid { return pm.mark(ValidBlackWhite) }
// The color curve stage has no parameters to claim, so nothing moves
// validity to partcolorcurve first; it completes straight from
// blackwhite.
func (pm *ParamManager)MarkColorCurvesComplete() Valid {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.valid == ValidBlackWhite || pm.valid == ValidPartColorCurve {
		pm.valid = ValidColorCurve
	}
	return pm.valid
}
func (pm *ParamManager)MarkFilmLikeCurvesComplete() Valid {
	return pm.mark(ValidFilmLikeCurve)
}

// The setters: each one invalidates its stage and everything after.

func (pm *ParamManager)SetLoadParams(p LoadParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.load = p
	pm.lower(ValidNone)
}

func (pm *ParamManager)SetDemosaicParams(p DemosaicParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.demosaic = p
	pm.lower(ValidLoad)
}

func (pm *ParamManager)SetPrefilmParams(p PrefilmParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.prefilm = p
	pm.lower(ValidDemosaic)
}

func (pm *ParamManager)SetFilmParams(p film.Params) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.filmP = p
	pm.lower(ValidPrefilmulation)
}

func (pm *ParamManager)SetBlackWhiteParams(p BlackWhiteParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.blackWhite = p
	pm.lower(ValidFilmulation)
}

func (pm *ParamManager)SetFilmlikeCurvesParams(p FilmlikeCurvesParams) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.filmlike = p
	pm.lower(ValidColorCurve)
}

func (pm *ParamManager)lower(to Valid) {
	if pm.valid > to {
		pm.valid = to
	}
}

// Getters for editors that want to tweak a single field.

func (pm *ParamManager)LoadParams() LoadParams {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.load
}

func (pm *ParamManager)DemosaicParams() DemosaicParams {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.demosaic
}

func (pm *ParamManager)PrefilmParams() PrefilmParams {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.prefilm
}

func (pm *ParamManager)FilmParams() film.Params {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.filmP
}

func (pm *ParamManager)BlackWhiteParams() BlackWhiteParams {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.blackWhite
}

func (pm *ParamManager)FilmlikeCurvesParams() FilmlikeCurvesParams {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.filmlike
}
