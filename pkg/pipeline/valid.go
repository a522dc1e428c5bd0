// Package pipeline is the development engine: a cached, resumable
// staged computation driven by a parameter manager that negotiates
// cancellation and incremental re-execution. The executor maps the
// current validity level to the minimum recomputation needed, claims
// parameters atomically at every stage boundary, and keeps (or
// releases) intermediate artifacts according to the cache policy.
package pipeline

// Valid is how far down the pipeline the cached artifacts can be
// trusted for the current parameter set. Every stage has a "part"
// variant meaning the stage is in progress or was interrupted; the
// executor redoes a stage whenever validity sits at or below its
// part level.
type Valid int

const (
	ValidNone Valid = iota
	ValidPartLoad
	ValidLoad
	ValidPartDemosaic
	ValidDemosaic
	ValidPartPrefilmulation
	ValidPrefilmulation
	ValidPartFilmulation
	ValidFilmulation
	ValidPartBlackWhite
	ValidBlackWhite
	ValidPartColorCurve
	ValidColorCurve
	ValidPartFilmLikeCurve
	ValidFilmLikeCurve
	ValidCount
)

var validNames = [ValidCount]string{
	"none", "partload", "load", "partdemosaic", "demosaic",
	"partprefilmulation", "prefilmulation", "partfilmulation",
	"filmulation", "partblackwhite", "blackwhite", "partcolorcurve",
	"colorcurve", "partfilmlikecurve", "filmlikecurve",
}

func (v Valid)String() string {
	if v < 0 || v >= ValidCount {
		return "invalid"
	}
	return validNames[v]
}

// completionTimes weights each stage's share of the progress bar, in
// arbitrary units. The film-like curve is cheap enough that it
// carries no weight of its own.
var completionTimes = [ValidCount]float64{
	ValidLoad:           5,
	ValidDemosaic:       50,
	ValidPrefilmulation: 5,
	ValidFilmulation:    50,
	ValidBlackWhite:     10,
	ValidColorCurve:     10,
}

// CachePolicy says whether intermediate artifacts survive between
// calls on the same pipeline. Under NoCache each stage releases its
// predecessor's buffer as soon as it has consumed it.
type CachePolicy int

const (
	NoCache CachePolicy = iota
	Cache
)

// Histo controls whether intermediate histograms are pushed at the
// sink.
type Histo int

const (
	NoHisto Histo = iota
	WithHisto
)

// Quality trades resolution for speed. LowQuality clamps the
// demosaiced image into 600x600; PreviewQuality into a configured
// square; HighQuality runs full size and may steal from a sibling.
type Quality int

const (
	LowQuality Quality = iota
	PreviewQuality
	HighQuality
)
