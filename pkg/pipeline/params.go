package pipeline

import(
	"github.com/abworrall/filmdev/pkg/film"
)

// AbortStatus is the parameter manager's answer to "may I keep
// going": Proceed, or Restart meaning abandon the run and return the
// empty matrix.
type AbortStatus int

const (
	Proceed AbortStatus = iota
	Restart
)

type LoadParams struct {
	FullFilename string
	TiffIn       bool
	JpegIn       bool
}

type DemosaicParams struct {
	CAEnabled  bool
	Highlights int // 0 = clip, >= 2 = inpaint recovery, else passthrough

	CameraName        string
	LensName          string // leading backslash = don't filter lenses by camera
	FocalLength       float64
	FNumber           float64
	LensfunCA         bool
	LensfunVignetting bool
	LensfunDistortion bool
}

type PrefilmParams struct {
	Temperature  float64
	Tint         float64
	ExposureComp float64 // stops
}

type BlackWhiteParams struct {
	Rotation    float64 // degrees
	CropHeight  float64 // fraction of rotated height; <= 0 disables the crop
	CropAspect  float64
	CropHoffset float64
	CropVoffset float64
	Whitepoint  float64
	Blackpoint  float64
}

type FilmlikeCurvesParams struct {
	ShadowsX    float64
	ShadowsY    float64
	HighlightsX float64
	HighlightsY float64

	Vibrance   float64
	Saturation float64

	Monochrome bool
	BwRmult    float64
	BwGmult    float64
	BwBmult    float64
}

// ParamSource is the contract the executor consumes. Each Claim is
// atomic: it returns the validity level the executor must now honor,
// whether to abort, and a snapshot of that stage's parameters, in
// one step. Each Mark advances validity past a completed stage and
// returns the new level. ClaimDemosaicAbort is polled from inside
// the raw decoder; the film claims (embedded from the film package)
// are polled from inside filmulation.
type ParamSource interface {
	GetValid() Valid

	ClaimLoadParams() (Valid, AbortStatus, LoadParams)
	ClaimDemosaicParams() (Valid, AbortStatus, LoadParams, DemosaicParams)
	ClaimPrefilmParams() (Valid, AbortStatus, PrefilmParams)
	ClaimBlackWhiteParams() (Valid, AbortStatus, BlackWhiteParams)
	ClaimFilmlikeCurvesParams() (Valid, AbortStatus, FilmlikeCurvesParams)

	ClaimDemosaicAbort() AbortStatus

	MarkLoadComplete() Valid
	MarkDemosaicComplete() Valid
	MarkPrefilmComplete() Valid
	MarkFilmComplete() Valid
	MarkBlackWhiteComplete() Valid
	MarkColorCurvesComplete() Valid
	MarkFilmLikeCurvesComplete() Valid

	film.Aborter
}
