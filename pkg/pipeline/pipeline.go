package pipeline

import(
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/abworrall/filmdev/pkg/curves"
	"github.com/abworrall/filmdev/pkg/demosaic"
	"github.com/abworrall/filmdev/pkg/fcolor"
	"github.com/abworrall/filmdev/pkg/film"
	"github.com/abworrall/filmdev/pkg/fmat"
	"github.com/abworrall/filmdev/pkg/highlight"
	"github.com/abworrall/filmdev/pkg/input"
	"github.com/abworrall/filmdev/pkg/lens"
)

// A Pipeline owns the intermediate artifacts of one image so that a
// later call with a higher validity level can resume mid-stream.
// The stages themselves are pure functions over matrices; the
// Pipeline only sequences them, negotiates with the parameter
// manager, and manages buffer lifetimes.
type Pipeline struct {
	cache      CachePolicy
	histo      Histo
	quality    Quality
	resolution int // PreviewQuality clamp; LowQuality is fixed at 600

	rawDecoder  func(abort func() bool) input.Decoder
	tiffDecoder input.Decoder
	jpegDecoder input.Decoder

	lensDB      *lens.Database
	stealVictim *Pipeline

	hasStartedProcessing bool
	cacheEmpty           bool
	valid                Valid

	side fcolor.Sidecar
	meta input.Metadata

	rawImage       fmat.Mat[float32] // sensor units, black-subtracted
	inputImage     fmat.Mat[float32] // demosaiced, 0..65535
	recoveredImage fmat.Mat[float32] // post highlight recovery + lens corrections
	preFilmImage   fmat.Mat[float32] // post white balance + exposure
	filmulatedImage fmat.Mat[float32]
	contrastImage  fmat.Mat[float32] // post crop/rotate + white/black point

	colorCurveImage         fmat.Mat[uint16]
	vibranceSaturationImage fmat.Mat[uint16]

	lutR        curves.LUT
	lutG        curves.LUT
	lutB        curves.LUT
	filmLikeLUT curves.LUT

	pm            ParamSource
	sink          Sink
	timeRequested time.Time
}

func New(cache CachePolicy, histo Histo, quality Quality) *Pipeline {
	return &Pipeline{
		cache:      cache,
		histo:      histo,
		quality:    quality,
		resolution: 1000,
		cacheEmpty: true,
		rawDecoder: func(abort func() bool) input.Decoder {
			return input.RawDecoder{Abort: abort}
		},
		tiffDecoder: input.TIFFDecoder{},
		jpegDecoder: input.JPEGDecoder{},
		lutR:        curves.NewLUT(),
		lutG:        curves.NewLUT(),
		lutB:        curves.NewLUT(),
		filmLikeLUT: curves.NewLUT(),
	}
}

// SetCache changes the cache policy; ignored once processing has
// started, since stages have already released (or kept) buffers
// under the old policy.
func (p *Pipeline)SetCache(cache CachePolicy) {
	if !p.hasStartedProcessing {
		p.cache = cache
	}
}

func (p *Pipeline)SetResolution(res int)        { p.resolution = res }
func (p *Pipeline)SetLensDatabase(db *lens.Database) { p.lensDB = db }

// SetStealVictim points a HighQuality pipeline at a sibling whose
// demosaic output it may borrow instead of decoding the raw again.
// The borrow is read-only and the victim must outlive this
// pipeline's ProcessImage call.
func (p *Pipeline)SetStealVictim(victim *Pipeline) { p.stealVictim = victim }

// SetInputProviders swaps the decoders; raw is a factory because the
// raw decoder gets the run's abort callback.
func (p *Pipeline)SetInputProviders(raw func(abort func() bool) input.Decoder, tiff, jpeg input.Decoder) {
	if raw != nil {
		p.rawDecoder = raw
	}
	if tiff != nil {
		p.tiffDecoder = tiff
	}
	if jpeg != nil {
		p.jpegDecoder = jpeg
	}
}

// Meta returns the metadata decoded from the current input, for
// embedding in a developed file.
func (p *Pipeline)Meta() input.Metadata { return p.meta }

func emptyMatrix() fmat.Mat[uint16] { return fmat.Mat[uint16]{} }

// ProcessImage runs the pipeline from wherever the parameter
// manager's validity says it can resume, through the end. All
// failures are in-band: a decode error, a Restart at any claim, or a
// filmulation cancellation each return the empty matrix.
func (p *Pipeline)ProcessImage(pm ParamSource, sink Sink) fmat.Mat[uint16] {
	// Freeze the cache policy from here on.
	p.hasStartedProcessing = true
	p.timeRequested = time.Now()
	p.pm = pm
	p.sink = sink

	p.valid = pm.GetValid()
	if NoCache == p.cache || p.cacheEmpty {
		p.valid = ValidNone // nothing cached to resume from
	}

	p.updateProgress(p.valid, 0)

	// The ordered stage table. Validity selects the entry point;
	// execution runs from there through the end, re-checking the
	// cancellation contract at every boundary.
	stages := []struct {
		completes Valid
		run       func() AbortStatus
	}{
		{ValidLoad, p.stageLoad},
		{ValidDemosaic, p.stageDemosaic},
		{ValidPrefilmulation, p.stagePrefilm},
		{ValidFilmulation, p.stageFilmulate},
		{ValidBlackWhite, p.stageBlackWhite},
		{ValidColorCurve, p.stageColorCurve},
		{ValidFilmLikeCurve, p.stageFilmLikeCurve},
	}

	for _, st := range stages {
		if p.valid >= st.completes {
			continue
		}
		start := time.Now()
		if st.run() == Restart {
			return emptyMatrix()
		}
		recordStageTime(st.completes.String(), time.Since(start))
	}

	// Output.
	if NoCache == p.cache {
		p.cacheEmpty = true
	} else {
		p.cacheEmpty = false
	}
	if WithHisto == p.histo {
		p.sink.UpdateHistFinal(&p.vibranceSaturationImage)
	}
	p.valid = pm.MarkFilmLikeCurvesComplete()
	p.updateProgress(p.valid, 0)

	return p.vibranceSaturationImage.Alias()
}

// stageLoad decodes a raw file into the black-subtracted sensor
// matrix. Non-raw inputs (and steals) are picked up at the demosaic
// stage instead.
func (p *Pipeline)stageLoad() AbortStatus {
	valid, abort, loadParam := p.pm.ClaimLoadParams()
	p.valid = valid
	if abort == Restart {
		return Restart
	}

	if !loadParam.TiffIn && !loadParam.JpegIn && !(HighQuality == p.quality && p.stealVictim != nil) {
		dec := p.rawDecoder(func() bool {
			return p.pm.ClaimDemosaicAbort() == Restart
		})
		d, err := dec.Decode(loadParam.FullFilename)
		if err != nil {
			log.Printf("processImage: could not read input file: %v", err)
			return Restart
		}
		p.rawImage = d.Image
		p.side = d.Side
		p.meta = d.Meta

		if WithHisto == p.histo {
			p.sink.UpdateHistRaw(&p.rawImage, p.side.MaxValue, p.side)
		}
	}

	p.valid = p.pm.MarkLoadComplete()
	p.updateProgress(p.valid, 0)
	return Proceed
}

// stageDemosaic turns whatever the load stage produced into the
// full-RGB input image, then downscales for the quality level,
// recovers highlights, and applies lens corrections.
func (p *Pipeline)stageDemosaic() AbortStatus {
	valid, abort, loadParam, demosaicParam := p.pm.ClaimDemosaicParams()
	p.valid = valid
	if abort == Restart {
		log.Printf("processImage: aborted at demosaic")
		return Restart
	}

	var scaled fmat.Mat[float32]

	switch {
	case HighQuality == p.quality && p.stealVictim != nil:
		// Borrow the sibling's demosaic output and sidecar instead
		// of decoding again. Read-only; the sibling keeps ownership.
		v := p.stealVictim
		p.side = v.side
		p.meta = v.meta
		scaled = v.inputImage.Alias()

	case loadParam.TiffIn:
		d, err := p.tiffDecoder.Decode(loadParam.FullFilename)
		if err != nil {
			log.Printf("processImage: could not open image %s: %v", loadParam.FullFilename, err)
			return Restart
		}
		p.inputImage = d.Image
		p.side = d.Side
		p.meta = d.Meta

	case loadParam.JpegIn:
		d, err := p.jpegDecoder.Decode(loadParam.FullFilename)
		if err != nil {
			log.Printf("processImage: could not open image %s: %v", loadParam.FullFilename, err)
			return Restart
		}
		p.inputImage = d.Image
		p.side = d.Side
		p.meta = d.Meta

	case p.side.IsSraw:
		// Already demosaiced; just scale, and unless it's a Nikon
		// sraw (which bakes them in), apply the camera multipliers.
		p.scaleSraw()

	default:
		p.demosaicMosaic(demosaicParam)
	}

	// Quality-driven downscale.
	switch p.quality {
	case LowQuality:
		fmat.DownscaleAndCrop(&p.inputImage, &scaled, 0, 0, p.inputImage.NC()/3-1, p.inputImage.NR()-1, 600, 600)
	case PreviewQuality:
		fmat.DownscaleAndCrop(&p.inputImage, &scaled, 0, 0, p.inputImage.NC()/3-1, p.inputImage.NR()-1, p.resolution, p.resolution)
	default:
		if p.stealVictim == nil {
			scaled.Take(&p.inputImage)
		}
	}

	p.recoverHighlights(&scaled, demosaicParam)
	p.applyLensCorrections(demosaicParam)

	p.valid = p.pm.MarkDemosaicComplete()
	p.updateProgress(p.valid, 0)
	return Proceed
}

func (p *Pipeline)scaleSraw() {
	height := p.side.RawHeight
	width := p.side.RawWidth
	scaleFactor := float32(65535.0 / p.side.MaxValue)

	p.inputImage.SetSize(height, width*3)
	if p.side.IsNikonSraw {
		fmat.Rows(height, func(row int) {
			for col := 0; col < width*3; col++ {
				p.inputImage.Set(row, col, p.rawImage.At(row, col)*scaleFactor)
			}
		})
	} else {
		muls := [3]float32{
			float32(p.side.CamMul[0]),
			float32(p.side.CamMul[1]),
			float32(p.side.CamMul[2]),
		}
		fmat.Rows(height, func(row int) {
			for col := 0; col < width*3; col++ {
				p.inputImage.Set(row, col, p.rawImage.At(row, col)*scaleFactor*muls[col%3])
			}
		})
	}
}

// demosaicMosaic premultiplies the white balance onto the sensels
// and dispatches to the right demosaic for the mosaic type.
func (p *Pipeline)demosaicMosaic(demosaicParam DemosaicParams) {
	height := p.side.RawHeight
	width := p.side.RawWidth

	var red, green, blue fmat.Mat[float32]
	inputScale := p.side.MaxValue
	outputScale := 65535.0

	if p.side.MaxXTrans > 0 {
		premultiplied := fmat.New[float32](height, width)
		fmat.Rows(height, func(row int) {
			for col := 0; col < width; col++ {
				color := p.side.XTrans[row%6][col%6]
				premultiplied.Set(row, col, p.rawImage.At(row, col)*float32(p.side.MulForColor(color)))
			}
		})
		demosaic.XTrans(&premultiplied, p.side.XTrans, p.side.CamToRGB4, &red, &green, &blue)

		// No input scale inside the X-Trans pass, so scale here.
		scaleFactor := float32(outputScale / inputScale)
		fmat.Rows(red.NR(), func(row int) {
			for col := 0; col < red.NC(); col++ {
				red.Set(row, col, red.At(row, col)*scaleFactor)
				green.Set(row, col, green.At(row, col)*scaleFactor)
				blue.Set(row, col, blue.At(row, col)*scaleFactor)
			}
		})
	} else if p.side.IsMonochrome {
		scaleFactor := float32(outputScale / inputScale)
		red.SetSize(height, width)
		green.SetSize(height, width)
		blue.SetSize(height, width)
		fmat.Rows(height, func(row int) {
			for col := 0; col < width; col++ {
				v := p.rawImage.At(row, col) * scaleFactor
				red.Set(row, col, v)
				green.Set(row, col, v)
				blue.Set(row, col, v)
			}
		})
	} else {
		premultiplied := fmat.New[float32](height, width)
		fmat.Rows(height, func(row int) {
			for col := 0; col < width; col++ {
				color := p.side.CFA[row&1][col&1]
				premultiplied.Set(row, col, p.rawImage.At(row, col)*float32(p.side.MulForColor(color)))
			}
		})
		if demosaicParam.CAEnabled {
			// White balance is already on the sensels, which the CA
			// fit needs to compare channels.
			demosaic.CACorrect(&premultiplied, p.side.CFA)
		}
		demosaic.Bayer(&premultiplied, p.side.CFA, inputScale, outputScale, &red, &green, &blue)
	}

	p.inputImage.SetSize(height, width*3)
	fmat.Rows(height, func(row int) {
		for col := 0; col < width; col++ {
			p.inputImage.Set(row, col*3, red.At(row, col))
			p.inputImage.Set(row, col*3+1, green.At(row, col))
			p.inputImage.Set(row, col*3+2, blue.At(row, col))
		}
	})
}

func (p *Pipeline)recoverHighlights(scaled *fmat.Mat[float32], demosaicParam DemosaicParams) {
	height := scaled.NR()
	width := scaled.NC() / 3

	switch {
	case demosaicParam.Highlights >= 2:
		// Split to planes, inpaint against the per-channel clip
		// levels, and reinterleave.
		var rCh, gCh, bCh fmat.Mat[float32]
		rCh.SetSize(height, width)
		gCh.SetSize(height, width)
		bCh.SetSize(height, width)
		fmat.Rows(height, func(row int) {
			for col := 0; col < width; col++ {
				rCh.Set(row, col, scaled.At(row, col*3))
				gCh.Set(row, col, scaled.At(row, col*3+1))
				bCh.Set(row, col, scaled.At(row, col*3+2))
			}
		})

		chmax := [3]float64{float64(rCh.Max()), float64(gCh.Max()), float64(bCh.Max())}
		clmax := [3]float64{
			65535.0 * p.side.CamMul[0],
			65535.0 * p.side.CamMul[1],
			65535.0 * p.side.CamMul[2],
		}
		highlight.Inpaint(width, height, &rCh, &gCh, &bCh, chmax, clmax)

		p.recoveredImage.SetSize(height, width*3)
		fmat.Rows(height, func(row int) {
			for col := 0; col < width; col++ {
				p.recoveredImage.Set(row, col*3, rCh.At(row, col))
				p.recoveredImage.Set(row, col*3+1, gCh.At(row, col))
				p.recoveredImage.Set(row, col*3+2, bCh.At(row, col))
			}
		})

	case demosaicParam.Highlights == 0:
		highlight.Clip(scaled, &p.recoveredImage, 65535)

	default:
		p.recoveredImage.Take(scaled)
	}
}

func (p *Pipeline)applyLensCorrections(demosaicParam DemosaicParams) {
	if p.lensDB == nil || p.side.IsSraw {
		return
	}

	cameras := p.lensDB.FindCameras(demosaicParam.CameraName)
	if len(cameras) == 0 {
		return // not an error; we just skip the corrections
	}
	cropFactor := cameras[0].CropFactor

	lensName := demosaicParam.LensName
	var camFilter *lens.Camera
	if len(lensName) > 0 {
		if lensName[0] == '\\' {
			// A leading backslash means search lenses without
			// filtering by camera.
			lensName = lensName[1:]
		} else {
			camFilter = &cameras[0]
		}
	}
	lenses := p.lensDB.FindLenses(camFilter, lensName)
	if len(lenses) == 0 {
		return
	}
	l := &lenses[0]

	height := p.recoveredImage.NR()
	width := p.recoveredImage.NC() / 3
	mod := lens.NewModifier(cropFactor, width, height)

	if demosaicParam.LensfunCA && !p.side.IsMonochrome {
		mod.EnableTCACorrection(l, demosaicParam.FocalLength)
	}
	if demosaicParam.LensfunVignetting {
		mod.EnableVignettingCorrection(l, demosaicParam.FocalLength, demosaicParam.FNumber, 1000.0)
	}
	if demosaicParam.LensfunDistortion {
		mod.EnableDistortionCorrection(l, demosaicParam.FocalLength)
		scale := mod.GetAutoScale()
		mod.EnableScaling(scale)
		log.Printf("auto scale factor: %f", scale)
	}

	// First vignetting, in place; then the geometry corrections,
	// which each resample into a fresh buffer.
	if demosaicParam.LensfunVignetting {
		lens.ApplyVignetting(&p.recoveredImage, mod)
	}
	doCA := demosaicParam.LensfunCA && !p.side.IsMonochrome
	if doCA && demosaicParam.LensfunDistortion {
		lens.RemapSubpixel(&p.recoveredImage, mod, true)
	} else {
		if doCA {
			lens.RemapSubpixel(&p.recoveredImage, mod, false)
		}
		if demosaicParam.LensfunDistortion {
			lens.RemapGeometry(&p.recoveredImage, mod)
		}
	}
}

// stagePrefilm applies exposure compensation, white balance, and the
// camera color matrix.
func (p *Pipeline)stagePrefilm() AbortStatus {
	valid, abort, prefilmParam := p.pm.ClaimPrefilmParams()
	p.valid = valid
	if abort == Restart {
		return Restart
	}

	fcolor.WhiteBalance(&p.recoveredImage, &p.preFilmImage,
		prefilmParam.Temperature, prefilmParam.Tint, p.side,
		65535.0, math.Pow(2, prefilmParam.ExposureComp))

	if NoCache == p.cache {
		p.recoveredImage.SetSize(0, 0)
		p.cacheEmpty = true
	} else {
		p.cacheEmpty = false
	}
	if WithHisto == p.histo {
		p.sink.UpdateHistPreFilm(&p.preFilmImage, 65535)
	}

	p.valid = p.pm.MarkPrefilmComplete()
	p.updateProgress(p.valid, 0)
	return Proceed
}

// stageFilmulate runs the film simulation. The abort contract lives
// inside the operator: it claims its own parameters and polls the
// manager between time steps.
func (p *Pipeline)stageFilmulate() AbortStatus {
	aborted := film.Filmulate(&p.preFilmImage, &p.filmulatedImage, p.pm, func(frac float64) {
		p.updateProgress(p.valid, frac)
	})
	if aborted {
		return Restart
	}

	if NoCache == p.cache {
		p.preFilmImage.SetSize(0, 0)
		p.cacheEmpty = true
	} else {
		p.cacheEmpty = false
	}
	if WithHisto == p.histo {
		p.sink.UpdateHistPostFilm(&p.filmulatedImage, 1.0)
	}

	p.valid = p.pm.MarkFilmComplete()
	p.updateProgress(p.valid, 0)
	return Proceed
}

// stageBlackWhite rotates, crops, and remaps the white and black
// points into the full 16-bit range.
func (p *Pipeline)stageBlackWhite() AbortStatus {
	valid, abort, blackWhiteParam := p.pm.ClaimBlackWhiteParams()
	p.valid = valid
	if abort == Restart {
		return Restart
	}

	var rotated fmat.Mat[float32]
	fmat.Rotate(&p.filmulatedImage, &rotated, blackWhiteParam.Rotation)

	if NoCache == p.cache {
		p.filmulatedImage.SetSize(0, 0)
		p.cacheEmpty = true
	} else {
		p.cacheEmpty = false
	}

	startX, startY, endX, endY, width, height := cropGeometry(
		rotated.NC()/3, rotated.NR(), blackWhiteParam)

	var cropped fmat.Mat[float32]
	fmat.DownscaleAndCrop(&rotated, &cropped, startX, startY, endX, endY, width, height)
	rotated.SetSize(0, 0)

	whitepointBlackpoint(&cropped, &p.contrastImage,
		blackWhiteParam.Whitepoint, blackWhiteParam.Blackpoint)

	p.valid = p.pm.MarkBlackWhiteComplete()
	p.updateProgress(p.valid, 0)
	return Proceed
}

// cropGeometry clamps the requested crop into the rotated image:
// height restricted to [0,1] of the frame, aspect to
// [0.0001,10000], offsets to whatever keeps the rectangle inside.
// When the leftover margin is odd the offsets get the half-pixel
// nudge that keeps the crop integer-aligned. cropHeight <= 0 turns
// the crop off.
func cropGeometry(imWidth, imHeight int, bw BlackWhiteParams) (startX, startY, endX, endY, width, height int) {
	tempHeight := float64(imHeight) * math.Max(math.Min(1.0, bw.CropHeight), 0.0)
	tempAspect := math.Max(math.Min(10000.0, bw.CropAspect), 0.0001)

	width = int(math.Round(math.Min(tempHeight*tempAspect, float64(imWidth))))
	height = int(math.Round(math.Min(tempHeight, float64(imWidth)/tempAspect)))

	maxHoffset := (1.0 - float64(width)/float64(imWidth)) / 2.0
	maxVoffset := (1.0 - float64(height)/float64(imHeight)) / 2.0

	// 0.5 when the margin is odd, 0 otherwise.
	oddH := 0.0
	if int(math.Round(float64(imWidth-width)/2.0))*2 != imWidth-width {
		oddH = 0.5
	}
	oddV := 0.0
	if int(math.Round(float64(imHeight-height)/2.0))*2 != imHeight-height {
		oddV = 0.5
	}

	hoffset := (math.Round(math.Max(math.Min(bw.CropHoffset, maxHoffset), -maxHoffset)*float64(imWidth)+oddH) - oddH) / float64(imWidth)
	voffset := (math.Round(math.Max(math.Min(bw.CropVoffset, maxVoffset), -maxVoffset)*float64(imHeight)+oddV) - oddV) / float64(imHeight)

	startX = int(math.Round(0.5*float64(imWidth-width) + hoffset*float64(imWidth)))
	startY = int(math.Round(0.5*float64(imHeight-height) + voffset*float64(imHeight)))
	endX = startX + width - 1
	endY = startY + height - 1

	// Crop disabled, or an aspect so extreme a dimension rounded to
	// nothing: use the full frame.
	if bw.CropHeight <= 0 || width < 1 || height < 1 {
		startX, startY = 0, 0
		endX = imWidth - 1
		endY = imHeight - 1
		width = imWidth
		height = imHeight
	}
	return
}

// whitepointBlackpoint linearly remaps samples so blackpoint lands
// on 0 and whitepoint on 65535, clamped.
func whitepointBlackpoint(src *fmat.Mat[float32], dst *fmat.Mat[float32], whitepoint, blackpoint float64) {
	nr, nc := src.NR(), src.NC()
	dst.SetSize(nr, nc)

	span := whitepoint - blackpoint
	if span <= 0 {
		span = 1
	}
	scale := float32(65535.0 / span)
	black := float32(blackpoint)

	fmat.Rows(nr, func(row int) {
		for col := 0; col < nc; col++ {
			v := (src.At(row, col) - black) * scale
			if v < 0 {
				v = 0
			}
			if v > 65535 {
				v = 65535
			}
			dst.Set(row, col, v)
		}
	})
}

// stageColorCurve applies the per-channel LUTs. The curves
// themselves are reserved for a future editor, so the LUTs are
// identity; this is still where the pipeline drops to uint16.
func (p *Pipeline)stageColorCurve() AbortStatus {
	p.lutR.SetUnity()
	p.lutG.SetUnity()
	p.lutB.SetUnity()
	curves.ColorCurves(&p.contrastImage, &p.colorCurveImage, p.lutR, p.lutG, p.lutB)

	if NoCache == p.cache {
		p.contrastImage.SetSize(0, 0)
	} else {
		p.cacheEmpty = false
	}

	p.valid = p.pm.MarkColorCurvesComplete()
	p.updateProgress(p.valid, 0)
	return Proceed
}

// stageFilmLikeCurve composes the shadows/highlights control curve
// with the house tone curve into one LUT, applies it, then finishes
// with vibrance/saturation (or the monochrome mixdown).
func (p *Pipeline)stageFilmLikeCurve() AbortStatus {
	valid, abort, curvesParam := p.pm.ClaimFilmlikeCurvesParams()
	p.valid = valid
	if abort == Restart {
		return Restart
	}

	p.filmLikeLUT.Fill(func(in uint16) uint16 {
		shResult := curves.ShadowsHighlights(float32(in)/65535.0,
			float32(curvesParam.ShadowsX),
			float32(curvesParam.ShadowsY),
			float32(curvesParam.HighlightsX),
			float32(curvesParam.HighlightsY))
		return uint16(65535.0 * curves.DefaultToneCurve(float64(shResult)))
	})

	// The film-curve output shares the final artifact's storage; the
	// finishing pass then runs in place.
	curves.FilmLikeCurve(&p.colorCurveImage, &p.vibranceSaturationImage, p.filmLikeLUT)

	if NoCache == p.cache {
		p.colorCurveImage.SetSize(0, 0)
		p.cacheEmpty = true
	} else {
		p.cacheEmpty = false
	}

	if !curvesParam.Monochrome {
		curves.VibranceSaturation(&p.vibranceSaturationImage, &p.vibranceSaturationImage,
			curvesParam.Vibrance, curvesParam.Saturation)
	} else {
		curves.MonochromeConvert(&p.vibranceSaturationImage, &p.vibranceSaturationImage,
			curvesParam.BwRmult, curvesParam.BwGmult, curvesParam.BwBmult)
	}

	p.updateProgress(p.valid, 0)
	return Proceed
}

// updateProgress reports Σ weight·done / Σ weight: everything at or
// below valid counts 1.0, the stage just above carries stepProgress,
// everything further is 0.
func (p *Pipeline)updateProgress(valid Valid, stepProgress float64) {
	// The stage just above completes at the next full level; the part
	// levels (odd values) in between carry no weight of their own.
	next := valid + 1
	if next%2 == 1 {
		next++
	}

	totalTime := math.SmallestNonzeroFloat64
	totalCompletedTime := 0.0
	for i := Valid(0); i < ValidCount; i++ {
		totalTime += completionTimes[i]
		fractionCompleted := 0.0
		if i <= valid {
			fractionCompleted = 1
		} else if i == next {
			fractionCompleted = stepProgress
		}
		totalCompletedTime += completionTimes[i] * fractionCompleted
	}
	p.sink.SetProgress(totalCompletedTime / totalTime)
}
