package pipeline

import(
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/abworrall/filmdev/pkg/fcolor"
	"github.com/abworrall/filmdev/pkg/film"
	"github.com/abworrall/filmdev/pkg/fmat"
	"github.com/abworrall/filmdev/pkg/input"
)

// ---- fixtures

func writeGrayJPEG(t *testing.T, w, h int, val uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: val})
		}
	}
	path := filepath.Join(t.TempDir(), "in.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return path
}

// neutralParams configures the whole chain as close to identity as
// it gets: no development, no crop, identity curves, no finishing.
func neutralParams(pm *ParamManager, path string, jpegIn bool) {
	pm.SetLoadParams(LoadParams{FullFilename: path, JpegIn: jpegIn})
	pm.SetDemosaicParams(DemosaicParams{Highlights: 0})
	pm.SetPrefilmParams(PrefilmParams{Temperature: fcolor.ReferenceTemperature, Tint: 1})
	pm.SetFilmParams(film.Params{}) // straight print
	pm.SetBlackWhiteParams(BlackWhiteParams{CropHeight: 0, CropAspect: 1, Whitepoint: 65535, Blackpoint: 0})
	pm.SetFilmlikeCurvesParams(FilmlikeCurvesParams{ShadowsX: 0, ShadowsY: 0, HighlightsX: 1, HighlightsY: 1})
}

// recordingSink tracks progress and counts histogram events.
type recordingSink struct {
	progress []float64
	raw      int
	preFilm  int
	postFilm int
	final    int
}

func (s *recordingSink)SetProgress(f float64) { s.progress = append(s.progress, f) }
func (s *recordingSink)UpdateHistRaw(m *fmat.Mat[float32], maxValue float64, side fcolor.Sidecar) {
	s.raw++
}
func (s *recordingSink)UpdateHistPreFilm(m *fmat.Mat[float32], max float64)    { s.preFilm++ }
func (s *recordingSink)UpdateHistPostFilm(m *fmat.Mat[float32], scale float64) { s.postFilm++ }
func (s *recordingSink)UpdateHistFinal(m *fmat.Mat[uint16])                    { s.final++ }

func (s *recordingSink)assertProgressMonotone(t *testing.T) {
	t.Helper()
	for i := 1; i < len(s.progress); i++ {
		if s.progress[i] < s.progress[i-1] {
			t.Errorf("progress went backwards: %f -> %f", s.progress[i-1], s.progress[i])
		}
	}
}

// scriptedSource wraps the real manager so tests can force restarts
// and watch the marks.
type scriptedSource struct {
	*ParamManager
	restartPrefilm bool
	marks          []Valid
}

func (s *scriptedSource)ClaimPrefilmParams() (Valid, AbortStatus, PrefilmParams) {
	if s.restartPrefilm {
		return s.GetValid(), Restart, PrefilmParams{}
	}
	return s.ParamManager.ClaimPrefilmParams()
}

func (s *scriptedSource)recordMark(v Valid) Valid {
	s.marks = append(s.marks, v)
	return v
}

func (s *scriptedSource)MarkLoadComplete() Valid {
	return s.recordMark(s.ParamManager.MarkLoadComplete())
}
func (s *scriptedSource)MarkDemosaicComplete() Valid {
	return s.recordMark(s.ParamManager.MarkDemosaicComplete())
}
func (s *scriptedSource)MarkPrefilmComplete() Valid {
	return s.recordMark(s.ParamManager.MarkPrefilmComplete())
}
func (s *scriptedSource)MarkFilmComplete() Valid {
	return s.recordMark(s.ParamManager.MarkFilmComplete())
}
func (s *scriptedSource)MarkBlackWhiteComplete() Valid {
	return s.recordMark(s.ParamManager.MarkBlackWhiteComplete())
}
func (s *scriptedSource)MarkColorCurvesComplete() Valid {
	return s.recordMark(s.ParamManager.MarkColorCurvesComplete())
}
func (s *scriptedSource)MarkFilmLikeCurvesComplete() Valid {
	return s.recordMark(s.ParamManager.MarkFilmLikeCurvesComplete())
}

// fakeDecoder serves a canned raw frame.
type fakeDecoder struct {
	d input.Decoded
}

func (f fakeDecoder)Decode(path string) (input.Decoded, error) { return f.d, nil }

func syntheticBayer(h, w int, val float32) input.Decoded {
	m := fmat.New[float32](h, w)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			m.Set(row, col, val)
		}
	}
	side := fcolor.Sidecar{
		CamToRGB:  fcolor.Identity3(),
		CamToRGB4: fcolor.IdentityCamToRGB4(),
		CamMul:    fcolor.Vec3{1, 1, 1},
		PreMul:    fcolor.Vec3{1, 1, 1},
		MaxValue:  1023,
		CFA:       [2][2]uint32{{0, 1}, {1, 2}},
		RawWidth:  w,
		RawHeight: h,
	}
	return input.Decoded{Image: m, Side: side}
}

// ---- scenarios

// S1: a monochrome JPEG passes through the neutral chain nearly
// unchanged: 128 promoted to 16 bits, within tone curve wiggle.
func TestMonochromeJPEGPassthrough(t *testing.T) {
	path := writeGrayJPEG(t, 4, 4, 128)

	pm := NewParamManager()
	neutralParams(pm, path, true)

	pipe := New(Cache, NoHisto, HighQuality)
	sink := &recordingSink{}
	out := pipe.ProcessImage(pm, sink)

	if out.Empty() {
		t.Fatal("pipeline returned the empty matrix")
	}
	if out.NR() != 4 || out.NC() != 12 {
		t.Fatalf("output dims %dx%d, want 4x12", out.NR(), out.NC())
	}
	for row := 0; row < 4; row++ {
		for col := 0; col < 12; col++ {
			v := int(out.At(row, col))
			if v < 32896-300 || v > 32896+300 {
				t.Fatalf("sample (%d,%d) = %d, want about 32896", row, col, v)
			}
		}
	}
}

// S2: a uniform synthetic Bayer frame demosaics and scales so the
// input image peaks at 65535.
func TestBayerScaling(t *testing.T) {
	pm := NewParamManager()
	neutralParams(pm, "synthetic", false)

	pipe := New(Cache, NoHisto, PreviewQuality)
	pipe.SetInputProviders(func(abort func() bool) input.Decoder {
		return fakeDecoder{d: syntheticBayer(8, 8, 1023)}
	}, nil, nil)

	sink := &recordingSink{}
	out := pipe.ProcessImage(pm, sink)
	if out.Empty() {
		t.Fatal("pipeline returned the empty matrix")
	}

	max := float64(pipe.inputImage.Max())
	if max < 65534 || max > 65536 {
		t.Errorf("input image max = %f, want about 65535", max)
	}
	if pipe.inputImage.Min() < 0 {
		t.Errorf("input image min = %f, want >= 0", pipe.inputImage.Min())
	}
}

// S3: a restart at the prefilm claim aborts the pipeline without
// marking anything further or emitting the prefilm histogram.
func TestRestartAtPrefilm(t *testing.T) {
	path := writeGrayJPEG(t, 4, 4, 128)

	pm := NewParamManager()
	neutralParams(pm, path, true)
	src := &scriptedSource{ParamManager: pm, restartPrefilm: true}

	pipe := New(Cache, WithHisto, HighQuality)
	sink := &recordingSink{}
	out := pipe.ProcessImage(src, sink)

	if !out.Empty() {
		t.Fatal("a restarted pipeline must return the empty matrix")
	}
	if got := pm.GetValid(); got != ValidDemosaic {
		t.Errorf("validity = %v, want unchanged at demosaic", got)
	}
	for _, m := range src.marks {
		if m > ValidDemosaic {
			t.Errorf("a mark advanced past the restart point: %v", m)
		}
	}
	if sink.preFilm != 0 || sink.postFilm != 0 || sink.final != 0 {
		t.Errorf("histogram events fired after the restart point: %+v", sink)
	}
}

// S4: cropHeight 0 disables the crop; output dims match the rotated
// input.
func TestCropDisabled(t *testing.T) {
	path := writeGrayJPEG(t, 6, 4, 90)

	pm := NewParamManager()
	neutralParams(pm, path, true)

	pipe := New(Cache, NoHisto, HighQuality)
	out := pipe.ProcessImage(pm, &recordingSink{})

	if out.NR() != 4 || out.NC() != 18 {
		t.Fatalf("output dims %dx%d, want 4x18", out.NR(), out.NC())
	}
}

func TestCropGeometry(t *testing.T) {
	tests := []struct {
		name       string
		imW, imH   int
		bw         BlackWhiteParams
		wantW      int
		wantH      int
	}{
		{"half height square", 100, 80, BlackWhiteParams{CropHeight: 0.5, CropAspect: 1}, 40, 40},
		{"degenerate aspect falls back to full frame", 100, 80, BlackWhiteParams{CropHeight: 1, CropAspect: 10000}, 100, 80},
		{"disabled", 100, 80, BlackWhiteParams{CropHeight: 0, CropAspect: 1}, 100, 80},
		{"wide aspect clamped to frame", 100, 80, BlackWhiteParams{CropHeight: 1, CropAspect: 2}, 100, 50},
		{"offset clamped", 100, 80, BlackWhiteParams{CropHeight: 0.5, CropAspect: 1, CropHoffset: 99, CropVoffset: -99}, 40, 40},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			startX, startY, endX, endY, w, h := cropGeometry(tc.imW, tc.imH, tc.bw)
			if w != tc.wantW {
				t.Errorf("width = %d, want %d", w, tc.wantW)
			}
			if h != tc.wantH {
				t.Errorf("height = %d, want %d", h, tc.wantH)
			}
			// The crop rectangle always lies within the image.
			if startX < 0 || startY < 0 || endX >= tc.imW || endY >= tc.imH {
				t.Errorf("crop (%d,%d)-(%d,%d) escapes the %dx%d image",
					startX, startY, endX, endY, tc.imW, tc.imH)
			}
			if endX-startX+1 != w || endY-startY+1 != h {
				t.Errorf("crop extent disagrees with the clamped dims")
			}
		})
	}
}

// S6: under NoCache every intermediate is released by the time the
// pipeline returns; only the output survives.
func TestNoCacheReleasesIntermediates(t *testing.T) {
	path := writeGrayJPEG(t, 4, 4, 128)

	pm := NewParamManager()
	neutralParams(pm, path, true)

	pipe := New(NoCache, NoHisto, HighQuality)
	out := pipe.ProcessImage(pm, &recordingSink{})

	if out.Empty() {
		t.Fatal("pipeline returned the empty matrix")
	}
	intermediates := []*fmat.Mat[float32]{
		&pipe.rawImage, &pipe.inputImage, &pipe.recoveredImage,
		&pipe.preFilmImage, &pipe.filmulatedImage, &pipe.contrastImage,
	}
	for i, m := range intermediates {
		if !m.Empty() {
			t.Errorf("intermediate %d still holds %s after a NoCache run", i, m)
		}
	}
	if !pipe.colorCurveImage.Empty() {
		t.Errorf("color curve artifact survived a NoCache run")
	}
	if !pipe.cacheEmpty {
		t.Errorf("cacheEmpty should be set after a NoCache run")
	}
}

// Under Cache, artifacts survive for resume.
func TestCacheKeepsArtifacts(t *testing.T) {
	path := writeGrayJPEG(t, 4, 4, 128)

	pm := NewParamManager()
	neutralParams(pm, path, true)

	pipe := New(Cache, NoHisto, HighQuality)
	if out := pipe.ProcessImage(pm, &recordingSink{}); out.Empty() {
		t.Fatal("pipeline returned the empty matrix")
	}

	kept := []*fmat.Mat[float32]{
		&pipe.recoveredImage, &pipe.preFilmImage, &pipe.filmulatedImage, &pipe.contrastImage,
	}
	for i, m := range kept {
		if m.Empty() {
			t.Errorf("artifact %d was released despite the Cache policy", i)
		}
	}
}

// ---- invariants

// Validity climbs monotonically and ends at filmlikecurve; progress
// never goes backwards.
func TestValidityAndProgressMonotone(t *testing.T) {
	path := writeGrayJPEG(t, 4, 4, 128)

	pm := NewParamManager()
	neutralParams(pm, path, true)
	src := &scriptedSource{ParamManager: pm}

	pipe := New(Cache, WithHisto, HighQuality)
	sink := &recordingSink{}
	out := pipe.ProcessImage(src, sink)

	if out.Empty() {
		t.Fatal("pipeline returned the empty matrix")
	}
	for i := 1; i < len(src.marks); i++ {
		if src.marks[i] < src.marks[i-1] {
			t.Errorf("validity went backwards: %v -> %v", src.marks[i-1], src.marks[i])
		}
	}
	if got := src.marks[len(src.marks)-1]; got != ValidFilmLikeCurve {
		t.Errorf("final validity = %v, want filmlikecurve", got)
	}
	sink.assertProgressMonotone(t)

	if sink.raw != 0 {
		t.Errorf("jpeg input should not emit a raw histogram")
	}
	if sink.preFilm != 1 || sink.postFilm != 1 || sink.final != 1 {
		t.Errorf("histogram events: %+v, want one each", sink)
	}
}

// Resume equivalence: mutating only a late stage and resuming gives
// the same output as a fresh full run with the final parameters.
func TestResumeEquivalence(t *testing.T) {
	path := writeGrayJPEG(t, 6, 4, 100)

	finalCurves := FilmlikeCurvesParams{
		ShadowsX: 0, ShadowsY: 0, HighlightsX: 1, HighlightsY: 1,
		Vibrance: 0.0, Saturation: 0.3,
	}

	// Run once, then edit the film-like curve stage and resume.
	pm := NewParamManager()
	neutralParams(pm, path, true)
	resumed := New(Cache, NoHisto, HighQuality)
	if out := resumed.ProcessImage(pm, &recordingSink{}); out.Empty() {
		t.Fatal("first run failed")
	}
	pm.SetFilmlikeCurvesParams(finalCurves)
	if got := pm.GetValid(); got != ValidColorCurve {
		t.Fatalf("editing the curve stage should drop validity to colorcurve, got %v", got)
	}
	outResumed := resumed.ProcessImage(pm, &recordingSink{})

	// Fresh manager and pipeline, same final parameters, full run.
	pm2 := NewParamManager()
	neutralParams(pm2, path, true)
	pm2.SetFilmlikeCurvesParams(finalCurves)
	fresh := New(Cache, NoHisto, HighQuality)
	outFresh := fresh.ProcessImage(pm2, &recordingSink{})

	if outResumed.Empty() || outFresh.Empty() {
		t.Fatal("a run failed")
	}
	if outResumed.NR() != outFresh.NR() || outResumed.NC() != outFresh.NC() {
		t.Fatalf("dims differ: %s vs %s", &outResumed, &outFresh)
	}
	for row := 0; row < outFresh.NR(); row++ {
		for col := 0; col < outFresh.NC(); col++ {
			if outResumed.At(row, col) != outFresh.At(row, col) {
				t.Fatalf("resume diverged at (%d,%d): %d vs %d",
					row, col, outResumed.At(row, col), outFresh.At(row, col))
			}
		}
	}
}

// The steal optimization: a high-quality export borrows the
// sibling's demosaic output without consuming it.
func TestStealFromSibling(t *testing.T) {
	path := writeGrayJPEG(t, 4, 4, 128)

	pmPreview := NewParamManager()
	neutralParams(pmPreview, path, true)
	preview := New(Cache, NoHisto, PreviewQuality)
	outPreview := preview.ProcessImage(pmPreview, &recordingSink{})
	if outPreview.Empty() {
		t.Fatal("preview run failed")
	}

	pmExport := NewParamManager()
	neutralParams(pmExport, path, true)
	export := New(Cache, NoHisto, HighQuality)
	export.SetStealVictim(preview)
	outExport := export.ProcessImage(pmExport, &recordingSink{})
	if outExport.Empty() {
		t.Fatal("export run failed")
	}

	if preview.inputImage.Empty() {
		t.Errorf("the steal consumed the sibling's input image")
	}
	if outExport.NR() != outPreview.NR() || outExport.NC() != outPreview.NC() {
		t.Errorf("export dims %s differ from preview %s", &outExport, &outPreview)
	}
	for row := 0; row < outExport.NR(); row++ {
		for col := 0; col < outExport.NC(); col++ {
			if outExport.At(row, col) != outPreview.At(row, col) {
				t.Fatalf("steal diverged at (%d,%d)", row, col)
			}
		}
	}
}

// A second call on a fully valid Cache pipeline is a fast replay: no
// stage work, same output.
func TestFullyCachedRerun(t *testing.T) {
	path := writeGrayJPEG(t, 4, 4, 128)

	pm := NewParamManager()
	neutralParams(pm, path, true)
	src := &scriptedSource{ParamManager: pm}

	pipe := New(Cache, NoHisto, HighQuality)
	out1 := pipe.ProcessImage(src, &recordingSink{})
	marksAfterFirst := len(src.marks)

	out2 := pipe.ProcessImage(src, &recordingSink{})

	if out2.Empty() {
		t.Fatal("rerun failed")
	}
	// Only the final mark fires again; no stage re-ran.
	if len(src.marks) != marksAfterFirst+1 {
		t.Errorf("rerun performed stage work: %d new marks", len(src.marks)-marksAfterFirst)
	}
	if out1.At(0, 0) != out2.At(0, 0) {
		t.Errorf("rerun changed the output")
	}
}

// S5 at the pipeline level is covered by highlight.Clip's tests; here
// we check the executor keeps the clip mode wired.
func TestHighlightClipWiredThrough(t *testing.T) {
	pm := NewParamManager()
	neutralParams(pm, "synthetic", false)

	pipe := New(Cache, NoHisto, PreviewQuality)
	pipe.SetInputProviders(func(abort func() bool) input.Decoder {
		// MaxValue understates the data so demosaic overshoots
		// 65535, exercising the clamp.
		d := syntheticBayer(8, 8, 2046)
		d.Side.MaxValue = 1023
		return fakeDecoder{d: d}
	}, nil, nil)

	out := pipe.ProcessImage(pm, &recordingSink{})
	if out.Empty() {
		t.Fatal("pipeline returned the empty matrix")
	}
	if got := pipe.recoveredImage.Max(); got > 65535 {
		t.Errorf("recovered image exceeds the clip: %f", got)
	}
}
