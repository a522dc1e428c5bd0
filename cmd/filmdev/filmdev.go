package main

import(
	"flag"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/filmdev/pkg/film"
	"github.com/abworrall/filmdev/pkg/fmat"
	"github.com/abworrall/filmdev/pkg/lens"
	"github.com/abworrall/filmdev/pkg/pipeline"
)

var(
	fConfig     string
	fQuality    string
	fResolution int
	fNoCache    bool
	fHisto      bool
	fOutput     string
	fHDROutput  string
	fThumbWidth int
	fDumpPrefix string
	fExport     bool
	fLensDB     string
)

func init() {
	flag.StringVar(&fConfig, "config", "", "YAML file of development parameters")
	flag.StringVar(&fQuality, "quality", "high", "low | preview | high")
	flag.IntVar(&fResolution, "resolution", 1000, "preview quality size clamp")
	flag.BoolVar(&fNoCache, "nocache", false, "release intermediate buffers as soon as possible")
	flag.BoolVar(&fHisto, "histo", true, "accumulate intermediate histograms")
	flag.StringVar(&fOutput, "o", "out.png", "output filename")
	flag.StringVar(&fHDROutput, "hdr", "", "also export the filmulated linear image as Radiance HDR")
	flag.IntVar(&fThumbWidth, "thumb", 0, "also write a thumbnail this many pixels wide")
	flag.StringVar(&fDumpPrefix, "dump", "", "dump intermediate artifacts as PNGs with this prefix")
	flag.BoolVar(&fExport, "export", false, "develop a preview first, then steal it for a full-quality export")
	flag.StringVar(&fLensDB, "lensdb", "", "YAML lens correction database")
	flag.Parse()

	log.Printf("filmdev starting\n")
}

// devConfig is the YAML shape of -config. Any section left out keeps
// the defaults.
type devConfig struct {
	Demosaic      pipeline.DemosaicParams       `yaml:"demosaic"`
	Prefilm       pipeline.PrefilmParams        `yaml:"prefilm"`
	Film          film.Params                   `yaml:"film"`
	BlackWhite    pipeline.BlackWhiteParams     `yaml:"blackwhite"`
	FilmlikeCurve pipeline.FilmlikeCurvesParams `yaml:"filmlikecurve"`
}

func main() {
	if flag.NArg() != 1 {
		log.Fatalf("usage: filmdev [flags] <image file>")
	}
	filename := flag.Arg(0)

	pm := pipeline.NewParamManager()
	configureParams(pm, filename)

	var db *lens.Database
	if fLensDB != "" {
		var err error
		if db, err = lens.LoadDatabase(fLensDB); err != nil {
			log.Fatalf("%v", err)
		}
	}

	histo := pipeline.NoHisto
	if fHisto {
		histo = pipeline.WithHisto
	}
	cache := pipeline.Cache
	if fNoCache {
		cache = pipeline.NoCache
	}

	sink := pipeline.NewHistoSink()

	var final fmat.Mat[uint16]
	var pipe *pipeline.Pipeline

	if fExport {
		// Develop a preview, then let the full-quality pipeline
		// steal its demosaic output rather than decoding again.
		preview := pipeline.New(pipeline.Cache, pipeline.NoHisto, pipeline.PreviewQuality)
		preview.SetResolution(fResolution)
		preview.SetLensDatabase(db)
		if m := preview.ProcessImage(pm, sink); m.Empty() {
			log.Fatalf("preview development failed")
		}

		pipe = pipeline.New(cache, histo, pipeline.HighQuality)
		pipe.SetLensDatabase(db)
		pipe.SetStealVictim(preview)
		pm.SetLoadParams(pm.LoadParams()) // invalidate, so the export runs from the top
		final = pipe.ProcessImage(pm, sink)
	} else {
		pipe = pipeline.New(cache, histo, parseQuality(fQuality))
		pipe.SetResolution(fResolution)
		pipe.SetLensDatabase(db)
		final = pipe.ProcessImage(pm, sink)
	}

	if final.Empty() {
		log.Fatalf("development failed (empty output)")
	}
	log.Printf("development complete, progress=%.2f", sink.Progress)

	img := toImage(&final)
	if err := writePNG(img, fOutput); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("wrote %s (%dx%d)", fOutput, img.Bounds().Dx(), img.Bounds().Dy())

	if fThumbWidth > 0 {
		thumb := resize.Resize(uint(fThumbWidth), 0, img, resize.Lanczos3)
		name := thumbName(fOutput)
		if err := writePNG(thumb, name); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("wrote %s", name)
	}

	if fHDROutput != "" {
		if err := pipe.WriteFilmulatedHDR(fHDROutput); err != nil {
			log.Printf("%v", err)
		} else {
			log.Printf("wrote %s", fHDROutput)
		}
	}

	if fDumpPrefix != "" {
		pipe.DumpArtifacts(fDumpPrefix)
	}

	if fHisto {
		for c, name := range []string{"R", "G", "B"} {
			log.Printf("final %s: p50=%d p99=%d", name,
				sink.Final[c].ValueAtQuantile(50), sink.Final[c].ValueAtQuantile(99))
		}
	}
}

func configureParams(pm *pipeline.ParamManager, filename string) {
	cfg := devConfig{
		Demosaic:      pm.DemosaicParams(),
		Prefilm:       pm.PrefilmParams(),
		Film:          pm.FilmParams(),
		BlackWhite:    pm.BlackWhiteParams(),
		FilmlikeCurve: pm.FilmlikeCurvesParams(),
	}

	if fConfig != "" {
		contents, err := os.ReadFile(fConfig)
		if err != nil {
			log.Fatalf("config read '%s': %v", fConfig, err)
		}
		if err := yaml.Unmarshal(contents, &cfg); err != nil {
			log.Fatalf("config parse '%s': %v", fConfig, err)
		}
	}

	load := pipeline.LoadParams{FullFilename: filename}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		load.TiffIn = true
	case ".jpg", ".jpeg":
		load.JpegIn = true
	}

	pm.SetLoadParams(load)
	pm.SetDemosaicParams(cfg.Demosaic)
	pm.SetPrefilmParams(cfg.Prefilm)
	pm.SetFilmParams(cfg.Film)
	pm.SetBlackWhiteParams(cfg.BlackWhite)
	pm.SetFilmlikeCurvesParams(cfg.FilmlikeCurve)
}

func parseQuality(s string) pipeline.Quality {
	switch strings.ToLower(s) {
	case "low":
		return pipeline.LowQuality
	case "preview":
		return pipeline.PreviewQuality
	case "high":
		return pipeline.HighQuality
	}
	log.Fatalf("no quality level named '%s'", s)
	return pipeline.HighQuality
}

func toImage(m *fmat.Mat[uint16]) image.Image {
	w := m.NC() / 3
	h := m.NR()
	img := image.NewRGBA64(image.Rectangle{Max: image.Point{w, h}})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA64(x, y, color.RGBA64{
				R: m.At(y, x*3),
				G: m.At(y, x*3+1),
				B: m.At(y, x*3+2),
				A: 0xFFFF,
			})
		}
	}
	return img
}

func writePNG(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer writer.Close()
	return png.Encode(writer, img)
}

func thumbName(out string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "-thumb" + ext
}
