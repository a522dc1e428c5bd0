package input

import(
	"fmt"
	"image"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/filmdev/pkg/fcolor"
	"github.com/abworrall/filmdev/pkg/fmat"
)

// ErrCanceled is returned when the abort callback asked the decode to
// stop. The pipeline treats it like any other decode failure: empty
// matrix out.
var ErrCanceled = fmt.Errorf("raw decode canceled")

// A RawDecoder reads a sensor mosaic: a 16-bit TIFF holding the
// photosite values (greyscale for CFA mosaics, RGB for sraw), plus a
// YAML sidecar carrying the camera color data a raw container format
// would embed. Abort, when set, is polled between rows; it is how the
// parameter manager cancels a decode in flight.
type RawDecoder struct {
	Abort func() bool
}

// rawSidecar is the YAML shape of the <file>.yaml sidecar.
type rawSidecar struct {
	Black      float64     `yaml:"black"`
	BlackTile  [][]float64 `yaml:"blacktile"` // per-position offsets, blackRow x blackCol
	Maximum    float64     `yaml:"maximum"`
	CamMul     []float64   `yaml:"cammul"`
	PreMul     []float64   `yaml:"premul"`
	CamToRGB   []float64   `yaml:"camtorgb"` // 9 values, row major
	CFA        [][]uint32  `yaml:"cfa"`      // 2x2
	XTrans     [][]uint32  `yaml:"xtrans"`   // 6x6
	TopMargin  int         `yaml:"topmargin"`
	LeftMargin int         `yaml:"leftmargin"`
	Sraw       bool        `yaml:"sraw"`
	NikonSraw  bool        `yaml:"nikonsraw"`
	Floating   bool        `yaml:"floatingpoint"`

	// Stand-in for Exif.Photo.WhiteBalance when the mosaic TIFF
	// carries no EXIF of its own.
	WhiteBalance string `yaml:"whitebalance"`
}

func loadRawSidecar(path string) (rawSidecar, error) {
	sc := rawSidecar{Maximum: 65535}
	contents, err := os.ReadFile(path)
	if err != nil {
		return sc, openErr("sidecar read", path, err)
	}
	if err := yaml.Unmarshal(contents, &sc); err != nil {
		return sc, openErr("sidecar parse", path, err)
	}
	return sc, nil
}

func (d RawDecoder)Decode(path string) (Decoded, error) {
	var out Decoded

	sc, err := loadRawSidecar(path + ".yaml")
	if err != nil {
		return out, err
	}

	if sc.Floating {
		// Floating point raws aren't processed; warn and fall through
		// the integer branch, which will not produce meaningful output.
		log.Printf("RawDecoder: cannot process a floating point raw: %s", path)
	}

	reader, err := os.Open(path)
	if err != nil {
		return out, openErr("open+r raw", path, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return out, openErr("raw mosaic decode", path, err)
	}

	out.Meta = readExif(path)
	if out.Meta.WhiteBalance == "" {
		out.Meta.WhiteBalance = sc.WhiteBalance
	}

	side, err := d.buildSidecar(sc, img, out.Meta)
	if err != nil {
		return out, err
	}

	raw, err := d.copyMosaic(sc, side, img)
	if err != nil {
		return out, err
	}

	out.Side = side
	out.Image = raw
	return out, nil
}

func (d RawDecoder)buildSidecar(sc rawSidecar, img image.Image, md Metadata) (fcolor.Sidecar, error) {
	bounds := img.Bounds()
	side := fcolor.Sidecar{
		CamToRGB:  fcolor.Identity3(),
		CamToRGB4: fcolor.IdentityCamToRGB4(),
		CamMul:    fcolor.Vec3{1, 1, 1},
		PreMul:    fcolor.Vec3{1, 1, 1},
		RawWidth:  bounds.Dx() - sc.LeftMargin,
		RawHeight: bounds.Dy() - sc.TopMargin,
	}
	if side.RawWidth <= 0 || side.RawHeight <= 0 {
		return side, fmt.Errorf("raw margins %d/%d swallow the %dx%d frame",
			sc.TopMargin, sc.LeftMargin, bounds.Dx(), bounds.Dy())
	}

	if len(sc.CamToRGB) == 9 {
		copy(side.CamToRGB[:], sc.CamToRGB)
	}
	if len(sc.CamMul) == 3 {
		side.CamMul = fcolor.NormalizeMuls(fcolor.Vec3{sc.CamMul[0], sc.CamMul[1], sc.CamMul[2]})
	}
	if len(sc.PreMul) == 3 {
		side.PreMul = fcolor.NormalizeMuls(fcolor.Vec3{sc.PreMul[0], sc.PreMul[1], sc.PreMul[2]})
	}

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if len(sc.CFA) == 2 && len(sc.CFA[i]) == 2 {
				side.CFA[i][j] = sc.CFA[i][j]
			} else {
				side.CFA[i][j] = [2][2]uint32{{0, 1}, {1, 2}}[i][j] // default RGGB
			}
			if side.CFA[i][j] == 3 {
				// Auto CA correct doesn't like 0123 for RGBG; we
				// change it to 0121.
				side.CFA[i][j] = 1
			}
		}
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if len(sc.XTrans) == 6 && len(sc.XTrans[i]) == 6 {
				side.XTrans[i][j] = sc.XTrans[i][j]
				if int(side.XTrans[i][j]) > side.MaxXTrans {
					side.MaxXTrans = int(side.XTrans[i][j])
				}
			}
		}
	}

	// Iridient X-Transformer creates full-color files that aren't
	// sraw: cfa all 6 and xtrans all 0. Leica monochrome files look
	// exactly the same, so the white balance tag disambiguates.
	isWeird := side.IsFullColor()
	side.IsMonochrome = md.WhiteBalance == ""
	side.IsSraw = sc.Sraw || (isWeird && !side.IsMonochrome)
	side.IsNikonSraw = sc.NikonSraw

	// Black-subtract the white saturation too, including the worst
	// tile offset.
	maxTileBlack := 0.0
	for _, row := range sc.BlackTile {
		for _, v := range row {
			if v > maxTileBlack {
				maxTileBlack = v
			}
		}
	}
	side.MaxValue = sc.Maximum - sc.Black - maxTileBlack
	return side, nil
}

// copyMosaic moves the sensel values into the raw matrix, black
// subtracting as it goes. The tile offset is indexed (row mod
// blackRow, col mod blackCol), as the camera lays it out.
func (d RawDecoder)copyMosaic(sc rawSidecar, side fcolor.Sidecar, img image.Image) (fmat.Mat[float32], error) {
	var raw fmat.Mat[float32]

	blackRow := len(sc.BlackTile)
	blackCol := 0
	if blackRow > 0 {
		blackCol = len(sc.BlackTile[0])
	}
	blackAt := func(row, col int) float64 {
		b := sc.Black
		if blackRow > 0 && blackCol > 0 {
			b += sc.BlackTile[row%blackRow][col%blackCol]
		}
		return b
	}

	bounds := img.Bounds()
	height, width := side.RawHeight, side.RawWidth

	rawMin := float32(1e30)
	rawMax := float32(-1e30)

	if side.IsSraw {
		raw.SetSize(height, width*3)
		for row := 0; row < height; row++ {
			if d.Abort != nil && d.Abort() {
				return raw, ErrCanceled
			}
			for col := 0; col < width; col++ {
				r, g, b, _ := img.At(bounds.Min.X+col+sc.LeftMargin, bounds.Min.Y+row+sc.TopMargin).RGBA()
				black := float32(blackAt(row, col))
				for c, v := range [3]uint32{r, g, b} {
					val := float32(v) - black
					raw.Set(row, col*3+c, val)
					if val < rawMin { rawMin = val }
					if val > rawMax { rawMax = val }
				}
			}
		}
	} else {
		raw.SetSize(height, width)
		for row := 0; row < height; row++ {
			if d.Abort != nil && d.Abort() {
				return raw, ErrCanceled
			}
			for col := 0; col < width; col++ {
				v, _, _, _ := img.At(bounds.Min.X+col+sc.LeftMargin, bounds.Min.Y+row+sc.TopMargin).RGBA()
				val := float32(v) - float32(blackAt(row, col))
				raw.Set(row, col, val)
				if val < rawMin { rawMin = val }
				if val > rawMax { rawMax = val }
			}
		}
	}

	log.Printf("RawDecoder: %dx%d, raw range [%f, %f]", width, height, rawMin, rawMax)
	return raw, nil
}
