package input

import(
	"image"
	"os"

	"golang.org/x/image/tiff"

	"github.com/abworrall/filmdev/pkg/fcolor"
	"github.com/abworrall/filmdev/pkg/fmat"
)

// TIFFDecoder reads an already-developed RGB TIFF into the pipeline.
type TIFFDecoder struct{}

func (d TIFFDecoder)Decode(path string) (Decoded, error) {
	var out Decoded

	reader, err := os.Open(path)
	if err != nil {
		return out, openErr("open+r tiff", path, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return out, openErr("tiff decode", path, err)
	}

	out.Meta = readExif(path)
	out.Image = interleave(img)
	out.Side = fcolor.NewSidecar(img.Bounds().Dx(), img.Bounds().Dy())
	return out, nil
}

// interleave converts any image.Image to the pipeline's interleaved
// float layout, scaled to 0..65535. Go's color model already
// promotes 8-bit sources to 16 bits.
func interleave(img image.Image) (m fmat.Mat[float32]) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	m.SetSize(h, w*3)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			r, g, b, _ := img.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
			m.Set(row, col*3, float32(r))
			m.Set(row, col*3+1, float32(g))
			m.Set(row, col*3+2, float32(b))
		}
	}
	return m
}
