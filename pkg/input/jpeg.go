package input

import(
	"image/jpeg"
	"os"

	"github.com/abworrall/filmdev/pkg/fcolor"
)

// JPEGDecoder reads an already-developed JPEG into the pipeline.
type JPEGDecoder struct{}

func (d JPEGDecoder)Decode(path string) (Decoded, error) {
	var out Decoded

	reader, err := os.Open(path)
	if err != nil {
		return out, openErr("open+r jpeg", path, err)
	}
	defer reader.Close()

	img, err := jpeg.Decode(reader)
	if err != nil {
		return out, openErr("jpeg decode", path, err)
	}

	out.Meta = readExif(path)
	out.Image = interleave(img)
	out.Side = fcolor.NewSidecar(img.Bounds().Dx(), img.Bounds().Dy())
	return out, nil
}
