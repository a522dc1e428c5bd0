// Package input holds the pipeline's image providers: raw mosaics,
// TIFF and JPEG. Each provider decodes a file into the float matrix
// the demosaic stage expects, plus the camera sidecar and whatever
// metadata the file carries.
package input

import(
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/abworrall/filmdev/pkg/fcolor"
	"github.com/abworrall/filmdev/pkg/fmat"
)

// Decoded is what a provider hands the pipeline: pixels, the camera
// color sidecar, and embeddable metadata.
type Decoded struct {
	Image fmat.Mat[float32]
	Side  fcolor.Sidecar
	Meta  Metadata
}

type Decoder interface {
	Decode(path string) (Decoded, error)
}

// Metadata is the slice of the source file's metadata the pipeline
// cares about, plus the full EXIF block for embedding in the
// developed output.
type Metadata struct {
	Make         string
	Model        string
	ISO          int64
	WhiteBalance string // raw tag text; empty on monochrome backs

	Exif *exif.Exif
}

// readExif loads EXIF from a file, tolerating files that carry none.
// Follows the open-for-exif-then-reopen-for-pixels pattern since both
// readers consume the stream.
func readExif(path string) Metadata {
	var md Metadata

	reader, err := os.Open(path)
	if err != nil {
		return md
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil {
		return md
	}
	md.Exif = ex

	if tag, err := ex.Get(exif.Make); err == nil {
		md.Make, _ = tag.StringVal()
	}
	if tag, err := ex.Get(exif.Model); err == nil {
		md.Model, _ = tag.StringVal()
	}
	if tag, err := ex.Get(exif.ISOSpeedRatings); err == nil {
		md.ISO, _ = tag.Int64(0)
	}
	if tag, err := ex.Get(exif.WhiteBalance); err == nil {
		md.WhiteBalance = tag.String()
	}
	return md
}

func openErr(what, path string, err error) error {
	return fmt.Errorf("%s '%s': %v", what, path, err)
}
