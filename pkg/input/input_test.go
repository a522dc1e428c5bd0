package input

import(
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
)

func writeGrayJPEG(t *testing.T, path string, w, h int, val uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: val})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
}

func writeGray16TIFF(t *testing.T, path string, w, h int, val uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: val})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func TestJPEGDecoderScalesTo16Bit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gray.jpg")
	writeGrayJPEG(t, path, 4, 4, 128)

	d, err := JPEGDecoder{}.Decode(path)
	if err != nil {
		t.Fatal(err)
	}

	if d.Image.NR() != 4 || d.Image.NC() != 12 {
		t.Fatalf("dims %dx%d, want 4x12", d.Image.NR(), d.Image.NC())
	}
	// A uniform gray JPEG round-trips its DC value exactly: 128
	// promoted to 16 bits is 128*257.
	for row := 0; row < 4; row++ {
		for col := 0; col < 12; col++ {
			if v := float64(d.Image.At(row, col)); math.Abs(v-32896) > 257 {
				t.Fatalf("sample (%d,%d) = %f, want about 32896", row, col, v)
			}
		}
	}
	if !d.Side.IsSraw {
		t.Errorf("an RGB source should skip demosaic")
	}
	if d.Side.MaxValue != 65535 {
		t.Errorf("MaxValue = %f", d.Side.MaxValue)
	}
}

func TestTIFFDecoder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flat.tif")
	writeGray16TIFF(t, path, 3, 2, 40000)

	d, err := TIFFDecoder{}.Decode(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.Image.NR() != 2 || d.Image.NC() != 9 {
		t.Fatalf("dims %dx%d, want 2x9", d.Image.NR(), d.Image.NC())
	}
	if d.Image.At(1, 4) != 40000 {
		t.Errorf("16-bit TIFF sample = %f, want 40000", d.Image.At(1, 4))
	}
}

func TestDecodeMissingFile(t *testing.T) {
	if _, err := (JPEGDecoder{}).Decode("/no/such/file.jpg"); err == nil {
		t.Errorf("expected an error for a missing jpeg")
	}
	if _, err := (RawDecoder{}).Decode("/no/such/file.tif"); err == nil {
		t.Errorf("expected an error for a missing raw")
	}
}

func writeRawFixture(t *testing.T, dir string, sidecar string, w, h int, val uint16) string {
	t.Helper()
	path := filepath.Join(dir, "mosaic.tif")
	writeGray16TIFF(t, path, w, h, val)
	if err := os.WriteFile(path+".yaml", []byte(sidecar), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRawDecoderBlackSubtraction(t *testing.T) {
	dir := t.TempDir()
	sidecar := `
black: 100
blacktile:
  - [10, 20]
  - [30, 40]
maximum: 1023
cammul: [2.0, 1.0, 1.5]
premul: [2.1, 1.0, 1.4]
cfa:
  - [0, 1]
  - [3, 2]
whitebalance: "0"
`
	path := writeRawFixture(t, dir, sidecar, 4, 4, 500)

	d, err := RawDecoder{}.Decode(path)
	if err != nil {
		t.Fatal(err)
	}

	// maxValue = maximum - black - worst tile offset.
	if d.Side.MaxValue != 1023-100-40 {
		t.Errorf("MaxValue = %f, want 883", d.Side.MaxValue)
	}
	// Tile offsets are indexed (row mod 2, col mod 2).
	tests := []struct {
		row, col int
		want     float32
	}{
		{0, 0, 500 - 100 - 10},
		{0, 1, 500 - 100 - 20},
		{1, 0, 500 - 100 - 30},
		{3, 3, 500 - 100 - 40},
	}
	for _, tc := range tests {
		if got := d.Image.At(tc.row, tc.col); got != tc.want {
			t.Errorf("sensel (%d,%d) = %f, want %f", tc.row, tc.col, got, tc.want)
		}
	}

	// CFA value 3 (second green) remaps to 1.
	if d.Side.CFA != [2][2]uint32{{0, 1}, {1, 2}} {
		t.Errorf("CFA = %v", d.Side.CFA)
	}
	// Multipliers normalized so the minimum is 1.
	if d.Side.CamMul[1] != 1 || d.Side.CamMul[0] != 2 {
		t.Errorf("CamMul = %v", d.Side.CamMul)
	}
	if d.Side.IsMonochrome {
		t.Errorf("white balance tag present, should not be monochrome")
	}
}

func TestRawDecoderFullColorDetection(t *testing.T) {
	fullcolorCFA := `
cfa:
  - [6, 6]
  - [6, 6]
maximum: 65535
`
	tests := []struct {
		name         string
		sidecarExtra string
		wantSraw     bool
		wantMono     bool
	}{
		// CFA all 6 plus a populated white balance tag: an Iridient
		// fullcolor file.
		{"fullcolor", "whitebalance: \"0\"\n", true, false},
		// CFA all 6 with no white balance tag: a monochrome back.
		{"monochrome", "", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeRawFixture(t, dir, fullcolorCFA+tc.sidecarExtra, 4, 4, 1000)
			d, err := RawDecoder{}.Decode(path)
			if err != nil {
				t.Fatal(err)
			}
			if d.Side.IsSraw != tc.wantSraw {
				t.Errorf("IsSraw = %v, want %v", d.Side.IsSraw, tc.wantSraw)
			}
			if d.Side.IsMonochrome != tc.wantMono {
				t.Errorf("IsMonochrome = %v, want %v", d.Side.IsMonochrome, tc.wantMono)
			}
			if tc.wantSraw && d.Image.NC() != 12 {
				t.Errorf("sraw should decode interleaved, nc = %d", d.Image.NC())
			}
		})
	}
}

func TestRawDecoderMargins(t *testing.T) {
	dir := t.TempDir()
	sidecar := `
maximum: 65535
topmargin: 2
leftmargin: 2
whitebalance: "0"
`
	path := writeRawFixture(t, dir, sidecar, 6, 6, 1234)

	d, err := RawDecoder{}.Decode(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.Side.RawWidth != 4 || d.Side.RawHeight != 4 {
		t.Errorf("active area %dx%d, want 4x4", d.Side.RawWidth, d.Side.RawHeight)
	}
	if d.Image.NR() != 4 || d.Image.NC() != 4 {
		t.Errorf("mosaic dims %dx%d, want 4x4", d.Image.NR(), d.Image.NC())
	}
}

func TestRawDecoderAbort(t *testing.T) {
	dir := t.TempDir()
	sidecar := "maximum: 65535\nwhitebalance: \"0\"\n"
	path := writeRawFixture(t, dir, sidecar, 8, 8, 1000)

	calls := 0
	dec := RawDecoder{Abort: func() bool {
		calls++
		return calls > 2
	}}
	if _, err := dec.Decode(path); err == nil {
		t.Fatal("expected the abort callback to cancel the decode")
	}
}
