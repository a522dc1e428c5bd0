package pipeline

import(
	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/filmdev/pkg/fcolor"
	"github.com/abworrall/filmdev/pkg/fmat"
)

// A Sink receives progress fractions and intermediate histograms.
// It is external to the pipeline and must tolerate being called from
// the pipeline's goroutine. Histogram events only fire when the
// pipeline was built WithHisto; progress always fires.
type Sink interface {
	SetProgress(fraction float64)

	UpdateHistRaw(m *fmat.Mat[float32], maxValue float64, side fcolor.Sidecar)
	UpdateHistPreFilm(m *fmat.Mat[float32], max float64)
	UpdateHistPostFilm(m *fmat.Mat[float32], scale float64)
	UpdateHistFinal(m *fmat.Mat[uint16])
}

// HistoSink accumulates the four histogram events into per-channel
// HDR histograms, and remembers the last progress fraction. Good
// enough for a CLI; a GUI would implement Sink itself.
type HistoSink struct {
	Raw      [3]*hdrhistogram.Histogram
	PreFilm  [3]*hdrhistogram.Histogram
	PostFilm [3]*hdrhistogram.Histogram
	Final    [3]*hdrhistogram.Histogram

	Progress float64
}

func NewHistoSink() *HistoSink {
	s := &HistoSink{}
	for c := 0; c < 3; c++ {
		s.Raw[c] = hdrhistogram.New(1, 65536, 3)
		s.PreFilm[c] = hdrhistogram.New(1, 65536, 3)
		s.PostFilm[c] = hdrhistogram.New(1, 65536, 3)
		s.Final[c] = hdrhistogram.New(1, 65536, 3)
	}
	return s
}

func (s *HistoSink)SetProgress(fraction float64) {
	s.Progress = fraction
}

func record(h *hdrhistogram.Histogram, v float64) {
	iv := int64(v)
	if iv < 1 {
		iv = 1
	}
	if iv > 65536 {
		iv = 65536
	}
	h.RecordValue(iv)
}

// UpdateHistRaw buckets mosaiced sensels by their CFA color; sraw
// and fullcolor frames are already interleaved RGB.
func (s *HistoSink)UpdateHistRaw(m *fmat.Mat[float32], maxValue float64, side fcolor.Sidecar) {
	scale := 1.0
	if maxValue > 0 {
		scale = 65535.0 / maxValue
	}

	if side.IsSraw || side.IsFullColor() {
		s.recordInterleaved(s.Raw[:], m, scale)
		return
	}

	for row := 0; row < m.NR(); row++ {
		for col := 0; col < m.NC(); col++ {
			color := side.CFA[row&1][col&1]
			if side.MaxXTrans > 0 {
				color = side.XTrans[row%6][col%6]
			}
			if color > 2 {
				color = 1
			}
			record(s.Raw[color], float64(m.At(row, col))*scale)
		}
	}
}

func (s *HistoSink)UpdateHistPreFilm(m *fmat.Mat[float32], max float64) {
	scale := 1.0
	if max > 0 {
		scale = 65535.0 / max
	}
	s.recordInterleaved(s.PreFilm[:], m, scale)
}

// UpdateHistPostFilm treats scale as the multiplier that brings the
// filmulated samples into the 16-bit domain.
func (s *HistoSink)UpdateHistPostFilm(m *fmat.Mat[float32], scale float64) {
	if scale <= 0 {
		scale = 1
	}
	s.recordInterleaved(s.PostFilm[:], m, scale)
}

func (s *HistoSink)UpdateHistFinal(m *fmat.Mat[uint16]) {
	for row := 0; row < m.NR(); row++ {
		for col := 0; col < m.NC(); col++ {
			record(s.Final[col%3], float64(m.At(row, col)))
		}
	}
}

func (s *HistoSink)recordInterleaved(hs []*hdrhistogram.Histogram, m *fmat.Mat[float32], scale float64) {
	for row := 0; row < m.NR(); row++ {
		for col := 0; col < m.NC(); col++ {
			record(hs[col%3], float64(m.At(row, col))*scale)
		}
	}
}
