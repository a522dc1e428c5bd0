package pipeline

import(
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/skypies/util/histogram"
)

// Per-stage wall-clock timings, for diagnostics only; they take no
// part in scheduling. The histograms accumulate across every
// pipeline in the process.
var(
	timingMu      sync.Mutex
	stageTimings  = map[string]*histogram.Histogram{}
)

func recordStageTime(stage string, d time.Duration) {
	timingMu.Lock()
	defer timingMu.Unlock()

	h, ok := stageTimings[stage]
	if !ok {
		h = &histogram.Histogram{NumBuckets: 40, ValMin: 0, ValMax: 20000}
		stageTimings[stage] = h
	}
	h.Add(histogram.ScalarVal(int(d.Milliseconds())))

	log.Printf("%s end: %v", stage, d)
}

// StageTimings returns the accumulated per-stage duration
// histograms, keyed by stage name, in milliseconds.
func StageTimings() map[string]*histogram.Histogram {
	timingMu.Lock()
	defer timingMu.Unlock()

	out := map[string]*histogram.Histogram{}
	for k, v := range stageTimings {
		out[k] = v
	}
	return out
}
