package core

const AVG_COUNT = 30

// FrameMetrics keeps a moving average of frame times and a per-second FPS counter.
type FrameMetrics struct {
	counter       int
	msTimes       [AVG_COUNT]float64
	msAvg         float64
	frames        int
	accumulatedMS float64
	fps           float64
	samples       int
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// Update records one frame that took frameSeconds. It returns true once per
// accumulated second, when the FPS value is refreshed.
func (m *FrameMetrics) Update(frameSeconds float64) bool {
	frameMS := frameSeconds * 1000.0
	m.msTimes[m.counter] = frameMS
	if m.samples < AVG_COUNT {
		m.samples++
	}
	m.counter = (m.counter + 1) % AVG_COUNT

	sum := 0.0
	for i := 0; i < m.samples; i++ {
		sum += m.msTimes[i]
	}
	m.msAvg = sum / float64(m.samples)

	m.frames++
	m.accumulatedMS += frameMS
	if m.accumulatedMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedMS -= 1000
		m.frames = 0
		return true
	}
	return false
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}

func (m *FrameMetrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
