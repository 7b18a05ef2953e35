package voice

import (
	"sync"
	"time"
)

const metricsHistory = 100

// Metrics tracks latency at each stage of one conversation turn.
// All durations are measured from the moment capture ended.
type Metrics struct {
	// Timestamps for key events
	CaptureEndTime  time.Time `json:"capture_end"`  // Listening stopped or text was sent
	ResponseTime    time.Time `json:"response"`     // Assistant reply appended
	SpeechStartTime time.Time `json:"speech_start"` // Speaking flag went true
	SpeechEndTime   time.Time `json:"speech_end"`   // Playback ended or was cut off

	// Computed latencies (from capture end)
	ResponseLatency time.Duration `json:"response_latency"`
	SpeechLatency   time.Duration `json:"speech_latency"`
	TotalLatency    time.Duration `json:"total_latency"`

	// Counts for this turn
	PreviewUpdates int  `json:"preview_updates"`
	Fallback       bool `json:"fallback"`
}

// MetricsCollector collects latency metrics during a conversation turn.
// It is goroutine-safe and can be used from multiple callbacks.
type MetricsCollector struct {
	mu      sync.Mutex
	now     func() time.Time
	current Metrics
	history []Metrics // Recent turns for averaging

	onUpdate func(Metrics)
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		now:     time.Now,
		history: make([]Metrics, 0, metricsHistory),
	}
}

// OnUpdate sets a callback that fires whenever metrics are updated.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkCaptureEnd starts a new turn. It is the reference point for all
// latency measurements.
func (m *MetricsCollector) MarkCaptureEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{CaptureEndTime: m.now()}
}

// MarkPreview counts a live preview update.
func (m *MetricsCollector) MarkPreview() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.PreviewUpdates++
}

// MarkResponse records when the reply was appended.
func (m *MetricsCollector) MarkResponse() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ResponseTime = m.now()
	if !m.current.CaptureEndTime.IsZero() {
		m.current.ResponseLatency = m.current.ResponseTime.Sub(m.current.CaptureEndTime)
	}
	m.notify()
}

// MarkFallback flags the turn as answered by the fallback text.
func (m *MetricsCollector) MarkFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Fallback = true
}

// MarkSpeechStart records when the reply became audible. Only the first
// call of a turn counts.
func (m *MetricsCollector) MarkSpeechStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.SpeechStartTime.IsZero() {
		return
	}
	m.current.SpeechStartTime = m.now()
	if !m.current.CaptureEndTime.IsZero() {
		m.current.SpeechLatency = m.current.SpeechStartTime.Sub(m.current.CaptureEndTime)
	}
	m.notify()
}

// MarkSpeechEnd closes the turn and archives it.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.CaptureEndTime.IsZero() || !m.current.SpeechEndTime.IsZero() {
		return
	}
	m.current.SpeechEndTime = m.now()
	m.current.TotalLatency = m.current.SpeechEndTime.Sub(m.current.CaptureEndTime)

	m.history = append(m.history, m.current)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
	m.notify()
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns how many completed turns are in the history.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average metrics over recent turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return Metrics{}
	}

	var avg Metrics
	for _, h := range m.history {
		avg.ResponseLatency += h.ResponseLatency
		avg.SpeechLatency += h.SpeechLatency
		avg.TotalLatency += h.TotalLatency
		avg.PreviewUpdates += h.PreviewUpdates
	}

	n := len(m.history)
	avg.ResponseLatency /= time.Duration(n)
	avg.SpeechLatency /= time.Duration(n)
	avg.TotalLatency /= time.Duration(n)
	avg.PreviewUpdates /= n

	return avg
}

// notify calls the update callback if set.
// Must be called with mutex held.
func (m *MetricsCollector) notify() {
	if m.onUpdate != nil {
		metrics := m.current
		go m.onUpdate(metrics)
	}
}

// FormatLatency returns a formatted string of the turn's latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.ResponseLatency) + " REPLY | " +
		formatDuration(m.SpeechLatency) + " SPEECH | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
