package carriers

import (
	"slices"
	"sync"
	"time"
)

const latencyWindow = 100

// Tally keeps one carrier's recent outcomes in process for the operator
// stats route. Prometheus gets the same observations from Registry.Send.
type Tally struct {
	mu        sync.Mutex
	sent      int64
	failed    int64
	latencies [latencyWindow]time.Duration
	filled    int
	next      int
	lastError string
	lastFail  time.Time
	lastOK    time.Time
}

func (t *Tally) observe(latency time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.latencies[t.next] = latency
	t.next = (t.next + 1) % latencyWindow
	if t.filled < latencyWindow {
		t.filled++
	}

	if err != nil {
		t.failed++
		t.lastError = err.Error()
		t.lastFail = time.Now().UTC()
		return
	}
	t.sent++
	t.lastOK = time.Now().UTC()
}

// CarrierStats is the JSON view of a Tally.
type CarrierStats struct {
	Name          string     `json:"name"`
	Accepted      int64      `json:"accepted"`
	Failed        int64      `json:"failed"`
	SuccessRate   float64    `json:"successRate"`
	P95LatencyMs  int64      `json:"p95LatencyMs"`
	LastError     string     `json:"lastError,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
}

func (t *Tally) snapshot(name string) CarrierStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := CarrierStats{
		Name:         name,
		Accepted:     t.sent,
		Failed:       t.failed,
		SuccessRate:  1,
		P95LatencyMs: t.p95().Milliseconds(),
		LastError:    t.lastError,
	}
	if total := t.sent + t.failed; total > 0 {
		s.SuccessRate = float64(t.sent) / float64(total)
	}
	if !t.lastFail.IsZero() {
		at := t.lastFail
		s.LastFailureAt = &at
	}
	if !t.lastOK.IsZero() {
		at := t.lastOK
		s.LastSuccessAt = &at
	}
	return s
}

// p95 is taken over the last latencyWindow sends. Callers hold mu.
func (t *Tally) p95() time.Duration {
	if t.filled == 0 {
		return 0
	}
	window := slices.Clone(t.latencies[:t.filled])
	slices.Sort(window)
	return window[min(t.filled*95/100, t.filled-1)]
}
