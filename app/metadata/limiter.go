package metadata

import (
	"sync"
	"time"
)

// pacer enforces a fixed minimum interval between outbound API calls.
// Callers are granted send slots in arrival order, so a burst of concurrent
// requests drains one by one instead of racing for the next free slot.
type pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Wait blocks until the caller's slot opens. The first call proceeds
// immediately; each subsequent call is spaced at least one interval after
// the previous caller's slot.
func (p *pacer) Wait() {
	p.mu.Lock()
	now := p.now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.interval)
	p.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		p.sleep(d)
	}
}
