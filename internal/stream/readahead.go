package stream

import "sync"

const fallbackBps = 24_000_000 / 8 // 3 MB/s

// readahead sizes the engine's readahead window from observed throughput.
type readahead struct {
	mu         sync.Mutex
	rollingBps int64
	aheadSec   int64
}

func newReadahead(aheadSec int64) *readahead {
	return &readahead{rollingBps: fallbackBps, aheadSec: aheadSec}
}

func (r *readahead) Observe(bytes, millis int64) {
	if millis <= 0 || bytes <= 0 {
		return
	}
	obs := (bytes * 1000) / millis
	if obs <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollingBps = (r.rollingBps*7 + obs*3) / 10
}

func (r *readahead) TargetBytes() int64 {
	r.mu.Lock()
	bps, sec := r.rollingBps, r.aheadSec
	r.mu.Unlock()
	if bps <= 0 {
		bps = fallbackBps
	}
	if bps < fallbackBps {
		sec += sec / 3
	}
	return bps * sec
}
