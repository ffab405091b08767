package progress

import (
	"context"
	"math"
	"sync"
	"time"
)

// Reporter throttles and monotonizes progress updates for one job step
// before they reach the bus: percent never goes backwards, and identical
// updates inside minInterval are dropped.
type Reporter struct {
	bus   Bus
	jobID string
	step  string

	minInterval time.Duration

	mu      sync.Mutex
	lastPct int
	lastMsg string
	lastAt  time.Time
}

func NewReporter(bus Bus, jobID, step string, basePct int, minInterval time.Duration) *Reporter {
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	if basePct < 0 {
		basePct = 0
	}
	if basePct > 100 {
		basePct = 100
	}
	return &Reporter{
		bus:         bus,
		jobID:       jobID,
		step:        step,
		minInterval: minInterval,
		lastPct:     basePct,
	}
}

// Update publishes pct/msg unless it would move backwards or repeat too soon.
func (r *Reporter) Update(ctx context.Context, pct int, msg string) {
	if r == nil || r.bus == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	now := time.Now()
	r.mu.Lock()
	if pct < r.lastPct {
		pct = r.lastPct
	}
	if msg == "" {
		msg = r.lastMsg
	}
	if pct == r.lastPct && msg == r.lastMsg && !r.lastAt.IsZero() && now.Sub(r.lastAt) < r.minInterval {
		r.mu.Unlock()
		return
	}
	r.lastPct = pct
	r.lastMsg = msg
	r.lastAt = now
	r.mu.Unlock()

	_ = r.bus.PublishProgress(ctx, ProgressEvent{
		JobID:   r.jobID,
		Step:    r.step,
		Percent: pct,
		Message: msg,
		At:      now,
	})
}

// UpdateRange maps done/total onto the [start,end] percent span.
func (r *Reporter) UpdateRange(ctx context.Context, done, total, start, end int, msg string) {
	if r == nil {
		return
	}
	if end < start {
		end = start
	}
	if total <= 0 {
		r.Update(ctx, start, msg)
		return
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	pct := start + int(math.Round(float64(done)/float64(total)*float64(end-start)))
	r.Update(ctx, pct, msg)
}
