package utils

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/HeltonFraga01/cortexx-sub017/models"
)

// Pacer computes the humanization delay applied between consecutive
// sends of a campaign. Safe for use from multiple workers.
type Pacer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacer creates a pacer. A zero seed uses the current time.
func NewPacer(seed int64) *Pacer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Pacer{rng: rand.New(rand.NewSource(seed))}
}

// Delay returns a wait drawn uniformly from [DelayMin, DelayMax]
// seconds, with millisecond granularity. Equal bounds give a fixed
// delay; a max below min is treated as equal to min.
func (p *Pacer) Delay(h models.Humanization) time.Duration {
	min := time.Duration(h.DelayMinSeconds) * time.Second
	max := time.Duration(h.DelayMaxSeconds) * time.Second
	if max <= min {
		return min
	}

	spanMs := int64((max - min) / time.Millisecond)
	p.mu.Lock()
	offset := p.rng.Int63n(spanMs + 1)
	p.mu.Unlock()
	return min + time.Duration(offset)*time.Millisecond
}

// Sleep waits for d and returns true, or returns false early when the
// context is cancelled or the wake channel fires. Pause and cancel use
// the wake channel to interrupt a sleeping worker immediately instead
// of letting it finish the full wait.
func Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-wake:
		return false
	}
}
