// Package selection decides which manifest series get converted.
package selection

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mrsinham/dicomvol/internal/manifest"
)

// Defaults match the converter's historical behavior.
const (
	DefaultMaxPerModality         = 8
	DefaultMinSlices              = 50
	DefaultMinSlicesDistinguished = 3
	DefaultDistinguishedModality  = "US"
)

// Reason explains a Decision.
type Reason int

const (
	Accepted Reason = iota
	TooFewSlices
	QuotaReached
)

func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case TooFewSlices:
		return "too few slices"
	case QuotaReached:
		return "modality quota reached"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Decision is the outcome of evaluating one series.
type Decision struct {
	Accept bool
	Reason Reason
}

// Policy holds the selection thresholds.
type Policy struct {
	MaxPerModality         int // <= 0 means unlimited
	MinSlices              int
	MinSlicesDistinguished int
	DistinguishedModality  string
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxPerModality:         DefaultMaxPerModality,
		MinSlices:              DefaultMinSlices,
		MinSlicesDistinguished: DefaultMinSlicesDistinguished,
		DistinguishedModality:  DefaultDistinguishedModality,
	}
}

// MinSlicesFor returns the slice threshold that applies to modality.
// Modality codes compare case-insensitively.
func (p Policy) MinSlicesFor(modality string) int {
	if strings.EqualFold(strings.TrimSpace(modality), strings.TrimSpace(p.DistinguishedModality)) {
		return p.MinSlicesDistinguished
	}
	return p.MinSlices
}

// Unlimited reports whether the per-modality quota is disabled.
func (p Policy) Unlimited() bool {
	return p.MaxPerModality <= 0
}

// Evaluate decides whether d should be converted given how many series of
// its modality have already been converted. It never modifies c.
func (p Policy) Evaluate(d manifest.Descriptor, c *Counter) Decision {
	if d.SliceCount < p.MinSlicesFor(d.Modality) {
		return Decision{Reason: TooFewSlices}
	}
	if !p.Unlimited() && c.Count(d.Modality) >= p.MaxPerModality {
		return Decision{Reason: QuotaReached}
	}
	return Decision{Accept: true, Reason: Accepted}
}

// Counter tracks converted series per modality. It also tracks series that
// are being converted but not yet finished, so a parallel driver can tell
// whether a quota could still be reached.
type Counter struct {
	mu        sync.Mutex
	committed map[string]int
	inFlight  map[string]int
}

// NewCounter returns a counter with every given modality at zero.
func NewCounter(modalities ...string) *Counter {
	c := &Counter{committed: make(map[string]int), inFlight: make(map[string]int)}
	for _, m := range modalities {
		c.committed[m] = 0
	}
	return c
}

// Count returns the number of successfully converted series of modality.
func (c *Counter) Count(modality string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed[modality]
}

// InFlight returns the number of reserved, unfinished series of modality.
func (c *Counter) InFlight(modality string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[modality]
}

// Reserve marks one series of modality as being converted.
func (c *Counter) Reserve(modality string) {
	c.mu.Lock()
	c.inFlight[modality]++
	c.mu.Unlock()
}

// Release ends a reservation. When converted is true the series also counts
// toward the modality total.
func (c *Counter) Release(modality string, converted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[modality] > 0 {
		c.inFlight[modality]--
	}
	if converted {
		c.committed[modality]++
	}
}

// Snapshot returns a copy of the committed counts.
func (c *Counter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.committed))
	for k, v := range c.committed {
		out[k] = v
	}
	return out
}
