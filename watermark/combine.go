package watermark

import (
	"math"
)

// Partial is the last watermark reported by one input partition.
type Partial struct {
	Seen      bool
	Timestamp int64
}

func (p *Partial) Update(timestamp int64) {
	if !p.Seen || timestamp > p.Timestamp {
		p.Seen = true
		p.Timestamp = timestamp
	}
}

// Combined min-reduces per-partition watermarks into the effective pipeline
// watermark. A single lagging partition withholds advancement for everyone.
//
// Fields are exported for gob snapshots.
type Combined struct {
	CombinedTimestamp int64
	Partials          []*Partial
}

func NewCombined(inputs int) *Combined {
	partials := make([]*Partial, inputs)
	for p := range partials {
		partials[p] = &Partial{}
	}
	return &Combined{
		CombinedTimestamp: 0,
		Partials:          partials,
	}
}

func (c *Combined) Current() int64 {
	return c.CombinedTimestamp
}

// Update records a partition watermark and recomputes the minimum over all
// inputs. It reports whether the combined watermark advanced. Partitions that
// have not reported yet hold the combined value at its initial zero.
func (c *Combined) Update(timestamp int64, input int) bool {
	c.Partials[input].Update(timestamp)
	var minimumOverAllInputs int64 = math.MaxInt64
	for _, partial := range c.Partials {
		if !partial.Seen {
			return false
		}
		if partial.Timestamp < minimumOverAllInputs {
			minimumOverAllInputs = partial.Timestamp
		}
	}
	if minimumOverAllInputs > c.CombinedTimestamp {
		c.CombinedTimestamp = minimumOverAllInputs
		return true
	}
	return false
}
