package engine

import "sync/atomic"

// Clock is a monotonic logical clock stamping dispatch order.
// Wall-clock timestamps are recorded for humans; ordering and
// reproducibility assertions use these seq numbers only.
type Clock struct {
	seq atomic.Int64
}

// Next returns the next sequence number. Each call returns a unique,
// strictly increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
