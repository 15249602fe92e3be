package ratelimit

import "sync/atomic"

// Compound lets a single stream be a member of several independent limiter
// trees at once (e.g. a per-connection cap and a per-tenant cap). Each
// direction takes the minimum of every member bucket's available budget
// and consumes from all of them after a successful transfer.
type Compound struct {
	buckets []*Bucket

	// waiting[d] is set before querying available on every member and
	// cleared after, synchronizing against a concurrent wakeup so a
	// refill landing between the check and the "go waiting" flag isn't
	// lost.
	waiting [numDirections]atomic.Bool

	wakeup func(Direction)
}

// NewCompound creates a compound bucket view with no members yet.
func NewCompound(wakeup func(Direction)) *Compound {
	return &Compound{wakeup: wakeup}
}

// AddLimiter attaches a new leaf Bucket to limiter l and folds it into the
// compound's membership.
func (c *Compound) AddLimiter(l *Limiter) *Bucket {
	b := NewBucket(c.memberWakeup)
	l.AddChild(b)
	c.buckets = append(c.buckets, b)
	return b
}

func (c *Compound) RemoveLimiter(b *Bucket) {
	b.Detach()
	for i, existing := range c.buckets {
		if existing == b {
			last := len(c.buckets) - 1
			c.buckets[i] = c.buckets[last]
			c.buckets = c.buckets[:last]
			return
		}
	}
}

// memberWakeup is each member bucket's individual wakeup callback; the
// compound only forwards it to the application once, and only if it still
// believes the direction is starved (waiting[d] true).
func (c *Compound) memberWakeup(d Direction) {
	if c.waiting[d].CompareAndSwap(true, false) {
		if c.wakeup != nil {
			c.wakeup(d)
		}
	}
}

// Available returns the minimum budget across every member. If any member
// is at zero, the compound marks itself waiting on that direction before
// returning, in the same query that discovered the zero -- no window where
// a refill between the check and the flag set is missed.
func (c *Compound) Available(d Direction) uint64 {
	if len(c.buckets) == 0 {
		return Unlimited
	}

	c.waiting[d].Store(true)

	min := Unlimited
	for _, b := range c.buckets {
		a := b.Available(d)
		if a < min {
			min = a
		}
	}

	if min > 0 {
		c.waiting[d].Store(false)
	}

	return min
}

// Consume deducts amount from every member.
func (c *Compound) Consume(d Direction, amount uint64) {
	for _, b := range c.buckets {
		b.Consume(d, amount)
	}
}
