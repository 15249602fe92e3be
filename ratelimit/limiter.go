package ratelimit

import "sync"

var _ child = (*Limiter)(nil)

// Limiter is an interior tree node: it divides the budget it receives from
// its parent (or, at the root of a subtree, the budget implied by its own
// configured limit) fairly among its children by weight, tracking carry so
// integer division never leaks tokens over the long run, and debt so a
// child that joined mid-tick doesn't permanently skew the rate.
type Limiter struct {
	node

	mu sync.Mutex

	children []child

	limit          [numDirections]uint64
	carry          [numDirections]uint64
	debt           [numDirections]uint64
	overflow       [numDirections]uint64
	mergedTokens   [numDirections]uint64
	unusedCapacity [numDirections]uint64

	weightCache uint64
}

// NewLimiter creates an unattached limiter with both directions unlimited.
func NewLimiter() *Limiter {
	l := &Limiter{}
	l.limit[Inbound] = Unlimited
	l.limit[Outbound] = Unlimited
	return l
}

// SetLimit sets the byte/second ceiling for direction d; pass Unlimited to
// disable throttling in that direction.
func (l *Limiter) SetLimit(d Direction, bytesPerSecond uint64) {
	l.mu.Lock()
	l.limit[d] = bytesPerSecond
	l.carry[d] = 0
	l.mu.Unlock()

	if m := l.manager; m != nil {
		m.RecordActivity()
	}
}

func (l *Limiter) Limit(d Direction) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit[d]
}

// AddChild attaches c as a direct child, detaching it from any prior parent
// first. Mid-tick joins record an eager grant as debt so future ticks
// repay it rather than permanently skewing the rate.
func (l *Limiter) AddChild(c child) {
	if p, _ := c.getParent(); p != nil {
		detach(c)
	}

	l.mu.Lock()
	idx := len(l.children)
	l.children = append(l.children, c)
	l.weightCache += c.weight()
	l.mu.Unlock()

	c.setParent(l, idx)
	c.propagateManager(l.manager)

	for d := Direction(0); d < numDirections; d++ {
		l.mu.Lock()
		w := l.weightCache
		if w == 0 {
			w = 1
		}
		granted := l.mergedTokens[d] / (w * 2)
		l.debt[d] += granted * w
		l.mu.Unlock()
		if granted > 0 {
			c.addTokens(d, granted, granted)
		}
	}

	if l.manager != nil {
		l.manager.RecordActivity()
	}
}

// RemoveChild detaches c, an O(1) swap-with-last under l.mu (called via
// detach()'s try-lock/backoff path to stay deadlock-free against a
// concurrent top-down tick).
func (l *Limiter) RemoveChild(c child) {
	detach(c)
}

// removeChildLocked is called by detach() with l.mu already held.
func (l *Limiter) removeChildLocked(idx int) {
	last := len(l.children) - 1
	if idx < 0 || idx > last {
		return
	}
	removed := l.children[idx]
	l.weightCache -= removed.weight()

	if idx != last {
		moved := l.children[last]
		l.children[idx] = moved
		moved.setParent(l, idx)
	}
	l.children = l.children[:last]
}

func (l *Limiter) weight() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.weightCache == 0 {
		return 1
	}
	return l.weightCache
}

func (l *Limiter) propagateManager(m *Manager) {
	l.manager = m
	l.mu.Lock()
	children := append([]child(nil), l.children...)
	l.mu.Unlock()
	for _, c := range children {
		c.propagateManager(m)
	}
}

// lockTree/unlockTree implement the manager's locking order: parent before
// children on the way down, children before parent on the way up, so no
// child ever waits on a lock its own ancestor already holds without first
// releasing a descendant.
func (l *Limiter) lockTree() {
	l.mu.Lock()
	for _, c := range l.children {
		c.lockTree()
	}
}

func (l *Limiter) unlockTree() {
	for i := len(l.children) - 1; i >= 0; i-- {
		l.children[i].unlockTree()
	}
	l.mu.Unlock()
}

// updateStats refreshes the weight cache and recurses, returning whether
// any descendant bucket is currently waiting (the tree is "active").
func (l *Limiter) updateStats(d Direction) bool {
	var w uint64
	active := false
	for _, c := range l.children {
		w += c.weight()
		if c.updateStats(d) {
			active = true
		}
	}
	l.weightCache = w
	return active
}

// payDebt deducts previously-granted eager tokens from this tick's budget,
// bounded so it can never go negative and never repay faster than
// debt/weight per tick.
func (l *Limiter) payDebt(d Direction, budget uint64) uint64 {
	if l.debt[d] == 0 {
		return budget
	}
	w := l.weightCache
	if w == 0 {
		w = 1
	}
	repay := l.debt[d] / w
	if repay > budget {
		repay = budget
	}
	l.debt[d] -= repay * w
	return budget - repay
}

// perTickLimit folds this limiter's own configured rate into a per-tick
// token count, carrying the integer-division remainder forward so the
// long-run rate never drifts.
func (l *Limiter) perTickLimit(d Direction, frequency uint64) uint64 {
	L := l.limit[d]
	if L == Unlimited {
		return Unlimited
	}

	w := l.weightCache
	if w == 0 {
		w = 1
	}

	carryPrime := addSaturating(l.carry[d], L)
	myLimit := carryPrime / w
	l.carry[d] = carryPrime % w

	if frequency == 0 {
		frequency = 1
	}
	merged := myLimit / frequency
	l.carry[d] = addSaturating(l.carry[d], (myLimit%frequency)*w)
	return merged
}

// addTokens is called by this node's parent (or the manager, for a
// top-level limiter) with the tick's grant. It folds in its own configured
// limit, pays off debt, and hands the resulting per-weight-unit grant to
// every child.
func (l *Limiter) addTokens(d Direction, grant, parentLimit uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	frequency := uint64(5)
	if l.manager != nil {
		frequency = l.manager.ticksPerSecond()
	}

	own := l.perTickLimit(d, frequency)
	budget := grant
	if own != Unlimited {
		budget = minU64(budget, own)
	}
	if parentLimit != Unlimited {
		budget = minU64(budget, parentLimit)
	}

	budget = l.payDebt(d, budget)
	l.mergedTokens[d] = budget

	distributed, overflow := l.fanOut(d, budget)
	l.unusedCapacity[d] = subSaturating(budget, distributed)
	l.overflow[d] = overflow
	return overflow
}

func (l *Limiter) fanOut(d Direction, budget uint64) (distributed, overflow uint64) {
	n := len(l.children)
	if n == 0 {
		return 0, budget
	}

	// perTickLimit already divided this limiter's rate by its weight, so
	// budget is a per-weight-unit grant that every child receives whole.
	shares := make([]uint64, n)
	for i := range l.children {
		shares[i] = budget
	}

	for i, c := range l.children {
		of := c.addTokens(d, shares[i], budget)
		overflow += of
		distributed += shares[i]
	}

	if overflow > 0 {
		leftover := l.distributeOverflow(d, overflow)
		distributed += overflow - leftover
		overflow = leftover
	}

	return distributed, overflow
}

// distributeOverflow iteratively divides tokens among unsaturated children
// until either tokens are exhausted or no unsaturated child remains,
// returning whatever could not be placed (bubbled up to this node's own
// parent in the next level of fanOut).
func (l *Limiter) distributeOverflow(d Direction, tokens uint64) uint64 {
	remaining := tokens
	for remaining > 0 {
		unsat := make([]child, 0, len(l.children))
		for _, c := range l.children {
			if b, ok := c.(*Bucket); ok {
				if b.unsaturated[d] {
					unsat = append(unsat, c)
				}
				continue
			}
			if lim, ok := c.(*Limiter); ok {
				if lim.unusedCapacity[d] > 0 {
					unsat = append(unsat, c)
				}
			}
		}
		if len(unsat) == 0 {
			break
		}

		share := remaining / uint64(len(unsat))
		if share == 0 {
			break
		}

		var placed uint64
		for _, c := range unsat {
			of := c.distributeOverflow(d, share)
			placed += share - of
		}
		if placed == 0 {
			break
		}
		remaining -= placed
	}
	return remaining
}
