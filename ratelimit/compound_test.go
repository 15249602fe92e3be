package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompoundAvailableIsMinimumAcrossMembers(t *testing.T) {
	c := NewCompound(nil)

	perConn := NewLimiter()
	perConn.SetLimit(Inbound, 1000)
	perTenant := NewLimiter()
	perTenant.SetLimit(Inbound, 100)

	c.AddLimiter(perConn)
	c.AddLimiter(perTenant)

	tick(perConn, Inbound)
	tick(perTenant, Inbound)

	// perConn's single-member bucket gets the full 200/tick share; perTenant's
	// gets 20/tick (100/5). The compound reports the tighter of the two.
	require.Equal(t, uint64(20), c.Available(Inbound))
}

func TestCompoundConsumeDeductsFromAllMembers(t *testing.T) {
	c := NewCompound(nil)

	l1 := NewLimiter()
	l1.SetLimit(Inbound, 1000)
	l2 := NewLimiter()
	l2.SetLimit(Inbound, 1000)
	c.AddLimiter(l1)
	c.AddLimiter(l2)

	tick(l1, Inbound)
	tick(l2, Inbound)

	c.Consume(Inbound, 50)

	for _, b := range c.buckets {
		require.Equal(t, uint64(150), b.Available(Inbound))
	}
}

func TestCompoundWakeupForwardsOnlyWhenWaiting(t *testing.T) {
	var woke []Direction
	c := NewCompound(func(d Direction) { woke = append(woke, d) })

	l := NewLimiter()
	l.SetLimit(Inbound, 1000)
	c.AddLimiter(l)

	require.Equal(t, uint64(0), c.Available(Inbound)) // empty bucket, marks waiting

	tick(l, Inbound) // refill fires the member bucket's wakeup

	require.Eventually(t, func() bool { return len(woke) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, Inbound, woke[0])
}

func TestCompoundRemoveLimiterDropsMember(t *testing.T) {
	c := NewCompound(nil)
	l := NewLimiter()
	l.SetLimit(Inbound, 1000)
	b := c.AddLimiter(l)

	c.RemoveLimiter(b)

	require.Len(t, c.buckets, 0)
	p, _ := b.getParent()
	require.Nil(t, p)
}
