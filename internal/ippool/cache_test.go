package ippool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_GetPutExpire(t *testing.T) {
	c := newCache(4)
	now := time.Unix(1_700_000_000, 0)
	key := CacheKey{Host: "github.com", Port: 443}

	_, ok := c.get(key, now)
	require.False(t, ok)

	c.put(key, CacheSlot{Best: Stat{IP: "1.2.3.4", ExpiresAt: now.Add(time.Minute)}})
	st, ok := c.get(key, now)
	require.True(t, ok)
	require.Equal(t, "1.2.3.4", st.Best.IP)

	_, ok = c.get(key, now.Add(2*time.Minute))
	require.False(t, ok, "expired entries are not returned")
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newCache(2)
	now := time.Unix(1_700_000_000, 0)

	k1 := CacheKey{Host: "a.example.com", Port: 443}
	k2 := CacheKey{Host: "b.example.com", Port: 443}
	k3 := CacheKey{Host: "c.example.com", Port: 443}

	c.put(k1, CacheSlot{Best: Stat{IP: "1.1.1.1"}})
	c.put(k2, CacheSlot{Best: Stat{IP: "2.2.2.2"}})
	c.put(k3, CacheSlot{Best: Stat{IP: "3.3.3.3"}}) // evicts k1, the LRU entry

	_, ok := c.get(k1, now)
	require.False(t, ok)

	_, ok = c.get(k2, now)
	require.True(t, ok)
}
