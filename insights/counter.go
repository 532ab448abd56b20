package insights

import (
	"cmp"
	"slices"
)

// Count is one tallied key.
type Count struct {
	Key   string
	Count int
}

// Counter tallies string keys. Ranked output is ordered by count descending,
// ties broken by key so reports are reproducible.
type Counter struct {
	counts map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

func (c *Counter) Add(key string) {
	c.counts[key]++
}

func (c *Counter) Get(key string) int {
	return c.counts[key]
}

func (c *Counter) Len() int {
	return len(c.counts)
}

// Top returns the n most frequent keys; n <= 0 returns all of them.
func (c *Counter) Top(n int) []Count {
	out := make([]Count, 0, len(c.counts))
	for k, v := range c.counts {
		out = append(out, Count{Key: k, Count: v})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Sorted returns every key in ascending key order.
func (c *Counter) Sorted() []Count {
	out := c.Top(0)
	slices.SortFunc(out, func(a, b Count) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

func split(counts []Count) ([]string, []int) {
	keys := make([]string, len(counts))
	values := make([]int, len(counts))
	for i, c := range counts {
		keys[i] = c.Key
		values[i] = c.Count
	}
	return keys, values
}
