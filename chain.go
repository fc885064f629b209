package sparse

import (
	"math/bits"

	"github.com/pkg/errors"
)

// chainLink locates an entry of a single-store File.
type chainLink struct {
	recordsEnd int64 // end of the entry's journal records in File.records
	header     int64 // data store offset of the entry's parent pointer
}

// skipChain picks the parent of the next entry of a single-store File.
//
// Entry k (1-based) stores the journal records of entries k-lowbit(k)+1
// to k and points back to entry k-lowbit(k), where lowbit(k) is the
// greatest power of two dividing k. Every record is thus repeated in at
// most log2(n) entries, and a reader recovers all records from the
// at most log2(n) entries reached by following parent pointers.
type skipChain struct {
	// links[i] is the latest entry whose number is divisible by 2^(i+1)
	links  []chainLink
	pushed int
}

// push records the entry appended last.
func (c *skipChain) push(l chainLink) {
	c.pushed++

	n := bits.TrailingZeros(uint(c.pushed))
	for len(c.links) < n {
		c.links = append(c.links, chainLink{})
	}
	for i := 0; i < n; i++ {
		c.links[i] = l
	}
}

// parent returns the parent of the next entry, or a zero link if the
// next entry must hold all records.
func (c *skipChain) parent() chainLink {
	i := bits.TrailingZeros(uint(c.pushed + 1))
	if i >= len(c.links) {
		return chainLink{}
	}
	return c.links[i]
}

// restoreChain rebuilds the chain from the entries reached by following
// parent pointers, oldest first, and the number of records each holds.
func restoreChain(links []chainLink, sizes []int) (*skipChain, error) {
	if len(links) != len(sizes) {
		return nil, errors.Errorf("sparse: %d chain entries with %d sizes", len(links), len(sizes))
	}

	c := new(skipChain)
	for i := len(sizes) - 1; i >= 0; i-- {
		sz := sizes[i]
		if sz < 1 || sz&(sz-1) != 0 || (i > 0 && sizes[i-1] <= sz) {
			return nil, errors.Errorf("sparse: bad chain entry size %d", sz)
		}
		for n := bits.TrailingZeros(uint(sz)); len(c.links) < n; {
			c.links = append(c.links, links[i])
		}
		c.pushed += sz
	}
	return c, nil
}
