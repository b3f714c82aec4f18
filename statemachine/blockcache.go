// Package statemachine implements the StateManager component (spec.md
// §4.7, C7): the per-operator Round and per-kickoff Kickoff state
// machines a confirmed-block stream drives, and the fixpoint loop that
// converges them before a block tick is considered done.
package statemachine

import (
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// DefaultBlockCacheCapacity bounds how many trailing block heights
// BlockCache retains observations for, mirroring the role the
// teacher's legacy/netsync.SyncManager plays in feeding its node block
// events one at a time without holding the whole chain in memory.
const DefaultBlockCacheCapacity = 2016

// BlockCache is the read-only-within-a-block shared view every machine
// checks its Matchers against (spec.md §4.7 step 1/§5: "the BlockCache
// (read-only within a block)"). It is fed by an external indexer or
// Bitcoin RPC client — out of scope per spec.md §1 — which supplies,
// for each newly confirmed height, which txids confirmed and which
// previously-unspent outpoints were spent.
type BlockCache struct {
	mu       sync.RWMutex
	capacity int

	height uint32

	txidHeight map[[32]byte]uint32
	spent      map[wire.OutPoint]uint32

	heightTxids map[uint32][][32]byte
	heightSpent map[uint32][]wire.OutPoint
}

// NewBlockCache returns an empty cache retaining at most capacity
// trailing heights of observations.
func NewBlockCache(capacity int) *BlockCache {
	if capacity <= 0 {
		capacity = DefaultBlockCacheCapacity
	}
	return &BlockCache{
		capacity:    capacity,
		txidHeight:  make(map[[32]byte]uint32),
		spent:       make(map[wire.OutPoint]uint32),
		heightTxids: make(map[uint32][][32]byte),
		heightSpent: make(map[uint32][]wire.OutPoint),
	}
}

// Advance folds in one newly confirmed block's observations and evicts
// the oldest retained height once capacity is exceeded.
func (c *BlockCache) Advance(height uint32, confirmedTxids [][32]byte, spentOutpoints []wire.OutPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.height = height
	c.heightTxids[height] = confirmedTxids
	c.heightSpent[height] = spentOutpoints

	for _, txid := range confirmedTxids {
		c.txidHeight[txid] = height
	}
	for _, op := range spentOutpoints {
		c.spent[op] = height
	}

	if height >= uint32(c.capacity) {
		evict := height - uint32(c.capacity)
		for _, txid := range c.heightTxids[evict] {
			delete(c.txidHeight, txid)
		}
		for _, op := range c.heightSpent[evict] {
			delete(c.spent, op)
		}
		delete(c.heightTxids, evict)
		delete(c.heightSpent, evict)
	}
}

// Height is the most recently advanced block height.
func (c *BlockCache) Height() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// SawTx reports whether txid has confirmed within the retained window.
func (c *BlockCache) SawTx(txid [32]byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.txidHeight[txid]
	return ok
}

// SawSpend reports whether outpoint has been spent within the retained
// window.
func (c *BlockCache) SawSpend(outpoint wire.OutPoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.spent[outpoint]
	return ok
}

// Matcher is satisfied once BlockCache observes the on-chain event it
// names (spec.md §4.7: "installs Matchers against a BlockCache:
// SentTx(txid) and SpentUtxo(outpoint)").
type Matcher interface {
	Check(cache *BlockCache) bool
}

// SentTxMatcher fires once Txid confirms.
type SentTxMatcher struct{ Txid [32]byte }

func (m SentTxMatcher) Check(cache *BlockCache) bool { return cache.SawTx(m.Txid) }

// SpentUtxoMatcher fires once Outpoint has been spent by any
// transaction, regardless of which branch spent it.
type SpentUtxoMatcher struct{ Outpoint wire.OutPoint }

func (m SpentUtxoMatcher) Check(cache *BlockCache) bool { return cache.SawSpend(m.Outpoint) }
