// Package mmr is the native-side counterpart to circuit.MMRGuest
// (spec.md §4.2, component C2): it retains every interior node so it
// can produce inclusion proofs that the guest (or any offline verifier)
// can check against nothing but the current peaks.
package mmr

import (
	"crypto/sha256"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/circuit"
)

// Hash256 aliases the guest's hash type so proofs can cross the
// package boundary without conversions.
type Hash256 = circuit.Hash256

// Tree mirrors appends made to a circuit.MMRGuest, keeping every
// interior node indexed by (level, position) so a leaf's sibling path
// is a pair of array lookups rather than a recomputation.
type Tree struct {
	nodes       [][]Hash256
	leavesCount uint32
}

func New() *Tree {
	return &Tree{nodes: [][]Hash256{{}}}
}

func hashConcat(left, right Hash256) Hash256 {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

// Append mirrors circuit.MMRGuest.Append's carry algorithm, but instead
// of discarding merged-away nodes it keeps every node ever computed,
// indexed per level: nodes[level][k] is always the ancestor of leaves
// [k*2^level, (k+1)*2^level), once that range is complete.
func (t *Tree) Append(leaf Hash256) {
	t.nodes[0] = append(t.nodes[0], leaf)

	size := t.leavesCount
	level := 0

	for size&1 == 1 {
		arr := t.nodes[level]
		n := len(arr)
		combined := hashConcat(arr[n-2], arr[n-1])

		level++
		if level == len(t.nodes) {
			t.nodes = append(t.nodes, nil)
		}
		t.nodes[level] = append(t.nodes[level], combined)

		size >>= 1
	}

	t.leavesCount++
}

// LeavesCount is the number of leaves appended so far.
func (t *Tree) LeavesCount() uint32 { return t.leavesCount }

// peakRanks decomposes leavesCount into descending bit positions: the
// ranks of the current peaks, ordered left (oldest/largest subtree) to
// right (most recent/smallest), together with each peak's leaf offset.
func peakRanks(leavesCount uint32) (ranks []int, offsets []uint32) {
	offset := uint32(0)
	for bit := 31; bit >= 0; bit-- {
		if leavesCount&(1<<uint(bit)) != 0 {
			ranks = append(ranks, bit)
			offsets = append(offsets, offset)
			offset += 1 << uint(bit)
		}
	}
	return ranks, offsets
}

// Peaks returns the current peaks in guest order: descending rank,
// high-order (oldest/largest subtree) first — the same order
// circuit.MMRGuest.Subroots ends up in after a run of carries, since
// peakRanks already walks from the highest set bit down.
func (t *Tree) Peaks() []Hash256 {
	ranks, offsets := peakRanks(t.leavesCount)

	peaks := make([]Hash256, len(ranks))
	for i, r := range ranks {
		k := offsets[i] >> uint(r)
		peaks[i] = t.nodes[r][k]
	}
	return peaks
}

// Root folds the current peaks the same way circuit.MMRGuest.Root does.
func (t *Tree) Root() Hash256 {
	return circuit.FoldPeaks(t.Peaks())
}

// Proof is an inclusion proof for one leaf: the sibling hash at every
// level up to the peak that contains it, plus every current peak
// (including that one) so the verifier can refold the whole MMR root.
type Proof struct {
	Leaf  Hash256
	Index uint32
	Path  []Hash256
	Peaks []Hash256
}

// Prove builds an inclusion proof for the leaf at position idx
// (0-indexed).
func (t *Tree) Prove(idx uint32) (*Proof, error) {
	if idx >= t.leavesCount {
		return nil, bridgeerrors.NewGraphBuildError("mmr index %d out of range (have %d leaves)", idx, t.leavesCount)
	}

	ranks, offsets := peakRanks(t.leavesCount)

	var rank int
	found := false
	for i, r := range ranks {
		if idx >= offsets[i] && idx < offsets[i]+(1<<uint(r)) {
			rank, found = r, true
			break
		}
	}
	if !found {
		return nil, bridgeerrors.NewGraphBuildError("mmr index %d not covered by any peak", idx)
	}

	path := make([]Hash256, 0, rank)
	for level := 0; level < rank; level++ {
		pos := idx >> uint(level)
		sibling := pos ^ 1
		path = append(path, t.nodes[level][sibling])
	}

	return &Proof{
		Leaf:  t.nodes[0][idx],
		Index: idx,
		Path:  path,
		Peaks: t.Peaks(),
	}, nil
}

// VerifyProof ascends the path, pairing with each sibling by the
// corresponding bit of idx, and checks the resulting peak is among the
// supplied peaks at the rank implied by len(path) (spec.md §4.2).
func VerifyProof(p *Proof) bool {
	cur := p.Leaf

	for level, sibling := range p.Path {
		if (p.Index>>uint(level))&1 == 0 {
			cur = hashConcat(cur, sibling)
		} else {
			cur = hashConcat(sibling, cur)
		}
	}

	// Peaks are ordered by descending rank, so the peaks before the one
	// holding this leaf are exactly the set bits of Index above its rank.
	pos := circuit.Popcount32(p.Index >> uint(len(p.Path)))
	return pos < len(p.Peaks) && p.Peaks[pos] == cur
}
