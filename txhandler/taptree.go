package txhandler

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"github.com/bridge-node/vault-bridge/bridgeerrors"
	"github.com/bridge-node/vault-bridge/script"
)

// TapscriptSpendInfo is the assembled taproot tree for one output: its
// tweaked output key plus, per leaf, the control block a script-path
// spend of that leaf needs.
type TapscriptSpendInfo struct {
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey
	tree        *txscript.IndexedTapScriptTree
}

// BuildSpendInfo assembles a taproot tree from leaves (in a fixed,
// caller-chosen order — this repo indexes leaves by slice position
// rather than a BTree, per spec.md §9's Design Note on using "indices
// into an arena... rather than back-pointers") and derives the tweaked
// output key.
func BuildSpendInfo(internalKey *btcec.PublicKey, leaves []script.Leaf) (*TapscriptSpendInfo, error) {
	if len(leaves) == 0 {
		return nil, bridgeerrors.NewGraphBuildError("txhandler: taproot tree needs at least one leaf")
	}

	tapLeaves := make([]txscript.TapLeaf, len(leaves))
	for i, l := range leaves {
		b, err := l.ScriptBytes()
		if err != nil {
			return nil, err
		}
		tapLeaves[i] = txscript.NewBaseTapLeaf(b)
	}

	tree := txscript.AssembleTaprootScriptTree(tapLeaves...)
	rootHash := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])

	return &TapscriptSpendInfo{
		InternalKey: internalKey,
		OutputKey:   outputKey,
		tree:        tree,
	}, nil
}

// OutputScript is the P2TR scriptPubKey this tree's output key pays to.
func (s *TapscriptSpendInfo) OutputScript() ([]byte, error) {
	return txscript.PayToTaprootScript(s.OutputKey)
}

// ControlBlock returns the serialized control block for a script-path
// spend of the leaf at leafIndex.
func (s *TapscriptSpendInfo) ControlBlock(leafIndex int) ([]byte, error) {
	if leafIndex < 0 || leafIndex >= len(s.tree.LeafMerkleProofs) {
		return nil, bridgeerrors.NewGraphBuildError("txhandler: leaf index %d out of range", leafIndex)
	}

	proof := s.tree.LeafMerkleProofs[leafIndex]
	block := proof.ToControlBlock(s.InternalKey)
	return block.ToBytes()
}
