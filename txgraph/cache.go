package txgraph

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/bridge-node/vault-bridge/winternitz"
)

// ReimburseCache is the read-through cache spec.md §4.5 calls
// ReimburseDbCache: per-operator Winternitz keys and BitVM setup,
// keyed by (operator, deposit outpoint), so repeated graph builds for
// the same deposit don't re-derive or re-fetch them.
type ReimburseCache interface {
	// WinternitzPK returns the cached public key for path, deriving and
	// storing it on first use.
	WinternitzPK(operator []byte, depositOutpoint wire.OutPoint, path []byte, params winternitz.Params) (winternitz.PublicKey, error)

	// BitVMDisproveScripts returns the externally-supplied taproot leaf
	// scripts the Disprove transaction's script tree is built from
	// (spec.md §4.5: "scripts supplied externally"; the BitVM
	// disprove-script generator's internals are a Non-goal here).
	BitVMDisproveScripts(operator []byte, depositOutpoint wire.OutPoint) ([][]byte, error)
}
