package zatca

import (
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// ChainState is the per-supplier hash chain position: the sequential invoice
// counter (KSA-33) and the previous document's hash (KSA-61). It is threaded
// explicitly through each submission and returned updated, so the chain's
// evolution stays pure and testable.
//
// The counter is a best-effort sequential approximation derived from the count
// of previously invoiced records, not a transactional ledger. Submissions for
// one supplier must be processed sequentially; concurrent record creation can
// produce duplicate counters and is not guarded here.
type ChainState struct {
	Counter      int64
	PreviousHash string
}

// NewChainState derives the state for the next document of a supplier.
// priorInvoiced is the number of records already carrying an invoice hash;
// lastHash is the latest persisted hash, "" when the chain is empty (the
// fixed seed hash is used then). modulus bounds the counter window; <= 0
// selects the default.
func NewChainState(priorInvoiced int64, lastHash string, modulus int64) ChainState {
	if modulus <= 0 {
		modulus = pkgzatca.DefaultChainModulus
	}
	if lastHash == "" {
		lastHash = pkgzatca.ChainSeedHash
	}
	return ChainState{
		Counter:      priorInvoiced%modulus + 1,
		PreviousHash: lastHash,
	}
}

// Advance returns the state for the document after one whose hash is docHash.
func (s ChainState) Advance(docHash string, modulus int64) ChainState {
	if modulus <= 0 {
		modulus = pkgzatca.DefaultChainModulus
	}
	next := s.Counter%modulus + 1
	return ChainState{Counter: next, PreviousHash: docHash}
}
