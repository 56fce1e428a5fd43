package ice

import (
	"time"

	"github.com/pion/stun/v3"
)

// stunTransactionIDSize mirrors stun.TransactionIDSize (12 bytes / 96 bits,
// spec §3 "Transaction").
const stunTransactionIDSize = stun.TransactionIDSize

// bindingRequestRTO is the initial STUN retransmission timeout; successive
// retransmits double it (spec §4.4 "retransmit at RTO x {1,2,4,...}").
const bindingRequestRTO = 250 * time.Millisecond

// outboundTransaction is an in-flight outbound Binding request (spec §3
// "Transaction"): its id, the pair it checks, when it was sent, and whether
// it carried USE-CANDIDATE.
type outboundTransaction struct {
	transactionID  [stunTransactionIDSize]byte
	pair           *CandidatePair
	startedAt      time.Time
	isUseCandidate bool
}

// transactionTable holds in-flight transactions, matched to responses by a
// linear scan over STUN transaction ids (spec §3 "Uniquely indexed by STUN
// transaction-id"; spec §8 "at most one in-flight transaction carries t").
type transactionTable struct {
	pending []outboundTransaction
}

func (t *transactionTable) add(tr outboundTransaction) {
	t.pending = append(t.pending, tr)
}

// take removes and returns the transaction matching id, if any, and the
// elapsed RTT. A response with an unknown id leaves the table untouched
// and returns ok=false, matching spec §8's drop-unknown-transaction
// invariant.
func (t *transactionTable) take(id [stunTransactionIDSize]byte) (tr outboundTransaction, rtt time.Duration, ok bool) {
	for i := range t.pending {
		if t.pending[i].transactionID == id {
			tr = t.pending[i]
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return tr, time.Since(tr.startedAt), true
		}
	}
	return outboundTransaction{}, 0, false
}

// expireBefore drops every transaction started at or before cutoff. The
// agent itself does not call it; its entries leave the table through take
// or reset.
func (t *transactionTable) expireBefore(cutoff time.Time) {
	kept := t.pending[:0]
	for _, tr := range t.pending {
		if tr.startedAt.After(cutoff) {
			kept = append(kept, tr)
		}
	}
	t.pending = kept
}

func (t *transactionTable) reset() { t.pending = nil }
