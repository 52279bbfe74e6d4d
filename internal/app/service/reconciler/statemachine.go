package reconciler

import "github.com/casamarket/checkout/pkg/types"

// CanTransition reports whether a webhook may move a transaction from one
// canonical status to another. PENDING fans out to the three resolved
// outcomes; everything else is frozen for webhooks. In particular a terminal
// decline is never resurrected by a late or duplicated "approved" callback,
// and REFUNDED is only reachable through the refund workflow.
func CanTransition(from, to types.PaymentStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	if from == types.PaymentStatusApproved {
		// APPROVED only moves to REFUNDED, and only via the refund workflow.
		return false
	}
	return to == types.PaymentStatusApproved ||
		to == types.PaymentStatusDeclined ||
		to == types.PaymentStatusError
}
