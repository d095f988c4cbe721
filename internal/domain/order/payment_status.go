package order

// PaymentStatus is the payment state of an order. Transitions follow a fixed
// machine; paid, failed and refunded are terminal except for the manual
// failed->paid confirmation and paid->refunded.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentPartial  PaymentStatus = "partial"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:  {PaymentPending, PaymentPaid, PaymentFailed},
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded, PaymentPartial},
	PaymentFailed:  {PaymentPending, PaymentPaid},
	PaymentPartial: {PaymentRefunded},
}

// CanTransition reports whether moving from one payment status to another is
// allowed. Self transitions are allowed so that replayed provider callbacks
// are idempotent.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	if s == to {
		return true
	}
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends regular payment processing.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}
