package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentUnpaid, PaymentPending, true},
		{PaymentUnpaid, PaymentPaid, true},
		{PaymentUnpaid, PaymentFailed, true},
		{PaymentUnpaid, PaymentRefunded, false},
		{PaymentUnpaid, PaymentPartial, false},

		{PaymentPending, PaymentPaid, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPending, PaymentUnpaid, false},
		{PaymentPending, PaymentRefunded, false},

		{PaymentPaid, PaymentRefunded, true},
		{PaymentPaid, PaymentPartial, true},
		{PaymentPaid, PaymentPending, false},
		{PaymentPaid, PaymentFailed, false},
		{PaymentPaid, PaymentUnpaid, false},

		// Manual confirmation recovers failed payments.
		{PaymentFailed, PaymentPaid, true},
		{PaymentFailed, PaymentPending, true},
		{PaymentFailed, PaymentRefunded, false},

		{PaymentPartial, PaymentRefunded, true},
		{PaymentPartial, PaymentPaid, false},

		{PaymentRefunded, PaymentPaid, false},
		{PaymentRefunded, PaymentPending, false},

		// Replayed callbacks must be idempotent.
		{PaymentPaid, PaymentPaid, true},
		{PaymentFailed, PaymentFailed, true},
		{PaymentPending, PaymentPending, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestPaymentStatus_Terminal(t *testing.T) {
	assert.True(t, PaymentPaid.Terminal())
	assert.True(t, PaymentFailed.Terminal())
	assert.True(t, PaymentRefunded.Terminal())
	assert.False(t, PaymentUnpaid.Terminal())
	assert.False(t, PaymentPending.Terminal())
	assert.False(t, PaymentPartial.Terminal())
}
