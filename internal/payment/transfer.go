package payment

import (
	"context"
	"net/url"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/settings"
)

// Transfer is the manual bank transfer method. There is no provider
// callback; an operator confirms the payment after checking the account.
type Transfer struct{}

var _ Provider = (*Transfer)(nil)

func NewTransfer() *Transfer { return &Transfer{} }

func (*Transfer) Method() order.Method { return order.MethodTransfer }

func (*Transfer) CreateIntent(_ context.Context, o *order.Order, cfg settings.Payments) (*Intent, error) {
	info := cfg.Transfer
	note := "Please include order number " + o.OrderNumber + " in the transfer memo so we can match your payment."
	return &Intent{
		Method:   order.MethodTransfer,
		BankInfo: &info,
		Note:     note,
		Info: map[string]any{
			"bank_name":      info.BankName,
			"bank_code":      info.BankCode,
			"account_number": info.AccountNumber,
			"account_name":   info.AccountName,
			"amount":         o.TotalAmount.String(),
			"note":           note,
		},
	}, nil
}

func (*Transfer) VerifyCallback(context.Context, url.Values, settings.Payments) (*CallbackResult, error) {
	return nil, ErrUnknownMethod
}
