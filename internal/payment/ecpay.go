package payment

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/settings"
)

const (
	ecpayStageBase   = "https://payment-stage.ecpay.com.tw"
	ecpayCheckoutURL = "/Cashier/AioCheckOut/V5"
	ecpayAck         = "1|OK"
)

// ECPay implements the ECPay all-in-one checkout. The customer submits an
// auto-generated form to ECPay and the result arrives on a server-to-server
// callback signed with CheckMacValue.
type ECPay struct {
	now func() time.Time
}

var _ Provider = (*ECPay)(nil)

func NewECPay() *ECPay {
	return &ECPay{now: time.Now}
}

func (*ECPay) Method() order.Method { return order.MethodECPay }

// checkMacValue signs params per the ECPay spec: sort keys, wrap with
// HashKey and HashIV, URL-encode the whole string, lowercase it, undo the
// encodings .NET leaves literal, then SHA-256 in uppercase hex.
func checkMacValue(params map[string]string, hashKey, hashIV string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "CheckMacValue" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("HashKey=" + hashKey)
	for _, k := range keys {
		b.WriteString("&" + k + "=" + params[k])
	}
	b.WriteString("&HashIV=" + hashIV)

	encoded := strings.ToLower(url.QueryEscape(b.String()))
	replacer := strings.NewReplacer(
		"%2d", "-",
		"%5f", "_",
		"%2e", ".",
		"%21", "!",
		"%2a", "*",
		"%28", "(",
		"%29", ")",
	)
	encoded = replacer.Replace(encoded)

	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// tradeNo derives the ECPay MerchantTradeNo, which must be alphanumeric and
// at most 20 characters, from the order number.
func tradeNo(orderNumber string) string {
	return strings.ReplaceAll(orderNumber, "-", "")
}

func (p *ECPay) CreateIntent(_ context.Context, o *order.Order, cfg settings.Payments) (*Intent, error) {
	itemNames := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		itemNames = append(itemNames, it.ProductName)
	}

	fields := map[string]string{
		"MerchantID":        cfg.ECPay.MerchantID,
		"MerchantTradeNo":   tradeNo(o.OrderNumber),
		"MerchantTradeDate": p.now().Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       o.TotalAmount.Round(0).String(),
		"TradeDesc":         "Order " + o.OrderNumber,
		"ItemName":          strings.Join(itemNames, "#"),
		"ReturnURL":         cfg.ReturnBaseURL + "/api/payment/webhook/ecpay",
		"ClientBackURL":     cfg.ReturnBaseURL + "/orders/" + o.OrderNumber,
		"ChoosePayment":     "ALL",
		"EncryptType":       "1",
		"CustomField1":      o.OrderNumber,
	}
	fields["CheckMacValue"] = checkMacValue(fields, cfg.ECPay.HashKey, cfg.ECPay.HashIV)

	base := cfg.ECPay.APIBase
	if base == "" {
		base = ecpayStageBase
	}
	return &Intent{
		Method:      order.MethodECPay,
		FormAction:  base + ecpayCheckoutURL,
		FormFields:  fields,
		ProviderRef: fields["MerchantTradeNo"],
		Info: map[string]any{
			"merchant_trade_no": fields["MerchantTradeNo"],
		},
	}, nil
}

// VerifyCallback authenticates the server-to-server result notification.
// ECPay retries the callback until it receives "1|OK", so the caller must
// answer with Ack even when the order was already settled.
func (p *ECPay) VerifyCallback(_ context.Context, vals url.Values, cfg settings.Payments) (*CallbackResult, error) {
	params := make(map[string]string, len(vals))
	for k := range vals {
		params[k] = vals.Get(k)
	}
	got := params["CheckMacValue"]
	want := checkMacValue(params, cfg.ECPay.HashKey, cfg.ECPay.HashIV)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return nil, ErrInvalidSignature
	}

	number := params["CustomField1"]
	if number == "" {
		return nil, errors.New("callback missing order reference")
	}
	rtnCode := params["RtnCode"]
	res := &CallbackResult{
		OrderNumber: number,
		Succeeded:   rtnCode == "1",
		ProviderRef: params["TradeNo"],
		Ack:         ecpayAck,
		Info: map[string]any{
			"trade_no":     params["TradeNo"],
			"rtn_code":     rtnCode,
			"rtn_msg":      params["RtnMsg"],
			"payment_type": params["PaymentType"],
			"payment_date": params["PaymentDate"],
			"verified_at":  p.now().UTC().Format(time.RFC3339),
		},
	}
	return res, nil
}
