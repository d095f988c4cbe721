package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lumenshop/checkout/internal/domain/order"
	"github.com/lumenshop/checkout/internal/settings"
)

// Orders is the order lookup the redirect-flow providers need when
// confirming or capturing a returned payment.
type Orders interface {
	GetByNumber(ctx context.Context, number string) (*order.Order, error)
}

const (
	linePaySandboxBase = "https://sandbox-api-pay.line.me"
	linePayRequestPath = "/v3/payments/request"
	linePayOKCode      = "0000"
)

// LinePay implements the LINE Pay v3 online API. The customer is redirected
// to LINE for approval and comes back to the confirm URL, where the payment
// is captured with a confirm call.
type LinePay struct {
	http   *http.Client
	orders Orders
	nonce  func() string
}

var _ Provider = (*LinePay)(nil)

func NewLinePay(orders Orders) *LinePay {
	return &LinePay{
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		orders: orders,
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixMilli(), 10)
		},
	}
}

func (*LinePay) Method() order.Method { return order.MethodLinePay }

// linePaySign produces the X-LINE-Authorization value: the base64 HMAC-SHA256
// of channelSecret+uri+body+nonce keyed with the channel secret.
func linePaySign(secret, uri, body, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(secret + uri + body + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (p *LinePay) post(ctx context.Context, cfg settings.LinePayConfig, path string, body []byte) ([]byte, error) {
	base := cfg.APIBase
	if base == "" {
		base = linePaySandboxBase
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	nonce := p.nonce()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-LINE-ChannelId", cfg.ChannelID)
	req.Header.Set("X-LINE-Authorization-Nonce", nonce)
	req.Header.Set("X-LINE-Authorization", linePaySign(cfg.ChannelSecret, path, string(body), nonce))

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call line pay")
	}
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("line pay returned status %d", resp.StatusCode)
	}
	return out, nil
}

func (p *LinePay) CreateIntent(ctx context.Context, o *order.Order, cfg settings.Payments) (*Intent, error) {
	amount := o.TotalAmount.Round(0).IntPart()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(amount) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(cfg.Currency) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.OrderNumber) })
		e.Field("packages", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Str("1") })
					e.Field("amount", func(e *jx.Encoder) { e.Int64(amount) })
					e.Field("name", func(e *jx.Encoder) { e.Str("Order " + o.OrderNumber) })
					e.Field("products", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, it := range o.Items {
								e.Obj(func(e *jx.Encoder) {
									e.Field("name", func(e *jx.Encoder) { e.Str(it.ProductName) })
									e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
									e.Field("price", func(e *jx.Encoder) { e.Int64(it.ProductPrice.Round(0).IntPart()) })
								})
							}
						})
					})
				})
			})
		})
		e.Field("redirectUrls", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("confirmUrl", func(e *jx.Encoder) {
					e.Str(cfg.ReturnBaseURL + "/api/payment/confirm/linepay?order=" + url.QueryEscape(o.OrderNumber))
				})
				e.Field("cancelUrl", func(e *jx.Encoder) {
					e.Str(cfg.ReturnBaseURL + "/api/payment/confirm/linepay?order=" + url.QueryEscape(o.OrderNumber) + "&cancel=1")
				})
			})
		})
	})

	raw, err := p.post(ctx, cfg.LinePay, linePayRequestPath, e.Bytes())
	if err != nil {
		return nil, err
	}
	code, msg, webURL, txnID, err := decodeLinePayResponse(raw)
	if err != nil {
		return nil, err
	}
	if code != linePayOKCode {
		return nil, errors.Wrapf(ErrProviderDeclined, "returnCode %s: %s", code, msg)
	}
	return &Intent{
		Method:      order.MethodLinePay,
		RedirectURL: webURL,
		ProviderRef: strconv.FormatInt(txnID, 10),
		Info: map[string]any{
			"transaction_id": strconv.FormatInt(txnID, 10),
			"payment_url":    webURL,
		},
	}, nil
}

// VerifyCallback handles the customer returning from LINE: it calls the
// confirm endpoint with the order total and reports success only when LINE
// answers returnCode 0000.
func (p *LinePay) VerifyCallback(ctx context.Context, vals url.Values, cfg settings.Payments) (*CallbackResult, error) {
	number := vals.Get("order")
	if number == "" {
		return nil, errors.New("missing order reference")
	}
	if vals.Get("cancel") != "" {
		// Customer backed out on the LINE side; nothing to confirm.
		return &CallbackResult{
			OrderNumber: number,
			Succeeded:   false,
			Info: map[string]any{
				"cancelled_at": time.Now().UTC().Format(time.RFC3339),
			},
		}, nil
	}
	txn := vals.Get("transactionId")
	if txn == "" {
		return nil, errors.New("missing transactionId")
	}
	o, err := p.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, errors.Wrap(err, "load order")
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(o.TotalAmount.Round(0).IntPart()) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(cfg.Currency) })
	})
	raw, err := p.post(ctx, cfg.LinePay, "/v3/payments/"+txn+"/confirm", e.Bytes())
	if err != nil {
		return nil, err
	}
	code, msg, _, _, err := decodeLinePayResponse(raw)
	if err != nil {
		return nil, err
	}
	res := &CallbackResult{
		OrderNumber: number,
		Succeeded:   code == linePayOKCode,
		ProviderRef: txn,
		Info: map[string]any{
			"transaction_id": txn,
			"return_code":    code,
			"verified_at":    time.Now().UTC().Format(time.RFC3339),
		},
	}
	if !res.Succeeded {
		res.Info["return_message"] = msg
	}
	return res, nil
}

func decodeLinePayResponse(raw []byte) (code, msg, webURL string, txnID int64, err error) {
	d := jx.DecodeBytes(raw)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "returnCode":
			code, err = d.Str()
			return err
		case "returnMessage":
			msg, err = d.Str()
			return err
		case "info":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "transactionId":
					txnID, err = d.Int64()
					return err
				case "paymentUrl":
					return d.Obj(func(d *jx.Decoder, key string) error {
						if key == "web" {
							webURL, err = d.Str()
							return err
						}
						return d.Skip()
					})
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return "", "", "", 0, errors.Wrap(err, "decode line pay response")
	}
	return code, msg, webURL, txnID, nil
}
