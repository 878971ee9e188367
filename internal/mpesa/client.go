// Package mpesa implements the Daraja STK-push gateway integration:
// OAuth token handling, push-payment submission and status queries.
package mpesa

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/jaksoftwares/opulence-payments/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// Gateway timestamps are yyyyMMddHHmmss.
const timestampLayout = "20060102150405"

// Result codes the gateway documents as terminal failures for an STK
// push: insufficient funds, expired, push error, cancelled by user,
// timeout, wrong PIN. Anything else non-zero is still in flight.
var knownFailureCodes = map[int]bool{
	1:    true,
	1019: true,
	1025: true,
	1032: true,
	1037: true,
	2001: true,
}

func IsKnownFailureCode(code int) bool {
	return knownFailureCodes[code]
}

type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	Passkey         string
	CallbackURL     string
	TransactionType string
	Timeout         time.Duration
}

type Client struct {
	cfg     Config
	rest    *resty.Client
	tokens  *TokenProvider
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewClient(cfg Config) *Client {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mpesa",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.BreakerState.WithLabelValues(name).Set(state)
		},
	})

	return &Client{cfg: cfg, rest: rest, tokens: NewTokenProvider(rest, cfg.ConsumerKey, cfg.ConsumerSecret), breaker: cb, now: time.Now}
}

// password builds the timestamp-bound request signature:
// base64(shortcode + passkey + timestamp). Regenerated per request.
func (c *Client) password(ts time.Time) (string, string) {
	timestamp := ts.Format(timestampLayout)
	raw := c.cfg.ShortCode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

// WireAmount converts a monetary amount to the integer shillings the
// gateway accepts, rounding half away from zero. 1500.75 becomes 1501.
func WireAmount(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

type STKPushRequest struct {
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether the gateway took the push request; a non-zero
// response code is a synchronous rejection.
func (r *STKPushResponse) Accepted() bool {
	return r.ResponseCode == "0"
}

// STKPush submits a push-payment prompt to the payer's phone.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password(c.now())
	body := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   c.cfg.TransactionType,
		"Amount":            WireAmount(req.Amount),
		"PartyA":            req.Phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	start := c.now()
	result, err := c.breaker.Execute(func() (any, error) {
		var out STKPushResponse
		resp, err := c.rest.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(body).
			SetResult(&out).
			Post("/mpesa/stkpush/v1/processrequest")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("stk push: http status %d: %s", resp.StatusCode(), resp.String())
		}
		return &out, nil
	})
	metrics.GatewayRequestDuration.WithLabelValues("stk_push").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return result.(*STKPushResponse), nil
}

type STKQueryResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// ResultCodeInt parses the query's result code; the gateway returns it
// as a string.
func (r *STKQueryResponse) ResultCodeInt() (int, error) {
	return strconv.Atoi(r.ResultCode)
}

// STKQuery asks the gateway for the current state of a push request.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password(c.now())
	body := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	start := c.now()
	result, err := c.breaker.Execute(func() (any, error) {
		var out STKQueryResponse
		resp, err := c.rest.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(body).
			SetResult(&out).
			Post("/mpesa/stkpushquery/v1/query")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("stk query: http status %d: %s", resp.StatusCode(), resp.String())
		}
		return &out, nil
	})
	metrics.GatewayRequestDuration.WithLabelValues("stk_query").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return result.(*STKQueryResponse), nil
}
