package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPasswordConstruction(t *testing.T) {
	c := &Client{cfg: Config{ShortCode: "174379", Passkey: "secretpasskey"}}
	ts := time.Date(2026, 9, 1, 12, 34, 56, 0, time.UTC)

	password, timestamp := c.password(ts)
	if timestamp != "20260901123456" {
		t.Errorf("timestamp = %q, want 20260901123456", timestamp)
	}
	want := base64.StdEncoding.EncodeToString([]byte("174379secretpasskey20260901123456"))
	if password != want {
		t.Errorf("password = %q, want %q", password, want)
	}
}

func TestWireAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"250", 250},
		{"1500.75", 1501},
		{"1500.50", 1501},
		{"1500.49", 1500},
		{"99.999", 100},
	}
	for _, c := range cases {
		d, err := decimal.NewFromString(c.in)
		if err != nil {
			t.Fatal(err)
		}
		if got := WireAmount(d); got != c.want {
			t.Errorf("WireAmount(%s) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestIsKnownFailureCode(t *testing.T) {
	for _, code := range []int{1, 1019, 1025, 1032, 1037, 2001} {
		if !IsKnownFailureCode(code) {
			t.Errorf("code %d should be a known failure", code)
		}
	}
	for _, code := range []int{0, 42, 4999, 1001} {
		if IsKnownFailureCode(code) {
			t.Errorf("code %d should not be a known failure", code)
		}
	}
}

func TestSTKPushRequestBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
		case "/mpesa/stkpush/v1/processrequest":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("auth header = %q, want Bearer tok-1", got)
			}
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode push body: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(STKPushResponse{
				MerchantRequestID: "mr_001",
				CheckoutRequestID: "ws_001",
				ResponseCode:      "0",
				CustomerMessage:   "ok",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:         srv.URL,
		ConsumerKey:     "key",
		ConsumerSecret:  "secret",
		ShortCode:       "174379",
		Passkey:         "passkey",
		CallbackURL:     "https://example.com/payments/callback",
		TransactionType: "CustomerPayBillOnline",
		Timeout:         5 * time.Second,
	})
	c.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }

	amount, _ := decimal.NewFromString("1500.75")
	resp, err := c.STKPush(context.Background(), STKPushRequest{
		Phone:            "254712345678",
		Amount:           amount,
		AccountReference: "OPU-1001",
		Description:      "Payment for order OPU-1001",
	})
	if err != nil {
		t.Fatalf("STKPush: %v", err)
	}
	if !resp.Accepted() {
		t.Error("expected accepted response")
	}
	if resp.CheckoutRequestID != "ws_001" {
		t.Errorf("checkout id = %q", resp.CheckoutRequestID)
	}

	// fractional amounts are rounded, never truncated
	if got := gotBody["Amount"].(float64); got != 1501 {
		t.Errorf("wire amount = %v, want 1501", got)
	}
	if gotBody["PhoneNumber"] != "254712345678" || gotBody["PartyA"] != "254712345678" {
		t.Error("payer phone not set on both party fields")
	}
	if gotBody["PartyB"] != "174379" || gotBody["BusinessShortCode"] != "174379" {
		t.Error("short code not set")
	}
	if gotBody["CallBackURL"] != "https://example.com/payments/callback" {
		t.Errorf("callback url = %v", gotBody["CallBackURL"])
	}
	if gotBody["AccountReference"] != "OPU-1001" {
		t.Errorf("account reference = %v", gotBody["AccountReference"])
	}
	if gotBody["Timestamp"] != "20260901120000" {
		t.Errorf("timestamp = %v", gotBody["Timestamp"])
	}
}

func TestSTKQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
		case "/mpesa/stkpushquery/v1/query":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["CheckoutRequestID"] != "ws_001" {
				t.Errorf("checkout id = %v", body["CheckoutRequestID"])
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(STKQueryResponse{
				CheckoutRequestID: "ws_001",
				ResponseCode:      "0",
				ResultCode:        "1032",
				ResultDesc:        "Request cancelled by user",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		Timeout:        5 * time.Second,
	})

	resp, err := c.STKQuery(context.Background(), "ws_001")
	if err != nil {
		t.Fatalf("STKQuery: %v", err)
	}
	code, err := resp.ResultCodeInt()
	if err != nil || code != 1032 {
		t.Errorf("result code = %d, %v; want 1032", code, err)
	}
}

func TestSTKPushGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		Timeout:        5 * time.Second,
	})

	if _, err := c.STKPush(context.Background(), STKPushRequest{
		Phone:  "254712345678",
		Amount: decimal.NewFromInt(100),
	}); err == nil {
		t.Fatal("expected error on gateway 500")
	}
}
