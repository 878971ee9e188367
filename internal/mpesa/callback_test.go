package mpesa

import (
	"encoding/json"
	"testing"
	"time"
)

const successEnvelope = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 250.00},
          {"Name": "MpesaReceiptNumber", "Value": "QWE123"},
          {"Name": "TransactionDate", "Value": 20260901123456},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

func TestCallbackSuccessEnvelope(t *testing.T) {
	var env CallbackEnvelope
	if err := json.Unmarshal([]byte(successEnvelope), &env); err != nil {
		t.Fatal(err)
	}

	cb, err := env.Callback()
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if !cb.Succeeded() {
		t.Fatal("expected success")
	}

	meta := cb.CallbackMetadata
	if got := meta.Receipt(); got != "QWE123" {
		t.Errorf("receipt = %q, want QWE123", got)
	}
	if got := meta.PhoneNumber(); got != "254712345678" {
		t.Errorf("phone = %q, want 254712345678", got)
	}
	txDate, ok := meta.TransactionDate()
	if !ok {
		t.Fatal("transaction date missing")
	}
	want := time.Date(2026, 9, 1, 12, 34, 56, 0, time.UTC)
	if !txDate.Equal(want) {
		t.Errorf("transaction date = %v, want %v", txDate, want)
	}
}

func TestCallbackFailureEnvelope(t *testing.T) {
	raw := `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"ws_1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	var env CallbackEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatal(err)
	}

	cb, err := env.Callback()
	if err != nil {
		t.Fatal(err)
	}
	if cb.Succeeded() {
		t.Error("failure callback reported success")
	}
	if cb.ResultCode != 1032 {
		t.Errorf("result code = %d", cb.ResultCode)
	}
}

func TestCallbackMalformedEnvelopes(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"Body":{}}`,
		`{"Body":{"stkCallback":{"ResultCode":0}}}`,
	} {
		var env CallbackEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			t.Fatal(err)
		}
		if _, err := env.Callback(); err == nil {
			t.Errorf("envelope %s accepted, want ErrMalformedCallback", raw)
		}
	}
}

func TestCallbackSuccessCodeWithoutMetadata(t *testing.T) {
	// a zero result code without metadata cannot be treated as success
	raw := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_1","ResultCode":0,"ResultDesc":"ok"}}}`
	var env CallbackEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatal(err)
	}
	cb, err := env.Callback()
	if err != nil {
		t.Fatal(err)
	}
	if cb.Succeeded() {
		t.Error("success without metadata must not be treated as completed")
	}
}
