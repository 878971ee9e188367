package mpesa

import (
	"errors"
	"fmt"
	"time"
)

// CallbackEnvelope is the asynchronous result the gateway posts to the
// configured callback URL once the payer acts on the push prompt.
type CallbackEnvelope struct {
	Body struct {
		StkCallback *StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

var ErrMalformedCallback = errors.New("malformed callback envelope")

// Callback validates the envelope shape and returns the inner result.
func (e *CallbackEnvelope) Callback() (*StkCallback, error) {
	cb := e.Body.StkCallback
	if cb == nil || cb.CheckoutRequestID == "" {
		return nil, ErrMalformedCallback
	}
	return cb, nil
}

// Succeeded reports a successful push: result code 0 with the metadata
// the gateway attaches only on success.
func (cb *StkCallback) Succeeded() bool {
	return cb.ResultCode == 0 && cb.CallbackMetadata != nil
}

func (m *CallbackMetadata) lookup(name string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for _, item := range m.Item {
		if item.Name == name {
			return item.Value, true
		}
	}
	return nil, false
}

// String returns a metadata value by name. Numeric values (the gateway
// sends phone numbers and dates as JSON numbers) are formatted without
// an exponent.
func (m *CallbackMetadata) String(name string) string {
	v, ok := m.lookup(name)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// TransactionDate parses the TransactionDate metadata item, which the
// gateway sends as the number yyyyMMddHHmmss.
func (m *CallbackMetadata) TransactionDate() (time.Time, bool) {
	s := m.String("TransactionDate")
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (m *CallbackMetadata) Receipt() string {
	return m.String("MpesaReceiptNumber")
}

func (m *CallbackMetadata) PhoneNumber() string {
	return m.String("PhoneNumber")
}
