package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentProcessing, PaymentCompleted, true},
		{PaymentProcessing, PaymentFailed, true},
		{PaymentFailed, PaymentCompleted, true}, // late legitimate success
		{PaymentFailed, PaymentProcessing, true},
		{PaymentCompleted, PaymentFailed, false},
		{PaymentCompleted, PaymentProcessing, false},
		{PaymentCompleted, PaymentCompleted, false},
		{PaymentProcessing, PaymentStatus("refunded"), false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
