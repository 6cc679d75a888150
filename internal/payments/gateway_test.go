package payments

import "testing"

func TestNewStripeUnconfigured(t *testing.T) {
	if g := NewStripe(""); g != nil {
		t.Fatal("expected nil gateway without a secret key")
	}
	if g := NewStripe("sk_test_123"); g == nil {
		t.Fatal("expected gateway with a secret key")
	}
}
