package domain

import (
	"testing"
)

func TestMapMollieStatus(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"open", "pending"},
		{"pending", "pending"},
		{"authorized", "pending"},
		{"paid", "paid"},
		{"failed", "failed"},
		{"canceled", "canceled"},
		{"expired", "expired"},
		{"refunded", "refunded"}, // unrecognized codes pass through unchanged
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			if got := MapMollieStatus(tt.remote); got != tt.want {
				t.Errorf("MapMollieStatus(%q) = %q, want %q", tt.remote, got, tt.want)
			}
		})
	}
}

func TestIsTerminalPaymentStatus(t *testing.T) {
	terminal := []string{"paid", "failed", "canceled", "expired"}
	for _, s := range terminal {
		if !IsTerminalPaymentStatus(s) {
			t.Errorf("IsTerminalPaymentStatus(%q) = false, want true", s)
		}
	}

	inflight := []string{"open", "pending", "authorized", ""}
	for _, s := range inflight {
		if IsTerminalPaymentStatus(s) {
			t.Errorf("IsTerminalPaymentStatus(%q) = true, want false", s)
		}
	}
}

func TestIsFailurePaymentStatus(t *testing.T) {
	if IsFailurePaymentStatus("paid") {
		t.Error("paid must not be a failure status")
	}
	for _, s := range []string{"failed", "canceled", "expired"} {
		if !IsFailurePaymentStatus(s) {
			t.Errorf("IsFailurePaymentStatus(%q) = false, want true", s)
		}
	}
}
