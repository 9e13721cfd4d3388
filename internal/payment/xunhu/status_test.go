package xunhu

import (
	"errors"
	"testing"

	"github.com/hupay-bridge/internal/constants"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{code: "OD", want: constants.SettlementStateSuccess},
		{code: "WP", want: constants.SettlementStatePending},
		{code: "CD", want: constants.SettlementStateCancelled},
		{code: "RD", want: constants.SettlementStateRefunding},
		{code: "UD", want: constants.SettlementStateRefundFailed},
		{code: " od ", want: constants.SettlementStateSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			got, err := MapStatus(tc.code)
			if err != nil {
				t.Fatalf("map status failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("want %s got %s", tc.want, got)
			}
		})
	}
}

func TestMapStatusUnknown(t *testing.T) {
	for _, code := range []string{"", "XX", "paid"} {
		state, err := MapStatus(code)
		if !errors.Is(err, ErrStatusUnknown) {
			t.Fatalf("code %q: expected ErrStatusUnknown, got %v", code, err)
		}
		if state != "" {
			t.Fatalf("code %q: expected empty state, got %s", code, state)
		}
	}
}
